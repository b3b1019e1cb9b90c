package luma

import "testing"

func TestFromRGBA(t *testing.T) {
	tests := []struct {
		name string
		pix  []byte
		want []byte
	}{
		{name: "opaque white", pix: []byte{255, 255, 255, 255}, want: []byte{255}},
		{name: "opaque black", pix: []byte{0, 0, 0, 255}, want: []byte{0}},
		{name: "transparent black", pix: []byte{0, 0, 0, 0}, want: []byte{255}},
		{name: "transparent red", pix: []byte{200, 10, 10, 0}, want: []byte{255}},
		// (306*255 + 512) >> 10 = 76
		{name: "opaque red", pix: []byte{255, 0, 0, 255}, want: []byte{76}},
		// (601*255 + 512) >> 10 = 150
		{name: "opaque green", pix: []byte{0, 255, 0, 1}, want: []byte{150}},
		// (117*255 + 512) >> 10 = 29
		{name: "opaque blue", pix: []byte{0, 0, 255, 128}, want: []byte{29}},
		// (306*10 + 601*20 + 117*30 + 512) >> 10 = 18
		{name: "mixed", pix: []byte{10, 20, 30, 255}, want: []byte{18}},
		{name: "empty", pix: nil, want: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromRGBA(tt.pix)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("luma[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestFromRGBA_TruncatesPartialGroups tests that trailing bytes are dropped
func TestFromRGBA_TruncatesPartialGroups(t *testing.T) {
	for extra := 0; extra < 4; extra++ {
		pix := make([]byte, 4*3+extra)
		for i := range pix {
			pix[i] = 255
		}
		got := FromRGBA(pix)
		if len(got) != 3 {
			t.Errorf("len(pix)=%d: output length %d, want 3", len(pix), len(got))
		}
	}
	t.Logf("✅ partial trailing groups ignored")
}

// TestFromRGBA_Range checks every output stays in the formula's range for random-ish inputs
func TestFromRGBA_Range(t *testing.T) {
	pix := make([]byte, 0, 4*256)
	for v := 0; v < 256; v++ {
		pix = append(pix, byte(v), byte(255-v), byte(v*7), 255)
	}

	got := FromRGBA(pix)
	for i, l := range got {
		r, g, b := uint32(pix[i*4]), uint32(pix[i*4+1]), uint32(pix[i*4+2])
		want := byte((306*r + 601*g + 117*b + 512) / 1024)
		if l != want {
			t.Fatalf("pixel %d: luma = %d, want %d", i, l, want)
		}
	}
}

func TestInto_ReusesBuffer(t *testing.T) {
	dst := make([]byte, 0, 16)
	out := Into(dst, []byte{0, 0, 0, 255, 255, 255, 255, 255})
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if &out[0] != &dst[:1][0] {
		t.Errorf("Into allocated a new buffer despite sufficient capacity")
	}
	if out[0] != 0 || out[1] != 255 {
		t.Errorf("out = %v, want [0 255]", out)
	}
}
