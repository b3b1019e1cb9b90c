package surface

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestRender_ScalesToRequestedSize(t *testing.T) {
	s := New()
	if !s.Bounds().Empty() {
		t.Fatalf("new surface should be empty, got %v", s.Bounds())
	}

	s.Render(solid(1600, 1200, color.RGBA{R: 10, G: 20, B: 30, A: 255}), 800, 600)

	if got := s.Bounds(); got != image.Rect(0, 0, 800, 600) {
		t.Fatalf("Bounds() = %v, want 800x600", got)
	}

	pix := s.ReadRGBA(s.Bounds())
	if len(pix) != 800*600*4 {
		t.Fatalf("len(pix) = %d, want %d", len(pix), 800*600*4)
	}
	if pix[0] != 10 || pix[1] != 20 || pix[2] != 30 || pix[3] != 255 {
		t.Errorf("first pixel = %v, want [10 20 30 255]", pix[:4])
	}
}

func TestRender_UpscalesSmallSources(t *testing.T) {
	s := New()
	s.Render(solid(30, 40, color.RGBA{R: 255, G: 255, B: 255, A: 255}), 50, 50)

	pix := s.ReadRGBA(image.Rect(0, 0, 50, 50))
	if len(pix) != 50*50*4 {
		t.Fatalf("len(pix) = %d, want %d", len(pix), 50*50*4)
	}
	for i, b := range pix {
		if b != 255 {
			t.Fatalf("byte %d = %d, want 255", i, b)
		}
	}
}

func TestReadRGBA_SubRectangleAndClipping(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.SetRGBA(2, 1, color.RGBA{R: 1, G: 2, B: 3, A: 4})

	s := New()
	s.Render(src, 4, 4)

	pix := s.ReadRGBA(image.Rect(2, 1, 3, 2))
	if len(pix) != 4 {
		t.Fatalf("len(pix) = %d, want 4", len(pix))
	}
	if pix[0] != 1 || pix[1] != 2 || pix[2] != 3 || pix[3] != 4 {
		t.Errorf("pixel = %v, want [1 2 3 4]", pix)
	}

	clipped := s.ReadRGBA(image.Rect(2, 2, 10, 10))
	if len(clipped) != 2*2*4 {
		t.Errorf("clipped len = %d, want %d", len(clipped), 2*2*4)
	}

	if out := s.ReadRGBA(image.Rect(10, 10, 12, 12)); out != nil {
		t.Errorf("out of bounds read should be nil, got %d bytes", len(out))
	}
}

func TestRender_ReusesBufferForSameSize(t *testing.T) {
	s := New()
	s.Render(solid(10, 10, color.RGBA{A: 255}), 10, 10)
	first := s.dst

	s.Render(solid(20, 20, color.RGBA{A: 255}), 10, 10)
	if s.dst != first {
		t.Errorf("surface reallocated for an unchanged size")
	}

	s.Render(solid(20, 20, color.RGBA{A: 255}), 20, 20)
	if s.dst == first {
		t.Errorf("surface not reallocated for a new size")
	}
}
