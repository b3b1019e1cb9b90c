// Package luma converts RGBA frame buffers into single-channel luminance buffers.
package luma

// FromRGBA converts sequential (R, G, B, A) groups into one luma byte per pixel.
//
// Fully transparent pixels become 255. Other pixels use the fixed-point
// BT.601 approximation (306R + 601G + 117B + 512) >> 10, which stays within
// a byte because the weights sum to 1024. Trailing bytes that do not form a
// complete group are ignored.
func FromRGBA(pix []byte) []byte {
	return Into(nil, pix)
}

// Into is FromRGBA writing into dst, reusing its capacity when large enough.
func Into(dst, pix []byte) []byte {
	n := len(pix) / 4
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	for i := 0; i < n; i++ {
		p := pix[i*4 : i*4+4 : i*4+4]
		if p[3] == 0 {
			dst[i] = 0xFF
			continue
		}
		r, g, b := uint32(p[0]), uint32(p[1]), uint32(p[2])
		dst[i] = byte((306*r + 601*g + 117*b + 0x200) >> 10)
	}
	return dst
}
