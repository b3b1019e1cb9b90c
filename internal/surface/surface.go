// Package surface implements the offscreen capture surface a session renders frames into.
package surface

import (
	"image"

	"golang.org/x/image/draw"
)

// Surface is an offscreen RGBA bitmap. It is not safe for concurrent use;
// the owning session only touches it from its driver goroutine.
type Surface struct {
	dst    *image.RGBA
	scaler draw.Scaler
}

// New creates an empty surface using bilinear approximation for scaling
func New() *Surface {
	return &Surface{scaler: draw.ApproxBiLinear}
}

// Render draws src scaled to w x h, reallocating only when the size changes
func (s *Surface) Render(src image.Image, w, h int) {
	r := image.Rect(0, 0, w, h)
	if s.dst == nil || s.dst.Rect != r {
		s.dst = image.NewRGBA(r)
	}
	s.scaler.Scale(s.dst, r, src, src.Bounds(), draw.Src, nil)
}

// Bounds returns the current surface rectangle (empty before the first Render)
func (s *Surface) Bounds() image.Rectangle {
	if s.dst == nil {
		return image.Rectangle{}
	}
	return s.dst.Rect
}

// ReadRGBA copies the pixels of r, clipped to the surface, as tightly packed
// R, G, B, A bytes. The result is owned by the caller.
func (s *Surface) ReadRGBA(r image.Rectangle) []byte {
	if s.dst == nil {
		return nil
	}
	r = r.Intersect(s.dst.Rect)
	if r.Empty() {
		return nil
	}

	rowBytes := r.Dx() * 4
	out := make([]byte, rowBytes*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := s.dst.PixOffset(r.Min.X, y)
		copy(out[(y-r.Min.Y)*rowBytes:], s.dst.Pix[off:off+rowBytes])
	}
	return out
}
