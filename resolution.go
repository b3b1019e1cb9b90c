package codescanner

const (
	// MaxDimension caps the longest side of a sampled frame
	MaxDimension = 800
	// MinDimension is the floor applied to each side of a sampled frame
	MinDimension = 50
)

// BoundedResolution computes the capture surface size for a source of w x h.
//
// Sources within MaxDimension on both axes keep their size. Otherwise the
// larger side is set to MaxDimension and the other is scaled by the w/h
// aspect ratio and floored. Each side is then raised to at least MinDimension.
//
// Examples:
//   - 1600x1200 → 800x600
//   - 1200x1600 → 600x800
//   - 30x40 → 50x50
func BoundedResolution(w, h int) (int, int) {
	if w > MaxDimension || h > MaxDimension {
		ratio := float64(w) / float64(h)
		if h > w {
			h = MaxDimension
			w = int(float64(MaxDimension) * ratio)
		} else {
			w = MaxDimension
			h = int(float64(MaxDimension) / ratio)
		}
	}
	return max(w, MinDimension), max(h, MinDimension)
}
