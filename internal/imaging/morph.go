package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// Foreground is the pixel value that marks text after thresholding.
const Foreground = 255

// Upscale resizes img by an integer factor in both axes with a linear filter.
// Factor 1 (or less) returns an unchanged copy.
func Upscale(img *image.Gray, factor int) *image.Gray {
	b := img.Bounds()
	if factor <= 1 || b.Empty() {
		return toGray(img)
	}
	return toGray(imaging.Resize(img, b.Dx()*factor, b.Dy()*factor, imaging.Linear))
}

// Dilate grows every foreground pixel by a disc of the given radius: any
// pixel within distance radius of a 255 pixel becomes 255, the others keep
// their value. Radius 0 returns an unchanged copy.
func Dilate(img *image.Gray, radius int) *image.Gray {
	out := toGray(img)
	if radius <= 0 {
		return out
	}

	disc := discOffsets(radius)
	b := out.Bounds()
	w, h := b.Dx(), b.Dy()
	src := toGray(img)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if src.Pix[y*src.Stride+x] != Foreground {
				continue
			}
			for _, d := range disc {
				x2, y2 := x+d.X, y+d.Y
				if x2 < 0 || y2 < 0 || x2 >= w || y2 >= h {
					continue
				}
				out.Pix[y2*out.Stride+x2] = Foreground
			}
		}
	}
	return out
}

// discOffsets lists the offsets (dx, dy) with dx*dx+dy*dy <= r*r.
func discOffsets(r int) []image.Point {
	var pts []image.Point
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				pts = append(pts, image.Pt(dx, dy))
			}
		}
	}
	return pts
}

// Invert flips a candidate to dark text on a light background for viewing.
func Invert(img image.Image) *image.Gray {
	return toGray(effect.Invert(img))
}
