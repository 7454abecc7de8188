package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/histogram"
	"gonum.org/v1/gonum/floats"
)

// BinaryLevel is the fixed cut used by the binary threshold method.
const BinaryLevel = 128

// Binarize marks dark pixels (v < 128) as foreground 255 and
// everything else as 0, assuming dark text on a light background.
func Binarize(img *image.Gray) *image.Gray {
	return thresholdAt(img, func(v uint8) bool { return v < BinaryLevel })
}

// BinarizeOtsu computes the Otsu level t of img and marks pixels v <= t as
// foreground 255 and the rest as 0.
func BinarizeOtsu(img *image.Gray) *image.Gray {
	t := OtsuLevel(img)
	return thresholdAt(img, func(v uint8) bool { return v <= t })
}

func thresholdAt(img *image.Gray, inside func(uint8) bool) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x, v := range src {
			if inside(v) {
				dst[x] = 255
			}
		}
	}
	return out
}

// OtsuLevel returns the gray level that maximizes the between-class variance
// of the image histogram, where the lower class is every level <= t.
//
// Ties go to the lowest level. An image with a single gray level returns
// that level, and an empty image returns 0.
func OtsuLevel(img *image.Gray) uint8 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}

	h := histogram.NewRGBAHistogram(img)
	counts := make([]float64, len(h.R.Bins))
	levels := make([]float64, len(h.R.Bins))
	for i, n := range h.R.Bins {
		counts[i] = float64(n)
		levels[i] = float64(i) * float64(n)
	}
	total := floats.Sum(counts)
	grand := floats.Sum(levels)

	cumCount := floats.CumSum(make([]float64, len(counts)), counts)
	cumLevel := floats.CumSum(make([]float64, len(levels)), levels)

	best, bestVar := -1, 0.0
	for t := range counts {
		w0 := cumCount[t]
		w1 := total - w0
		if w0 == 0 || w1 == 0 {
			continue
		}
		mu0 := cumLevel[t] / w0
		mu1 := (grand - cumLevel[t]) / w1
		v := w0 * w1 * (mu0 - mu1) * (mu0 - mu1)
		if best < 0 || v > bestVar {
			best, bestVar = t, v
		}
	}
	if best < 0 {
		// Single gray level: put every pixel in the lower class.
		return uint8(floats.MaxIdx(counts))
	}
	return uint8(best)
}

// RescaleIntensity linearly stretches img so its darkest pixel maps to 0 and
// its brightest to 255. A flat image maps to 0.
func RescaleIntensity(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if b.Empty() {
		return out
	}

	vals := make([]float64, 0, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for _, v := range img.Pix[y*img.Stride : y*img.Stride+b.Dx()] {
			vals = append(vals, float64(v))
		}
	}
	lo, hi := floats.Min(vals), floats.Max(vals)
	if hi == lo {
		return out
	}
	floats.AddConst(-lo, vals)
	floats.Scale(255/(hi-lo), vals)

	for y := 0; y < b.Dy(); y++ {
		row := vals[y*b.Dx() : (y+1)*b.Dx()]
		for x, v := range row {
			out.Pix[y*out.Stride+x] = uint8(math.Round(v))
		}
	}
	return out
}
