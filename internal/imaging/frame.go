package imaging

import (
	"errors"
	"fmt"
	"image"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ErrShapeMismatch is returned when a frame's data length disagrees with its shape.
var ErrShapeMismatch = errors.New("frame data does not match shape")

// InvalidDimensionError reports a frame that is not exactly two-dimensional.
type InvalidDimensionError struct {
	Dims int
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("expected a 2d frame, got %d dimensions", e.Dims)
}

// Frame is a decoded intensity array in row-major order.
//
// Shape follows numpy conventions: a grayscale frame has Shape [rows, cols].
// Values are 8-bit intensities, or 0..1 floats when Normalized is set.
type Frame struct {
	Shape      []int
	Data       []float64
	Normalized bool
}

// Dims returns the number of dimensions of the frame.
func (f Frame) Dims() int {
	return len(f.Shape)
}

// Validate checks that the frame is 2-D and that its data covers the shape.
func (f Frame) Validate() error {
	if len(f.Shape) != 2 {
		return &InvalidDimensionError{Dims: len(f.Shape)}
	}
	if f.Shape[0] < 0 || f.Shape[1] < 0 || len(f.Data) != f.Shape[0]*f.Shape[1] {
		return fmt.Errorf("%w: shape %v, %d values", ErrShapeMismatch, f.Shape, len(f.Data))
	}
	return nil
}

// Gray converts the frame into an 8-bit grayscale image. Values are scaled by
// 255 when the frame is normalized, then rounded and clamped to 0..255.
func (f Frame) Gray() (*image.Gray, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	rows, cols := f.Shape[0], f.Shape[1]
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := f.Data[y*cols+x]
			if f.Normalized {
				v *= 255
			}
			img.Pix[y*img.Stride+x] = clampUint8(v)
		}
	}
	return img, nil
}

// NewFrame builds a 2-D frame of the given size from 8-bit values.
func NewFrame(rows, cols int, pix []uint8) Frame {
	data := make([]float64, len(pix))
	for i, p := range pix {
		data[i] = float64(p)
	}
	return Frame{Shape: []int{rows, cols}, Data: data}
}

// FrameFromImage converts any image to a 2-D frame using the
// 0.2989/0.5870/0.1140 luminance weighting.
func FrameFromImage(img image.Image) Frame {
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()
	data := make([]float64, rows*cols)

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				data[y*cols+x] = float64(g.Pix[y*g.Stride+x])
			}
		}
		return Frame{Shape: []int{rows, cols}, Data: data}
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			c, _ := colorful.MakeColor(img.At(b.Min.X+x, b.Min.Y+y))
			data[y*cols+x] = math.Floor(255*(0.2989*c.R+0.5870*c.G+0.1140*c.B) + 1e-9)
		}
	}
	return Frame{Shape: []int{rows, cols}, Data: data}
}

// FrameFromChannel converts an image to a 2-D frame keeping a single color
// channel (0 = red, 1 = green, 2 = blue).
func FrameFromChannel(img image.Image, channel int) Frame {
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()
	data := make([]float64, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			c, _ := colorful.MakeColor(img.At(b.Min.X+x, b.Min.Y+y))
			var v float64
			switch channel {
			case 1:
				v = c.G
			case 2:
				v = c.B
			default:
				v = c.R
			}
			data[y*cols+x] = math.Round(255 * v)
		}
	}
	return Frame{Shape: []int{rows, cols}, Data: data}
}

func clampUint8(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
