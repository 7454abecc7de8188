package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/disintegration/imaging"
)

// BoundingBox delimits a tag region as [[x0,y0],[x1,y1]] in frame
// coordinates. Min is inclusive and Max is exclusive.
type BoundingBox struct {
	Min image.Point
	Max image.Point
}

// Box builds a bounding box from its two corners.
func Box(x0, y0, x1, y1 int) BoundingBox {
	return BoundingBox{Min: image.Pt(x0, y0), Max: image.Pt(x1, y1)}
}

// Rect returns the box as an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rectangle{Min: b.Min, Max: b.Max}
}

// Margins returns the crop amounts for a frame of the given size: the lower
// margins are the top-left corner and the upper margins are the frame size
// minus the bottom-right corner.
func (b BoundingBox) Margins(size image.Point) (lower, upper image.Point) {
	return b.Min, size.Sub(b.Max)
}

// Validate reports a box with a negative corner or with Max before Min.
// An empty box (Min == Max on either axis) is valid and crops to nothing.
func (b BoundingBox) Validate() error {
	if b.Min.X < 0 || b.Min.Y < 0 {
		return fmt.Errorf("box %s has a negative corner", b)
	}
	if b.Max.X < b.Min.X || b.Max.Y < b.Min.Y {
		return fmt.Errorf("box %s is inverted", b)
	}
	return nil
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[[%d,%d],[%d,%d]]", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
}

// MarshalJSON encodes the box as [[x0,y0],[x1,y1]].
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([2][2]int{{b.Min.X, b.Min.Y}, {b.Max.X, b.Max.Y}})
}

// UnmarshalJSON decodes a box written as [[x0,y0],[x1,y1]].
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var corners [][]int
	if err := json.Unmarshal(data, &corners); err != nil {
		return fmt.Errorf("failed to decode bounding box: %w", err)
	}
	return b.setCorners(corners)
}

// UnmarshalTOML decodes a TOML array of two [x, y] integer pairs.
func (b *BoundingBox) UnmarshalTOML(v interface{}) error {
	outer, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("bounding box must be an array, got %T", v)
	}
	corners := make([][]int, 0, len(outer))
	for _, item := range outer {
		inner, ok := item.([]interface{})
		if !ok {
			return fmt.Errorf("bounding box corner must be an array, got %T", item)
		}
		corner := make([]int, 0, len(inner))
		for _, n := range inner {
			i, ok := n.(int64)
			if !ok {
				return fmt.Errorf("bounding box coordinate must be an integer, got %T", n)
			}
			corner = append(corner, int(i))
		}
		corners = append(corners, corner)
	}
	return b.setCorners(corners)
}

func (b *BoundingBox) setCorners(corners [][]int) error {
	if len(corners) != 2 || len(corners[0]) != 2 || len(corners[1]) != 2 {
		return fmt.Errorf("bounding box must be [[x0,y0],[x1,y1]], got %v", corners)
	}
	*b = Box(corners[0][0], corners[0][1], corners[1][0], corners[1][1])
	return nil
}

// CropMargins crops img to the box using margin semantics.
//
// The box is turned into lower and upper margins and those are cut from each
// side, so the region is clamped to the image. When the margins on an axis
// meet or overlap (a box outside the image, a zero-area box, or an inverted
// box) the result is an empty image rather than a swapped region.
//
// The returned image always has a zero origin and never aliases img.
func CropMargins(img *image.Gray, box BoundingBox) *image.Gray {
	bounds := img.Bounds()
	size := bounds.Size()
	lower, upper := box.Margins(size)
	if lower.X+upper.X >= size.X || lower.Y+upper.Y >= size.Y {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	rect := image.Rect(
		bounds.Min.X+lower.X, bounds.Min.Y+lower.Y,
		bounds.Max.X-upper.X, bounds.Max.Y-upper.Y,
	).Intersect(bounds)
	if rect.Empty() {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	return toGray(imaging.Crop(img, rect))
}

// toGray copies any image into a zero-origin *image.Gray.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// ImageResult is a PNG-encoded image ready to return over JSON.
type ImageResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes img as a base64 PNG.
func EncodePNG(img image.Image) (*ImageResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &ImageResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
