package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
)

// OverlayResult is the QC rendering of a frame with its tag box outlined.
type OverlayResult struct {
	ImageResult
	Box BoundingBox `json:"box"`
}

// BoxOverlay outlines box on img and labels its two corners with their
// coordinates so an operator can check the box against the burned-in tag.
//
// Parameters:
//   - img: The frame to draw on. It is copied, never modified.
//   - box: The tag box. Parts outside the image are not drawn.
//   - colorHex: Outline color as "#RRGGBB". An unparsable color falls back
//     to opaque red.
//
// Returns:
//   - *OverlayResult: The PNG rendering and the box that was drawn.
//   - error: Non-nil if PNG encoding fails.
func BoxOverlay(img image.Image, box BoundingBox, colorHex string) (*OverlayResult, error) {
	bounds := img.Bounds()

	boxColor, err := parseHexColor(colorHex)
	if err != nil {
		boxColor = color.RGBA{255, 0, 0, 255}
	}

	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	r := box.Rect().Canon()
	for x := r.Min.X; x < r.Max.X; x++ {
		setInBounds(result, x, r.Min.Y, boxColor)
		setInBounds(result, x, r.Max.Y-1, boxColor)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		setInBounds(result, r.Min.X, y, boxColor)
		setInBounds(result, r.Max.X-1, y, boxColor)
	}

	labelColor := color.RGBA{255, 255, 255, 255}
	bgColor := color.RGBA{0, 0, 0, 180}
	drawLabel(result, r.Min.X, r.Max.Y+2, fmt.Sprintf("%d,%d", box.Min.X, box.Min.Y), labelColor, bgColor)
	drawLabel(result, r.Max.X+2, r.Max.Y+2, fmt.Sprintf("%d,%d", box.Max.X, box.Max.Y), labelColor, bgColor)

	encoded, err := EncodePNG(result)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{ImageResult: *encoded, Box: box}, nil
}

func setInBounds(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{x, y}).In(img.Bounds()) {
		img.Set(x, y, c)
	}
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// corner label glyphs, 3x5 pixels
var glyphs = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
	',': {"000", "000", "000", "010", "010"},
	'-': {"000", "000", "111", "000", "000"},
}

// drawLabel draws a small text label with its top-left corner at (x, y).
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	const charWidth, labelHeight = 4, 7
	labelWidth := len(text) * charWidth

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			setInBounds(img, x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					setInBounds(img, cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
