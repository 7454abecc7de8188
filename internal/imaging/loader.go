package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
)

// ImageFormat returns "png", "jpeg", "gif" or "" based on the file extension.
func ImageFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	}
	return ""
}

// LoadImage decodes a PNG, JPEG or GIF file from disk.
//
// The format is sniffed from the file contents, not the extension, so a
// frame export saved with the wrong suffix still decodes.
//
// Parameters:
//   - path: Absolute or relative path to the image file.
//
// Returns:
//   - image.Image: The decoded image. The concrete type depends on the format
//     and color model (e.g., *image.Gray, *image.NRGBA, *image.YCbCr).
//   - error: Non-nil if the file cannot be opened or decoded.
//
// # Errors
//
//   - Returns error if the file does not exist or cannot be read
//   - Returns error if the file is not a valid PNG, JPEG, or GIF image
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// LoadFrame decodes an exported frame image (for example a screenshot or a
// frame dumped from a cine) into a 2-D luminance frame.
//
// Color images are reduced with FrameFromImage, so the result can be passed
// straight to NewLadder with the same tag box used for DICOM pixel data.
//
// Parameters:
//   - path: Path to a PNG, JPEG or GIF file.
//
// Returns:
//   - Frame: A 2-D frame of 8-bit intensities, Shape [height, width].
//   - error: Non-nil if LoadImage fails.
func LoadFrame(path string) (Frame, error) {
	img, err := LoadImage(path)
	if err != nil {
		return Frame{}, err
	}
	return FrameFromImage(img), nil
}
