// Package imaging implements the region preprocessor for probe-tag OCR.
//
// A decoded ultrasound frame is cropped to the model-specific tag box and
// turned into an ordered ladder of binarized candidate images. Each candidate
// is one preprocessing hypothesis (threshold method, upscale factor, dilation
// radius) about what will make the burned-in text legible to Tesseract.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner:
//   - X: column (0 = leftmost pixel)
//   - Y: row (0 = topmost pixel)
//   - For boxes, Min is inclusive and Max is exclusive
//
// Frames use numpy-style shapes, so Shape[0] is the row count (height) and
// Shape[1] is the column count (width).
//
// # Candidate Order
//
// ProcessConfigs returns the fixed 12-entry search order
// threshold {binary, otsu} x upscale {1, 2} x dilation {0, 1, 3}, varying the
// dilation radius fastest. The order is part of the contract: batch runs that
// checkpoint and resume rely on identical candidates being tried in identical
// order.
//
// # Box Calibration
//
// FindTextRegions proposes tag boxes for a model that has none configured.
// It scores text-sized windows by edge density and by how much of the edge
// structure runs along rows, then merges overlapping windows.
//
// # Thread Safety
//
// Frames are never mutated. A Ladder is single-use and must not be shared
// between goroutines, but independent ladders over the same frame are safe.
//
// # Error Handling
//
// The only hard failure is a frame that is not exactly two-dimensional
// (*InvalidDimensionError). Boxes that fall partly or wholly outside the frame
// are clamped and may produce empty candidates; OCR simply finds no text in
// them. An inverted box crops to nothing. Callers that accept boxes from
// users should reject those first with BoundingBox.Validate.
package imaging
