// Package ocr is the boundary between the tag resolver and the OCR engine.
//
// The resolver only sees Observation values: the word tokens an engine found
// in one candidate image, each with an integer confidence on Tesseract's
// 0-100 scale. Any engine that can produce them satisfies Engine, so tests
// drive the resolver with scripted EngineFunc values and production code uses
// Tesseract.
//
// # Prerequisites
//
// Tesseract must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// The tessdata directory can be overridden with Tesseract.TessdataPrefix
// (the CLI reads it from configuration or USTAG_TESSDATA_PREFIX).
//
// # Modes
//
// Vocabulary mode treats the image as sparse text with orientation detection
// (Tesseract page segmentation mode 12), which suits short tags sitting
// anywhere in the crop. Pattern mode treats the image as a single text line
// (mode 7), which suits one-line fields such as "GA=12W3D" or "14.5cm".
//
// # Timeouts
//
// Tesseract calls cannot be interrupted. Tesseract.Recognize returns as soon
// as its context is done and lets the abandoned call finish in the
// background, closing its own client.
package ocr
