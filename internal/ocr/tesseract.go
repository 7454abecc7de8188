package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is an Engine backed by a local Tesseract installation.
//
// Every Recognize call creates and closes its own gosseract client, so a
// single Tesseract value is safe for concurrent use.
type Tesseract struct {
	// Language is the Tesseract language code. Defaults to "eng".
	Language string

	// TessdataPrefix overrides the tessdata directory when non-empty.
	TessdataPrefix string

	// Whitelist restricts recognized characters when non-empty.
	Whitelist string

	// Variables are passed to Tesseract before recognition.
	Variables map[string]string
}

// NewTesseract returns an engine for the given language and tessdata prefix.
func NewTesseract(language, tessdataPrefix string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{Language: language, TessdataPrefix: tessdataPrefix}
}

// pageSegMode maps a resolver mode onto Tesseract page segmentation.
func pageSegMode(mode Mode) gosseract.PageSegMode {
	if mode == ModePattern {
		return gosseract.PSM_SINGLE_LINE
	}
	return gosseract.PSM_SPARSE_TEXT_OSD
}

type recognizeResult struct {
	obs Observation
	err error
}

// Recognize runs Tesseract over img and returns its word tokens. If ctx is
// done first, Recognize returns ctx.Err() without waiting for Tesseract.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, mode Mode) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}

	b := img.Bounds()
	if b.Empty() {
		return Observation{}, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Observation{}, fmt.Errorf("failed to encode candidate image: %w", err)
	}

	done := make(chan recognizeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- recognizeResult{err: fmt.Errorf("tesseract panicked: %v", p)}
			}
		}()
		obs, err := t.recognizeBytes(buf.Bytes(), mode)
		done <- recognizeResult{obs: obs, err: err}
	}()

	select {
	case res := <-done:
		return res.obs, res.err
	case <-ctx.Done():
		return Observation{}, fmt.Errorf("OCR abandoned: %w", ctx.Err())
	}
}

func (t *Tesseract) recognizeBytes(data []byte, mode Mode) (Observation, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if t.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			return Observation{}, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}

	lang := t.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		return Observation{}, fmt.Errorf("failed to set language: %w", err)
	}

	if err := client.SetPageSegMode(pageSegMode(mode)); err != nil {
		return Observation{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	if t.Whitelist != "" {
		if err := client.SetWhitelist(t.Whitelist); err != nil {
			return Observation{}, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}

	for k, v := range t.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return Observation{}, fmt.Errorf("failed to set variable %s: %w", k, err)
		}
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return Observation{}, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Observation{}, fmt.Errorf("OCR failed: %w", err)
	}

	obs := Observation{Tokens: make([]Token, 0, len(boxes))}
	for _, box := range boxes {
		obs.Tokens = append(obs.Tokens, Token{
			Text:       box.Word,
			Confidence: int(math.Round(box.Confidence)),
		})
	}
	return obs, nil
}

// Version returns the installed Tesseract version.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}

// Info describes the OCR backend.
type Info struct {
	Available      bool   `json:"available"`
	Version        string `json:"version,omitempty"`
	Backend        string `json:"backend"`
	Language       string `json:"language"`
	TessdataPrefix string `json:"tessdata_prefix,omitempty"`
}

// Info reports the backend version and settings.
func (t *Tesseract) Info() Info {
	prefix := t.TessdataPrefix
	if prefix == "" {
		prefix = os.Getenv("TESSDATA_PREFIX")
	}
	v := Version()
	return Info{
		Available:      v != "",
		Version:        v,
		Backend:        "gosseract",
		Language:       t.Language,
		TessdataPrefix: prefix,
	}
}
