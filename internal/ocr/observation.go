package ocr

import (
	"context"
	"image"
	"strings"
)

// Mode selects how the engine segments a candidate image.
type Mode int

const (
	// ModeVocabulary reads sparse short tokens (page segmentation mode 12).
	ModeVocabulary Mode = iota
	// ModePattern reads a single line of text (page segmentation mode 7).
	ModePattern
)

func (m Mode) String() string {
	if m == ModePattern {
		return "pattern"
	}
	return "vocabulary"
}

// NoConfidence is the confidence reported when nothing was detected.
const NoConfidence = -1

// Token is one recognized word and the engine's confidence in it.
type Token struct {
	Text       string `json:"text"`
	Confidence int    `json:"confidence"`
}

// Observation holds every token found in one candidate image.
type Observation struct {
	Tokens []Token `json:"tokens"`
}

// Empty reports whether the engine found no tokens at all.
func (o Observation) Empty() bool {
	return len(o.Tokens) == 0
}

// Top returns the first token with the highest confidence. ok is false when
// the observation is empty.
func (o Observation) Top() (tok Token, ok bool) {
	for i, t := range o.Tokens {
		if i == 0 || t.Confidence > tok.Confidence {
			tok = t
		}
	}
	return tok, len(o.Tokens) > 0
}

// MaxConfidence returns the highest token confidence, or NoConfidence.
func (o Observation) MaxConfidence() int {
	if top, ok := o.Top(); ok {
		return top.Confidence
	}
	return NoConfidence
}

func (o Observation) String() string {
	parts := make([]string, len(o.Tokens))
	for i, t := range o.Tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// Engine recognizes text in a candidate image.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, mode Mode) (Observation, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, img image.Image, mode Mode) (Observation, error)

// Recognize calls f.
func (f EngineFunc) Recognize(ctx context.Context, img image.Image, mode Mode) (Observation, error) {
	return f(ctx, img, mode)
}
