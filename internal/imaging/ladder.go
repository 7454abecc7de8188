package imaging

import (
	"fmt"
	"image"
)

// ThresholdMethod selects how a cropped region is binarized.
type ThresholdMethod int

const (
	ThresholdBinary ThresholdMethod = iota
	ThresholdOtsu
)

func (m ThresholdMethod) String() string {
	switch m {
	case ThresholdBinary:
		return "binary"
	case ThresholdOtsu:
		return "otsu"
	default:
		return fmt.Sprintf("ThresholdMethod(%d)", int(m))
	}
}

// MarshalText encodes the method by name.
func (m ThresholdMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the names written by MarshalText.
func (m *ThresholdMethod) UnmarshalText(text []byte) error {
	switch string(text) {
	case "binary":
		*m = ThresholdBinary
	case "otsu":
		*m = ThresholdOtsu
	default:
		return fmt.Errorf("unknown threshold method %q", text)
	}
	return nil
}

// ProcessConfig is one preprocessing hypothesis.
type ProcessConfig struct {
	Threshold ThresholdMethod `json:"threshold"`
	Scale     int             `json:"scale"`
	Ball      int             `json:"ball"`
}

func (c ProcessConfig) String() string {
	return fmt.Sprintf("%s/x%d/ball%d", c.Threshold, c.Scale, c.Ball)
}

var (
	thresholdOrder = []ThresholdMethod{ThresholdBinary, ThresholdOtsu}
	scaleOrder     = []int{1, 2}
	ballOrder      = []int{0, 1, 3}
)

// ProcessConfigs returns the 12 configurations in priority order.
//
// The order is threshold {binary, otsu}, then upscale {1, 2}, then dilation
// radius {0, 1, 3}, with the radius varying fastest:
//
//	 0 binary x1 ball0    6 otsu x1 ball0
//	 1 binary x1 ball1    7 otsu x1 ball1
//	 2 binary x1 ball3    8 otsu x1 ball3
//	 3 binary x2 ball0    9 otsu x2 ball0
//	 4 binary x2 ball1   10 otsu x2 ball1
//	 5 binary x2 ball3   11 otsu x2 ball3
//
// A fresh slice is returned on every call; callers may reorder it and pass
// it to WithConfigs.
func ProcessConfigs() []ProcessConfig {
	configs := make([]ProcessConfig, 0, len(thresholdOrder)*len(scaleOrder)*len(ballOrder))
	for _, t := range thresholdOrder {
		for _, s := range scaleOrder {
			for _, b := range ballOrder {
				configs = append(configs, ProcessConfig{Threshold: t, Scale: s, Ball: b})
			}
		}
	}
	return configs
}

// Apply runs threshold, upscale and dilation over an already cropped region.
func (c ProcessConfig) Apply(region *image.Gray) *image.Gray {
	var img *image.Gray
	switch c.Threshold {
	case ThresholdOtsu:
		img = BinarizeOtsu(region)
	default:
		img = Binarize(region)
	}
	img = Upscale(img, c.Scale)
	return Dilate(img, c.Ball)
}

// Candidate is one preprocessed image in the ladder.
type Candidate struct {
	Index  int
	Config ProcessConfig
	Image  *image.Gray
}

// LadderOption adjusts how a ladder prepares its region.
type LadderOption func(*Ladder)

// WithRescale stretches the cropped region to the full 0..255 range before
// thresholding. Pattern-field extraction uses it.
func WithRescale() LadderOption {
	return func(l *Ladder) { l.rescale = true }
}

// WithConfigs overrides the candidate order.
func WithConfigs(configs []ProcessConfig) LadderOption {
	return func(l *Ladder) { l.configs = configs }
}

// Ladder lazily yields candidates in fixed order.
//
// The region is cropped once in NewLadder and every candidate is derived
// from it on demand, so a resolver that stops at the first accepted
// candidate never pays for the rest.
//
// A Ladder is single-use: once Next returns false it stays exhausted. It is
// not safe for concurrent use.
//
// # Example Usage
//
//	ladder, err := imaging.NewLadder(frame, imaging.Box(395, 45, 470, 70))
//	if err != nil {
//	    return err
//	}
//	for c, ok := ladder.Next(); ok; c, ok = ladder.Next() {
//	    // OCR c.Image ...
//	}
type Ladder struct {
	region  *image.Gray
	configs []ProcessConfig
	next    int
	rescale bool
}

// NewLadder validates frame, crops it to box and prepares the candidate
// sequence.
//
// Parameters:
//   - frame: The decoded frame. Must be exactly two-dimensional.
//   - box: The tag box in frame coordinates. Boxes partly outside the frame
//     are clamped; boxes wholly outside, empty or inverted yield an empty
//     region whose candidates OCR reads as no text.
//   - opts: WithRescale, WithConfigs.
//
// Returns:
//   - *Ladder: Ready to yield Len() candidates.
//   - error: Non-nil only for a bad frame.
//
// # Errors
//
//   - Returns *InvalidDimensionError if the frame is not 2-D
//   - Returns ErrShapeMismatch if the frame data does not cover its shape
func NewLadder(frame Frame, box BoundingBox, opts ...LadderOption) (*Ladder, error) {
	gray, err := frame.Gray()
	if err != nil {
		return nil, err
	}

	l := &Ladder{configs: ProcessConfigs()}
	for _, opt := range opts {
		opt(l)
	}

	l.region = CropMargins(gray, box)
	if l.rescale {
		l.region = RescaleIntensity(l.region)
	}
	return l, nil
}

// Region returns the cropped (and possibly rescaled) tag region.
func (l *Ladder) Region() *image.Gray {
	return l.region
}

// Len returns the total number of candidates.
func (l *Ladder) Len() int {
	return len(l.configs)
}

// Next produces the next candidate, or false once the ladder is exhausted.
func (l *Ladder) Next() (Candidate, bool) {
	if l.next >= len(l.configs) {
		return Candidate{}, false
	}
	i := l.next
	l.next++
	cfg := l.configs[i]
	return Candidate{Index: i, Config: cfg, Image: cfg.Apply(l.region)}, true
}

// All drains the remaining candidates.
func (l *Ladder) All() []Candidate {
	var out []Candidate
	for {
		c, ok := l.Next()
		if !ok {
			return out
		}
		out = append(out, c)
	}
}
