package tagger

import (
	"context"
	"log/slog"
	"regexp"
	"sort"

	"github.com/ironsheep/us-probe-tag/internal/imaging"
	"github.com/ironsheep/us-probe-tag/internal/vocab"
)

// untaggedTypes are instance types that never carry a probe tag.
var untaggedTypes = map[string]bool{
	vocab.Unknown:                    true,
	"ge kretz image":                 true,
	"Secondary capture image report": true,
	"Comprehensive SR":               true,
	"3D Dicom Volume":                true,
}

// Taggable reports whether an instance of type typ can carry a probe tag.
func Taggable(typ string) bool {
	return !untaggedTypes[typ]
}

// VocabularySource supplies the current vocabulary. Both *vocab.Vocabulary
// and *vocab.Watcher implement it.
type VocabularySource interface {
	Current() *vocab.Vocabulary
}

// Field is a pattern-extracted value burned into the frame.
type Field struct {
	Name    string
	Box     imaging.BoundingBox
	Pattern *regexp.Regexp
	// OnlyForTags restricts the field to frames carrying one of these tags.
	// Empty means every tag.
	OnlyForTags []string
	// Parse converts the matched text to a number. Optional.
	Parse func(string) (float64, error)
}

func (f Field) appliesTo(tag string) bool {
	if len(f.OnlyForTags) == 0 {
		return true
	}
	for _, t := range f.OnlyForTags {
		if t == tag {
			return true
		}
	}
	return false
}

// FieldResult is the outcome for one field. Text is empty unless Found.
type FieldResult struct {
	Name       string  `json:"name"`
	Text       string  `json:"text"`
	Confidence int     `json:"confidence"`
	Found      bool    `json:"found"`
	Skipped    bool    `json:"skipped,omitempty"`
	Value      float64 `json:"value,omitempty"`
	HasValue   bool    `json:"has_value"`
	Attempts   int     `json:"attempts"`
}

// FrameInfo is a decoded frame plus the instance metadata that selects its
// box.
type FrameInfo struct {
	Frame imaging.Frame
	Type  string
	Model string
}

// Service applies the resolver with a fixed model box table, field table and
// vocabulary source.
type Service struct {
	resolver *Resolver
	vocab    VocabularySource
	boxes    map[string]imaging.BoundingBox
	fields   []Field
	logger   *slog.Logger
}

// NewService builds a service. boxes maps model names to tag boxes.
func NewService(resolver *Resolver, v VocabularySource, boxes map[string]imaging.BoundingBox, fields []Field, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver: resolver,
		vocab:    v,
		boxes:    boxes,
		fields:   fields,
		logger:   logger,
	}
}

// Resolver returns the underlying resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Vocabulary returns the current vocabulary snapshot.
func (s *Service) Vocabulary() *vocab.Vocabulary {
	return s.vocab.Current()
}

// Box returns the tag box for model.
func (s *Service) Box(model string) (imaging.BoundingBox, bool) {
	b, ok := s.boxes[model]
	return b, ok
}

// Models lists the models with a tag box, sorted.
func (s *Service) Models() []string {
	models := make([]string, 0, len(s.boxes))
	for m := range s.boxes {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Fields returns the configured fields.
func (s *Service) Fields() []Field {
	return s.fields
}

// TagFrame returns the probe tag for one frame.
//
// The instance type and model are checked before any image work:
//   - types that never carry a tag (Kretz volumes, reports, structured
//     reports, unreadable instances) yield vocab.Unknown
//   - models without a configured box yield vocab.Unknown
//
// Otherwise the frame is cropped to the model box and resolved against the
// current vocabulary snapshot, so a concurrent vocabulary reload never
// changes the vocabulary mid-call.
//
// # Errors
//
//   - Returns the precondition error, with a vocab.Unknown result, if the
//     frame is not 2-D
func (s *Service) TagFrame(ctx context.Context, info FrameInfo) (Result, error) {
	unknown := Result{Tag: vocab.Unknown, Confidence: -1}
	if !Taggable(info.Type) {
		s.logger.Debug("type carries no tag", "type", info.Type)
		return unknown, nil
	}
	box, ok := s.boxes[info.Model]
	if !ok {
		s.logger.Debug("no tag box for model", "model", info.Model)
		return unknown, nil
	}

	res, err := s.resolver.ExtractTag(ctx, info.Frame, box, s.vocab.Current())
	if err != nil {
		return unknown, err
	}
	return res, nil
}

// ExtractFields runs every field that applies to tag. Fields that do not
// apply are reported as skipped. The only error is a frame that is not 2-D.
func (s *Service) ExtractFields(ctx context.Context, frame imaging.Frame, tag string) (map[string]FieldResult, error) {
	out := make(map[string]FieldResult, len(s.fields))
	for _, f := range s.fields {
		if !f.appliesTo(tag) {
			out[f.Name] = FieldResult{Name: f.Name, Confidence: -1, Skipped: true}
			continue
		}

		res, err := s.resolver.ExtractField(ctx, frame, f.Box, f.Pattern)
		if err != nil {
			return nil, err
		}

		fr := FieldResult{Name: f.Name, Confidence: res.Confidence, Attempts: res.Attempts}
		if res.Accepted {
			fr.Found = true
			fr.Text = res.Tag
			if f.Parse != nil {
				v, err := f.Parse(res.Tag)
				if err != nil {
					s.logger.Warn("cannot parse field value", "field", f.Name, "text", res.Tag, "error", err)
				} else {
					fr.Value, fr.HasValue = v, true
				}
			}
		}
		out[f.Name] = fr
	}
	return out, nil
}
