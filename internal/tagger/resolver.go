package tagger

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/ironsheep/us-probe-tag/internal/imaging"
	"github.com/ironsheep/us-probe-tag/internal/ocr"
	"github.com/ironsheep/us-probe-tag/internal/vocab"
)

// DefaultTimeout bounds a single OCR call.
const DefaultTimeout = 10 * time.Second

// Policy picks the result when no candidate is accepted.
type Policy int

const (
	// LastWins returns the verdict of the last candidate tried.
	LastWins Policy = iota
	// BestOfAll returns the highest-confidence verdict, earliest on ties.
	BestOfAll
)

func (p Policy) String() string {
	if p == BestOfAll {
		return "best_of_all"
	}
	return "last_wins"
}

// ParsePolicy accepts "last_wins" or "best_of_all" (case-insensitive, with
// '-' or '_').
func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "last_wins", "last":
		return LastWins, nil
	case "best_of_all", "best":
		return BestOfAll, nil
	default:
		return LastWins, fmt.Errorf("unknown exhaustion policy %q", s)
	}
}

// State is the resolver state for one extraction call.
type State int

const (
	StateStart State = iota
	StateTrying
	StateAccept
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateTrying:
		return "trying"
	case StateAccept:
		return "accept"
	case StateExhausted:
		return "exhausted"
	default:
		return "start"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Attempt is the verdict for one candidate.
type Attempt struct {
	Index      int                   `json:"index"`
	Config     imaging.ProcessConfig `json:"config"`
	Tag        string                `json:"tag"`
	Token      string                `json:"token"`
	Confidence int                   `json:"confidence"`
	Accepted   bool                  `json:"accepted"`
	Err        string                `json:"error,omitempty"`
}

// Result is the outcome of one extraction call.
type Result struct {
	// Tag is the accepted tag or field text, or a sentinel.
	Tag string `json:"tag"`
	// Token is the raw OCR text behind the verdict.
	Token      string `json:"token"`
	Confidence int    `json:"confidence"`
	Accepted   bool   `json:"accepted"`
	State      State  `json:"state"`
	// Attempts is the number of candidates evaluated.
	Attempts int                   `json:"attempts"`
	Index    int                   `json:"index"`
	Config   imaging.ProcessConfig `json:"config"`
	Trace    []Attempt             `json:"trace,omitempty"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPolicy sets the exhaustion policy.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) { r.policy = p }
}

// WithTimeout bounds each OCR call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithTrace records every attempt in Result.Trace.
func WithTrace() Option {
	return func(r *Resolver) { r.trace = true }
}

// Resolver drives an OCR engine over candidate ladders.
//
// For each candidate the engine is called once and its observation is turned
// into a verdict. The first accepted verdict ends the call; if none is
// accepted the Policy picks the result from the verdicts seen.
//
// Engine failures never abort a call. An error, a timeout or a panic inside
// the engine is recorded on that attempt and the candidate is treated as
// having produced no tokens.
//
// Resolver holds no per-call state and is safe for concurrent use by
// multiple goroutines. Ladders are not, so each call needs its own.
type Resolver struct {
	engine  ocr.Engine
	policy  Policy
	timeout time.Duration
	logger  *slog.Logger
	trace   bool
}

// New returns a resolver over engine.
//
// Without options the resolver uses LastWins, DefaultTimeout per OCR call,
// slog.Default() and no trace.
func New(engine ocr.Engine, opts ...Option) *Resolver {
	r := &Resolver{
		engine:  engine,
		policy:  LastWins,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured exhaustion policy.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Normalize upper-cases s and removes every non-alphanumeric rune.
func Normalize(s string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(s) {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ExtractTag crops frame to box and resolves it against v.
//
// Parameters:
//   - ctx: Cancels the call between candidates. The current OCR call is
//     bounded by the resolver timeout.
//   - frame: The decoded frame. Must be exactly two-dimensional.
//   - box: The model's tag box.
//   - v: The vocabulary snapshot to accept tags from.
//
// Returns:
//   - Result: The verdict. Tag is always set, to an accepted tag or to one
//     of vocab.Undecided or vocab.NoTag.
//   - error: Non-nil only if the frame is not 2-D, in which case no OCR ran.
func (r *Resolver) ExtractTag(ctx context.Context, frame imaging.Frame, box imaging.BoundingBox, v *vocab.Vocabulary) (Result, error) {
	ladder, err := imaging.NewLadder(frame, box)
	if err != nil {
		r.logger.Warn("cannot extract tag", "box", box.String(), "error", err)
		return Result{}, err
	}
	return r.ResolveTag(ctx, ladder, v), nil
}

// ExtractField crops frame to box, stretches its intensity range and
// resolves it against pattern.
//
// Tokens are upper-cased before matching and must match at their start. The
// first matching token of a candidate is accepted as is; when several match
// a warning is logged. Errors are as for ExtractTag.
func (r *Resolver) ExtractField(ctx context.Context, frame imaging.Frame, box imaging.BoundingBox, pattern *regexp.Regexp) (Result, error) {
	ladder, err := imaging.NewLadder(frame, box, imaging.WithRescale())
	if err != nil {
		r.logger.Warn("cannot extract field", "box", box.String(), "pattern", pattern.String(), "error", err)
		return Result{}, err
	}
	return r.ResolvePattern(ctx, ladder, pattern), nil
}

// ResolveTag runs the ladder in vocabulary mode.
//
// Only the top token of each observation is judged:
//   - no tokens, or confidence <= 0: vocab.Undecided
//   - whitespace only: vocab.NoTag
//   - Normalize(text) in v: accepted
//   - anything else: vocab.Undecided
func (r *Resolver) ResolveTag(ctx context.Context, ladder *imaging.Ladder, v *vocab.Vocabulary) Result {
	return r.resolve(ctx, ladder, ocr.ModeVocabulary, func(obs ocr.Observation) Attempt {
		return vocabularyVerdict(obs, v)
	})
}

// ResolvePattern runs the ladder in pattern mode.
func (r *Resolver) ResolvePattern(ctx context.Context, ladder *imaging.Ladder, pattern *regexp.Regexp) Result {
	return r.resolve(ctx, ladder, ocr.ModePattern, func(obs ocr.Observation) Attempt {
		a, matches := patternVerdict(obs, pattern)
		if matches > 1 {
			r.logger.Warn("more than one token matches pattern, using the first",
				"pattern", pattern.String(), "matches", matches, "token", a.Token)
		}
		return a
	})
}

func (r *Resolver) resolve(ctx context.Context, ladder *imaging.Ladder, mode ocr.Mode, verdict func(ocr.Observation) Attempt) Result {
	res := Result{Tag: vocab.Undecided, Confidence: ocr.NoConfidence, State: StateStart}
	var chosen *Attempt

	for {
		if ctx.Err() != nil {
			r.logger.Debug("extraction cancelled", "attempts", res.Attempts)
			break
		}
		c, ok := ladder.Next()
		if !ok {
			break
		}
		res.State = StateTrying
		res.Attempts++

		obs, err := r.recognize(ctx, c, mode)
		a := verdict(obs)
		a.Index, a.Config = c.Index, c.Config
		if err != nil {
			a.Err = err.Error()
		}
		r.logger.Debug("candidate verdict", "mode", mode.String(), "index", c.Index,
			"config", c.Config.String(), "tag", a.Tag, "token", a.Token, "confidence", a.Confidence)

		if r.trace {
			res.Trace = append(res.Trace, a)
		}

		if a.Accepted {
			chosen = &a
			res.State = StateAccept
			break
		}
		if chosen == nil || r.policy == LastWins || a.Confidence > chosen.Confidence {
			chosen = &a
		}
	}

	if res.State != StateAccept {
		res.State = StateExhausted
	}
	if chosen != nil {
		res.Tag, res.Token, res.Confidence = chosen.Tag, chosen.Token, chosen.Confidence
		res.Accepted = chosen.Accepted
		res.Index, res.Config = chosen.Index, chosen.Config
	}
	return res
}

// recognize runs one OCR call. Errors are reported but the returned
// observation is always usable: a failed call yields no tokens. A panicking
// engine counts as a failed call.
func (r *Resolver) recognize(ctx context.Context, c imaging.Candidate, mode ocr.Mode) (obs ocr.Observation, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("OCR panicked: %v", p)
			obs = ocr.Observation{}
			r.logger.Warn("OCR failed, treating candidate as empty", "index", c.Index, "config", c.Config.String(), "error", err)
		}
	}()

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	obs, err = r.engine.Recognize(callCtx, c.Image, mode)
	if err != nil {
		r.logger.Warn("OCR failed, treating candidate as empty", "index", c.Index, "config", c.Config.String(), "error", err)
		return ocr.Observation{}, err
	}
	return obs, nil
}

func vocabularyVerdict(obs ocr.Observation, v *vocab.Vocabulary) Attempt {
	top, ok := obs.Top()
	if !ok {
		return Attempt{Tag: vocab.Undecided, Confidence: ocr.NoConfidence}
	}
	if top.Confidence <= 0 {
		return Attempt{Tag: vocab.Undecided, Token: top.Text, Confidence: top.Confidence}
	}
	if strings.TrimSpace(top.Text) == "" {
		return Attempt{Tag: vocab.NoTag, Token: top.Text, Confidence: top.Confidence}
	}
	tag := Normalize(top.Text)
	if v.Contains(tag) {
		return Attempt{Tag: tag, Token: top.Text, Confidence: top.Confidence, Accepted: true}
	}
	return Attempt{Tag: vocab.Undecided, Token: top.Text, Confidence: top.Confidence}
}

// patternVerdict also returns how many tokens matched.
func patternVerdict(obs ocr.Observation, pattern *regexp.Regexp) (Attempt, int) {
	top, ok := obs.Top()
	if !ok || top.Confidence <= 0 {
		return Attempt{Tag: vocab.Undecided, Confidence: ocr.NoConfidence}, 0
	}

	var first *ocr.Token
	matches := 0
	for i, tok := range obs.Tokens {
		if matchesAtStart(pattern, strings.ToUpper(tok.Text)) {
			if first == nil {
				first = &obs.Tokens[i]
			}
			matches++
		}
	}
	if first != nil {
		return Attempt{Tag: first.Text, Token: first.Text, Confidence: first.Confidence, Accepted: true}, matches
	}
	if strings.TrimSpace(top.Text) == "" {
		return Attempt{Tag: vocab.NoTag, Token: top.Text, Confidence: ocr.NoConfidence}, 0
	}
	return Attempt{Tag: vocab.Undecided, Token: top.Text, Confidence: ocr.NoConfidence}, 0
}

// matchesAtStart reports whether pattern matches a prefix of s.
func matchesAtStart(pattern *regexp.Regexp, s string) bool {
	loc := pattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}
