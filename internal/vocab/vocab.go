// Package vocab holds the allow-list of probe tags the resolver may accept.
package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Sentinel results. They are always valid outcomes but never OCR matches.
const (
	Unknown   = "Unknown"
	Undecided = "Undecided"
	NoTag     = "No tag"
)

// ErrEmptyVocabulary is returned when a vocabulary file lists no tags.
var ErrEmptyVocabulary = errors.New("vocabulary has no tags")

var defaultTags = []string{
	"M", "C1", "C2", "C3", "C4", "C5", "C6",
	"R15", "R45", "R0", "RO", "R1",
	"L15", "L45", "L0", "LO", "L1",
	"M0", "M1", "RTA", "RTB", "RTC",
}

// DefaultExtras are appended to every loaded vocabulary.
var DefaultExtras = []string{"CERVIX"}

// Vocabulary is an immutable set of accepted tags.
type Vocabulary struct {
	tags  map[string]struct{}
	order []string
}

// New builds a vocabulary from tags, trimming whitespace and dropping blanks
// and duplicates.
func New(tags ...string) *Vocabulary {
	v := &Vocabulary{tags: make(map[string]struct{}, len(tags))}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := v.tags[t]; dup {
			continue
		}
		v.tags[t] = struct{}{}
		v.order = append(v.order, t)
	}
	return v
}

// Default returns the built-in probe tag list, without extras.
func Default() *Vocabulary {
	return New(defaultTags...)
}

// Load reads one tag per line from path. Blank lines and lines starting
// with '#' are ignored.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer f.Close()

	var tags []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tags = append(tags, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary %s: %w", path, err)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyVocabulary)
	}
	return New(tags...), nil
}

// LoadOrDefault loads path, falling back to Default when path is empty or
// unreadable. The load error is returned alongside the fallback so callers
// can report it. extras are added in both cases.
func LoadOrDefault(path string, extras ...string) (*Vocabulary, error) {
	if path == "" {
		return Default().With(extras...), nil
	}
	v, err := Load(path)
	if err != nil {
		return Default().With(extras...), err
	}
	return v.With(extras...), nil
}

// With returns a new vocabulary containing v's tags followed by extra.
func (v *Vocabulary) With(extra ...string) *Vocabulary {
	return New(append(v.Tags(), extra...)...)
}

// Contains reports whether tag is an accepted OCR result.
func (v *Vocabulary) Contains(tag string) bool {
	if v == nil {
		return false
	}
	_, ok := v.tags[tag]
	return ok
}

// Valid reports whether tag is an accepted tag or one of the sentinels.
func (v *Vocabulary) Valid(tag string) bool {
	return IsSentinel(tag) || v.Contains(tag)
}

// Tags returns the tags in load order.
func (v *Vocabulary) Tags() []string {
	if v == nil {
		return nil
	}
	return append([]string(nil), v.order...)
}

// Len returns the number of tags.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.order)
}

// IsSentinel reports whether s is Unknown, Undecided or NoTag.
func IsSentinel(s string) bool {
	return s == Unknown || s == Undecided || s == NoTag
}

// IsFailure reports whether s is a resolver failure verdict.
func IsFailure(s string) bool {
	return s == Undecided || s == NoTag
}

// Current returns v itself, so a fixed vocabulary can stand in wherever a
// Watcher is accepted.
func (v *Vocabulary) Current() *Vocabulary {
	return v
}
