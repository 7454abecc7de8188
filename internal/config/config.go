// Package config loads the tagger configuration: defaults in code, an
// optional TOML file, a .env file and USTAG_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"github.com/ironsheep/us-probe-tag/internal/imaging"
	"github.com/ironsheep/us-probe-tag/internal/tagger"
)

const appName = "us-probe-tag"

// Environment overrides.
const (
	EnvLogLevel       = "USTAG_LOG_LEVEL"
	EnvOCRTimeout     = "USTAG_OCR_TIMEOUT"
	EnvTessdataPrefix = "USTAG_TESSDATA_PREFIX"
	EnvVocabulary     = "USTAG_VOCABULARY"
	EnvPolicy         = "USTAG_POLICY"
)

type Config struct {
	LogLevel   string                         `toml:"log_level"`
	OCR        OCRConfig                      `toml:"ocr"`
	Resolver   ResolverConfig                 `toml:"resolver"`
	Vocabulary VocabularyConfig               `toml:"vocabulary"`
	Models     map[string]imaging.BoundingBox `toml:"models"`
	Fields     []FieldConfig                  `toml:"fields"`
}

type OCRConfig struct {
	Language       string `toml:"language"`
	TessdataPrefix string `toml:"tessdata_prefix"`
	Whitelist      string `toml:"whitelist"`
	// Timeout bounds one OCR call, as a Go duration string. "0" disables it.
	Timeout string `toml:"timeout"`
}

type ResolverConfig struct {
	Policy string `toml:"policy"` // "last_wins" or "best_of_all"
	Trace  bool   `toml:"trace"`
}

type VocabularyConfig struct {
	Path   string   `toml:"path"`
	Extras []string `toml:"extras"`
	Watch  bool     `toml:"watch"`
}

type FieldConfig struct {
	Name        string              `toml:"name"`
	Box         imaging.BoundingBox `toml:"box"`
	Pattern     string              `toml:"pattern"`
	Parser      string              `toml:"parser"`
	OnlyForTags []string            `toml:"only_for_tags"`
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		OCR: OCRConfig{
			Language: "eng",
			Timeout:  tagger.DefaultTimeout.String(),
		},
		Resolver: ResolverConfig{
			Policy: tagger.LastWins.String(),
		},
		Vocabulary: VocabularyConfig{
			Extras: []string{"CERVIX"},
		},
		Models: map[string]imaging.BoundingBox{
			"V830":   imaging.Box(40, 75, 255, 190),
			"LOGIQe": imaging.Box(0, 55, 200, 160),
		},
		Fields: []FieldConfig{
			{Name: "Depth", Box: imaging.Box(395, 45, 470, 70), Pattern: `\d+\.\d*CM`, Parser: "depth"},
			{Name: "Gain", Box: imaging.Box(940, 120, 960, 137), Pattern: `-?\d+\.?\d*`},
			{Name: "GA", Box: imaging.Box(65, 45, 390, 70), Pattern: `^(GA=\d\d?W[0-7]D)`, Parser: "ga"},
			{Name: "Obesity", Box: imaging.Box(865, 690, 960, 715), Pattern: `D\s?\d+\.\d*CM`, Parser: "obesity", OnlyForTags: []string{"CERVIX"}},
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/us-probe-tag/config.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// LoadConfigFromFile decodes path over the defaults. A missing file yields
// the defaults. Tables such as [models] merge with the defaults; arrays such
// as [[fields]] replace them.
func LoadConfigFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode TOML config: %w", err)
	}

	return config, nil
}

// Load reads .env (if present), the config file at path (DefaultPath when
// empty), applies the environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		path = DefaultPath()
	}
	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the USTAG_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvOCRTimeout); ok && v != "" {
		c.OCR.Timeout = v
	}
	if v, ok := lookup(EnvTessdataPrefix); ok && v != "" {
		c.OCR.TessdataPrefix = v
	}
	if v, ok := lookup(EnvVocabulary); ok && v != "" {
		c.Vocabulary.Path = v
	}
	if v, ok := lookup(EnvPolicy); ok && v != "" {
		c.Resolver.Policy = v
	}
}

// Validate checks every setting that could otherwise fail at first use.
func (c *Config) Validate() error {
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("no models configured")
	}
	for _, name := range c.ModelNames() {
		if err := c.Models[name].Validate(); err != nil {
			return fmt.Errorf("model %s: %w", name, err)
		}
	}
	if _, err := c.TaggerFields(); err != nil {
		return err
	}
	return nil
}

// Timeout parses the OCR timeout.
func (c *Config) Timeout() (time.Duration, error) {
	if c.OCR.Timeout == "" {
		return tagger.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.OCR.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid OCR timeout %q: %w", c.OCR.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("OCR timeout must not be negative, got %s", d)
	}
	return d, nil
}

// Policy parses the exhaustion policy.
func (c *Config) Policy() (tagger.Policy, error) {
	return tagger.ParsePolicy(c.Resolver.Policy)
}

// ModelNames lists the configured models, sorted.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaggerFields compiles the field table.
func (c *Config) TaggerFields() ([]tagger.Field, error) {
	fields := make([]tagger.Field, 0, len(c.Fields))
	seen := make(map[string]bool, len(c.Fields))
	for i, f := range c.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("field %s is defined twice", f.Name)
		}
		seen[f.Name] = true

		if err := f.Box.Validate(); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if f.Pattern == "" {
			return nil, fmt.Errorf("field %s has no pattern", f.Name)
		}
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return nil, fmt.Errorf("field %s: invalid pattern: %w", f.Name, err)
		}
		parse, err := tagger.Parser(f.Parser)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		fields = append(fields, tagger.Field{
			Name:        f.Name,
			Box:         f.Box,
			Pattern:     re,
			OnlyForTags: f.OnlyForTags,
			Parse:       parse,
		})
	}
	return fields, nil
}

// FieldNames returns the field names in table order.
func (c *Config) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}
