package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/us-probe-tag/internal/imaging"
	"github.com/ironsheep/us-probe-tag/internal/tagger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}

	if got := cfg.Models["V830"]; got != imaging.Box(40, 75, 255, 190) {
		t.Errorf("V830 box = %s", got)
	}
	if _, ok := cfg.Models["LOGIQeCine"]; ok {
		t.Error("LOGIQeCine must not have a box")
	}

	fields, err := cfg.TaggerFields()
	if err != nil {
		t.Fatalf("TaggerFields: %v", err)
	}
	names := strings.Join(cfg.FieldNames(), ",")
	if names != "Depth,Gain,GA,Obesity" || len(fields) != 4 {
		t.Errorf("fields = %s", names)
	}
	if fields[3].OnlyForTags[0] != "CERVIX" {
		t.Errorf("Obesity restricted to %v", fields[3].OnlyForTags)
	}

	d, _ := cfg.Timeout()
	if d != 10*time.Second {
		t.Errorf("timeout = %s", d)
	}
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}
	if cfg.OCR.Language != "eng" {
		t.Errorf("language = %q", cfg.OCR.Language)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[ocr]
timeout = "3s"
tessdata_prefix = "/opt/tessdata"

[resolver]
policy = "best_of_all"

[vocabulary]
path = "/etc/tags.txt"
extras = ["CERVIX", "PLACENTA"]

[models]
Voluson = [[10, 20], [110, 60]]

[[fields]]
name = "Depth"
box = [[1, 2], [3, 4]]
pattern = '\d+CM'
parser = "depth"
`)

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.OCR.TessdataPrefix != "/opt/tessdata" {
		t.Errorf("got %+v", cfg)
	}
	if p, _ := cfg.Policy(); p != tagger.BestOfAll {
		t.Errorf("policy = %v", p)
	}
	if d, _ := cfg.Timeout(); d != 3*time.Second {
		t.Errorf("timeout = %s", d)
	}
	if got := cfg.Models["Voluson"]; got != imaging.Box(10, 20, 110, 60) {
		t.Errorf("Voluson box = %s", got)
	}
	if _, ok := cfg.Models["V830"]; !ok {
		t.Error("default models should be kept alongside file models")
	}
	if len(cfg.Fields) != 1 || cfg.Fields[0].Box != imaging.Box(1, 2, 3, 4) {
		t.Errorf("fields = %+v", cfg.Fields)
	}
	if len(cfg.Vocabulary.Extras) != 2 {
		t.Errorf("extras = %v", cfg.Vocabulary.Extras)
	}
}

func TestLoadConfigFromFile_BadBox(t *testing.T) {
	path := writeConfig(t, `
[models]
Broken = [[1, 2, 3]]
`)
	if _, err := LoadConfigFromFile(path); err == nil {
		t.Error("expected error for malformed box")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:       "warn",
		EnvOCRTimeout:     "250ms",
		EnvTessdataPrefix: "/tess",
		EnvVocabulary:     "/tags.txt",
		EnvPolicy:         "best-of-all",
	}
	cfg := NewDefaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.LogLevel != "warn" || cfg.OCR.TessdataPrefix != "/tess" || cfg.Vocabulary.Path != "/tags.txt" {
		t.Errorf("got %+v", cfg)
	}
	if d, _ := cfg.Timeout(); d != 250*time.Millisecond {
		t.Errorf("timeout = %s", d)
	}
	if p, err := cfg.Policy(); err != nil || p != tagger.BestOfAll {
		t.Errorf("policy = %v, %v", p, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errSub string
	}{
		{"bad timeout", func(c *Config) { c.OCR.Timeout = "soon" }, "timeout"},
		{"negative timeout", func(c *Config) { c.OCR.Timeout = "-1s" }, "negative"},
		{"bad policy", func(c *Config) { c.Resolver.Policy = "vote" }, "policy"},
		{"no models", func(c *Config) { c.Models = nil }, "no models"},
		{"inverted box", func(c *Config) { c.Models["V830"] = imaging.Box(50, 50, 10, 10) }, "V830"},
		{"bad pattern", func(c *Config) { c.Fields[0].Pattern = "(" }, "Depth"},
		{"bad parser", func(c *Config) { c.Fields[1].Parser = "bmi" }, "Gain"},
		{"duplicate field", func(c *Config) { c.Fields[1].Name = "Depth" }, "twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.errSub)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	if !strings.HasSuffix(DefaultPath(), filepath.Join("us-probe-tag", "config.toml")) {
		t.Errorf("DefaultPath() = %s", DefaultPath())
	}
}
