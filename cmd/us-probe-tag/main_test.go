package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/us-probe-tag/internal/config"
	"github.com/ironsheep/us-probe-tag/internal/vocab"
)

func TestOpenVocabulary(t *testing.T) {
	dir := t.TempDir()
	tagFile := filepath.Join(dir, "tags.txt")
	if err := os.WriteFile(tagFile, []byte("ZZ9\nQQ1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.txt")

	tests := []struct {
		name        string
		cfg         config.VocabularyConfig
		wantWatcher bool
		wantTag     string
		wantDefault bool
	}{
		{"watched file", config.VocabularyConfig{Path: tagFile, Watch: true}, true, "ZZ9", false},
		{"unwatched file", config.VocabularyConfig{Path: tagFile}, false, "ZZ9", false},
		{"watched missing file", config.VocabularyConfig{Path: missing, Watch: true, Extras: []string{"CERVIX"}}, false, "CERVIX", true},
		{"unwatched missing file", config.VocabularyConfig{Path: missing}, false, "C1", true},
		{"no path", config.VocabularyConfig{Watch: true}, false, "C1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, watcher := openVocabulary(tt.cfg, quietLogger())
			if source == nil {
				t.Fatal("no vocabulary source")
			}
			if (watcher != nil) != tt.wantWatcher {
				t.Errorf("watcher = %v, want watcher %v", watcher, tt.wantWatcher)
			}

			v := source.Current()
			if !v.Contains(tt.wantTag) {
				t.Errorf("vocabulary missing %q", tt.wantTag)
			}
			if got := v.Contains("C1") && v.Len() >= vocab.Default().Len(); got != tt.wantDefault {
				t.Errorf("default vocabulary in use = %v, want %v", got, tt.wantDefault)
			}
		})
	}
}
