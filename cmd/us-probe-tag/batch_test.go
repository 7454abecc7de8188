package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ironsheep/us-probe-tag/internal/imaging"
	"github.com/ironsheep/us-probe-tag/internal/ocr"
	"github.com/ironsheep/us-probe-tag/internal/tagger"
	"github.com/ironsheep/us-probe-tag/internal/vocab"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testService reads text on every OCR call. Any PNG is tagged through the
// "" model box so frame exports need no model.
func testService(text string) *tagger.Service {
	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image, mode ocr.Mode) (ocr.Observation, error) {
		return ocr.Observation{Tokens: []ocr.Token{{Text: text, Confidence: 80}}}, nil
	})
	boxes := map[string]imaging.BoundingBox{"": imaging.Box(0, 0, 40, 20)}
	fields := []tagger.Field{
		{Name: "Depth", Box: imaging.Box(0, 0, 40, 20), Pattern: regexp.MustCompile(`\d+\.\d*CM`), Parse: tagger.ParseDepth},
		{Name: "Gain", Box: imaging.Box(0, 0, 40, 20), Pattern: regexp.MustCompile(`-?\d+\.?\d*`)},
	}
	resolver := tagger.New(engine, tagger.WithLogger(quietLogger()))
	return tagger.NewService(resolver, vocab.Default(), boxes, fields, quietLogger())
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 256)
	}
	img.SetGray(1, 1, color.Gray{Y: 255})

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"b.dcm", "a.png", ".hidden", "sub/c.dcm", ".git/x"} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	single := filepath.Join(dir, "b.dcm")

	got, err := expandPaths([]string{dir, single})
	if err != nil {
		t.Fatalf("expandPaths: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.dcm"),
		filepath.Join(dir, "sub", "c.dcm"),
		single,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := expandPaths([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestRunPool(t *testing.T) {
	paths := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, workers := range []int{0, 1, 3, 20} {
		var calls atomic.Int32
		got := runPool(context.Background(), paths, workers, func(ctx context.Context, p string) string {
			calls.Add(1)
			return strings.ToUpper(p)
		})
		if strings.Join(got, "") != "ABCDEFG" {
			t.Errorf("workers=%d: got %v", workers, got)
		}
		if calls.Load() != int32(len(paths)) {
			t.Errorf("workers=%d: %d calls", workers, calls.Load())
		}
	}
}

func TestRunPool_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := runPool(ctx, []string{"a", "b", "c"}, 1, func(ctx context.Context, p string) string {
		return p
	})
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	for _, r := range got {
		if r != "" {
			t.Errorf("unexpected result %q after cancel", r)
		}
	}
}

func TestTagFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "frame.png")
	writePNG(t, good)
	bad := filepath.Join(dir, "broken.dcm")
	if err := os.WriteFile(bad, []byte("not dicom"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		text     string
		wantType string
		wantTag  string
	}{
		{"accepted", good, "r-15", "2d image", "R15"},
		{"undecided", good, "XYZ", "2d image", vocab.Undecided},
		{"no tag", good, " ", "2d image", vocab.NoTag},
		{"unreadable", bad, "C1", "Unknown", vocab.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := tagFile(context.Background(), testService(tt.text), quietLogger(), tt.path)
			if row.File != tt.path || row.Type != tt.wantType || row.Tag != tt.wantTag {
				t.Errorf("got %+v, want type %q tag %q", row, tt.wantType, tt.wantTag)
			}
		})
	}
}

func TestWriteTagCSV(t *testing.T) {
	rows := []tagRow{
		{File: "a.dcm", Type: "cine", Tag: "C1"},
		{},
		{File: "b,c.dcm", Type: "2d image", Tag: vocab.NoTag},
	}

	var buf bytes.Buffer
	if err := writeTagCSV(&buf, rows); err != nil {
		t.Fatalf("writeTagCSV: %v", err)
	}

	want := "File,type,tag\na.dcm,cine,C1\n\"b,c.dcm\",2d image,No tag\n"
	if buf.String() != want {
		t.Errorf("got\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestTagCountsAndSummary(t *testing.T) {
	rows := []tagRow{
		{File: "1", Tag: "C1"},
		{File: "2", Tag: "C1"},
		{File: "3", Tag: vocab.Unknown},
		{File: "4", Tag: vocab.NoTag},
		{},
	}
	counts := tagCounts(rows)
	want := map[string]int{"C1": 2, vocab.Unknown: 1, vocab.NoTag: 1}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("counts = %v, want %v", counts, want)
	}

	var buf bytes.Buffer
	printSummary(&buf, counts, "run-1")
	out := buf.String()
	for _, s := range []string{"4 files", "run-1", "C1", "Unknown", "No tag"} {
		if !strings.Contains(out, s) {
			t.Errorf("summary missing %q:\n%s", s, out)
		}
	}
	if strings.Contains(out, vocab.Undecided) {
		t.Errorf("summary lists a zero count:\n%s", out)
	}
}

func TestFieldsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")
	writePNG(t, path)

	svc := testService("14.5cm")
	row := fieldsFile(context.Background(), svc, quietLogger(), path)
	if row.Tag != vocab.Undecided {
		t.Errorf("tag = %q, want %q", row.Tag, vocab.Undecided)
	}

	var buf bytes.Buffer
	if err := writeFieldsCSV(&buf, svc.Fields(), []fieldsRow{row}); err != nil {
		t.Fatalf("writeFieldsCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "File,Tag,Depth,Gain,DepthNum" {
		t.Errorf("header = %q", lines[0])
	}
	// Gain's pattern also matches at the start, and keeps the raw token.
	want := path + ",Undecided,14.5cm,14.5cm,14.5"
	if lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}
}

func TestFieldsHeader_Default(t *testing.T) {
	fields := []tagger.Field{
		{Name: "Depth", Parse: tagger.ParseDepth},
		{Name: "Gain"},
		{Name: "GA", Parse: tagger.ParseGA},
		{Name: "Obesity", Parse: tagger.ParseObesity},
	}
	got := strings.Join(fieldsHeader(fields), ",")
	if got != "File,Tag,Depth,Gain,GA,Obesity,DepthNum,GANum,ObesityNum" {
		t.Errorf("header = %q", got)
	}
}

func TestWriteCandidates(t *testing.T) {
	frame := imaging.NewFrame(20, 40, bytes.Repeat([]byte{200}, 800))
	ladder, err := imaging.NewLadder(frame, imaging.Box(5, 5, 35, 15))
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	written, err := writeCandidates(dir, "/data/study/IM_0001.dcm", ladder, true)
	if err != nil {
		t.Fatalf("writeCandidates: %v", err)
	}
	if len(written) != 12 {
		t.Fatalf("wrote %d files, want 12", len(written))
	}
	if filepath.Base(written[0]) != "IM_0001_00_binary_x1_ball0.png" {
		t.Errorf("first file = %s", filepath.Base(written[0]))
	}
	if filepath.Base(written[11]) != "IM_0001_11_otsu_x2_ball3.png" {
		t.Errorf("last file = %s", filepath.Base(written[11]))
	}
	for _, name := range written {
		if _, err := os.Stat(name); err != nil {
			t.Error(err)
		}
	}
}
