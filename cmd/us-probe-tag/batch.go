package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ironsheep/us-probe-tag/internal/dicomsrc"
	"github.com/ironsheep/us-probe-tag/internal/imaging"
	"github.com/ironsheep/us-probe-tag/internal/tagger"
	"github.com/ironsheep/us-probe-tag/internal/vocab"
)

// expandPaths replaces each directory argument with the regular files below
// it, skipping dot files and dot directories.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			hidden := path != arg && strings.HasPrefix(d.Name(), ".")
			if d.IsDir() {
				if hidden {
					return filepath.SkipDir
				}
				return nil
			}
			if !hidden && d.Type().IsRegular() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}
	return paths, nil
}

// runPool applies fn to every path on at most workers goroutines. Results
// keep the input order. Paths not started before ctx is done are skipped and
// their results left zero.
func runPool[T any](ctx context.Context, paths []string, workers int, fn func(context.Context, string) T) []T {
	if workers < 1 {
		workers = 1
	}
	results := make([]T, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = fn(ctx, paths[i])
			}
		}()
	}

feed:
	for i := range paths {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

// openOutput returns stdout for "" or "-", else a new file.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// loadInstance reads path, logging failures. A nil instance means the file
// could not be read at all.
func loadInstance(logger *slog.Logger, path string) *dicomsrc.Instance {
	in, err := dicomsrc.Load(path)
	if err != nil {
		logger.Warn("failed to read file", "path", path, "error", err)
		if in != nil {
			// Known type and model, but no usable frame.
			in.HasFrame = false
		}
	}
	return in
}

// === tag ===

type tagRow struct {
	File       string
	Type       string
	Tag        string
	Confidence int
}

func tagFile(ctx context.Context, service *tagger.Service, logger *slog.Logger, path string) tagRow {
	row := tagRow{File: path, Type: dicomsrc.TypeUnknown, Tag: vocab.Unknown, Confidence: -1}
	in := loadInstance(logger, path)
	if in == nil {
		return row
	}
	row.Type = in.Type
	if !in.HasFrame {
		return row
	}

	res, err := service.TagFrame(ctx, in.FrameInfo())
	if err != nil {
		logger.Warn("failed to tag frame", "path", path, "error", err)
	}
	row.Tag = res.Tag
	row.Confidence = res.Confidence
	logger.Debug("tagged", "path", path, "model", in.Model, "tag", res.Tag, "confidence", res.Confidence, "attempts", res.Attempts)
	return row
}

func writeTagCSV(w io.Writer, rows []tagRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"File", "type", "tag"}); err != nil {
		return err
	}
	for _, r := range rows {
		if r.File == "" {
			continue
		}
		if err := cw.Write([]string{r.File, r.Type, r.Tag}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// tagCounts tallies rows by tag.
func tagCounts(rows []tagRow) map[string]int {
	counts := make(map[string]int)
	for _, r := range rows {
		if r.File != "" {
			counts[r.Tag]++
		}
	}
	return counts
}

// printSummary writes one line per tag, sentinels last.
func printSummary(w io.Writer, counts map[string]int, runID string) {
	var tags []string
	total := 0
	for tag, n := range counts {
		total += n
		if !vocab.IsSentinel(tag) {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)

	bold := color.New(color.Bold)
	bold.Fprintf(w, "%d files (run %s)\n", total, runID)
	for _, tag := range tags {
		fmt.Fprintf(w, "  %-10s %s\n", tag, color.GreenString("%d", counts[tag]))
	}
	for _, tag := range []string{vocab.Undecided, vocab.NoTag, vocab.Unknown} {
		if n := counts[tag]; n > 0 {
			c := color.YellowString
			if tag == vocab.Unknown {
				c = color.RedString
			}
			fmt.Fprintf(w, "  %-10s %s\n", tag, c("%d", n))
		}
	}
}

func newTagCmd(ctx context.Context, load func() (*app, error)) *cobra.Command {
	var (
		output  string
		workers int
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "tag FILE|DIR...",
		Short: "Resolve the probe tag of each file and write File,type,tag CSV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}

			runID := uuid.New().String()
			logger := a.logger.With("run", runID)
			logger.Info("tagging", "files", len(paths), "workers", workers)

			rows := runPool(ctx, paths, workers, func(ctx context.Context, path string) tagRow {
				return tagFile(ctx, a.service, logger, path)
			})

			out, err := openOutput(output)
			if err != nil {
				return err
			}
			defer out.Close()
			if err := writeTagCSV(out, rows); err != nil {
				return fmt.Errorf("failed to write CSV: %w", err)
			}

			if !quiet {
				printSummary(cmd.ErrOrStderr(), tagCounts(rows), runID)
			}
			return ctx.Err()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV output file (default stdout)")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Files processed in parallel")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the summary")
	return cmd
}

// === fields ===

type fieldsRow struct {
	File   string
	Tag    string
	Fields map[string]tagger.FieldResult
}

func fieldsFile(ctx context.Context, service *tagger.Service, logger *slog.Logger, path string) fieldsRow {
	row := fieldsRow{File: path, Tag: vocab.Unknown}
	in := loadInstance(logger, path)
	if in == nil || !in.HasFrame {
		return row
	}

	res, err := service.TagFrame(ctx, in.FrameInfo())
	if err != nil {
		logger.Warn("failed to tag frame", "path", path, "error", err)
		return row
	}
	row.Tag = res.Tag

	fields, err := service.ExtractFields(ctx, in.Frame, res.Tag)
	if err != nil {
		logger.Warn("failed to read fields", "path", path, "error", err)
		return row
	}
	row.Fields = fields
	return row
}

// fieldsHeader is File, Tag, one text column per field, then one numeric
// column per field that has a parser.
func fieldsHeader(fields []tagger.Field) []string {
	header := []string{"File", "Tag"}
	for _, f := range fields {
		header = append(header, f.Name)
	}
	for _, f := range fields {
		if f.Parse != nil {
			header = append(header, f.Name+"Num")
		}
	}
	return header
}

func writeFieldsCSV(w io.Writer, fields []tagger.Field, rows []fieldsRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fieldsHeader(fields)); err != nil {
		return err
	}
	for _, r := range rows {
		if r.File == "" {
			continue
		}
		record := []string{r.File, r.Tag}
		for _, f := range fields {
			record = append(record, r.Fields[f.Name].Text)
		}
		for _, f := range fields {
			if f.Parse == nil {
				continue
			}
			num := ""
			if fr := r.Fields[f.Name]; fr.HasValue {
				num = strconv.FormatFloat(fr.Value, 'f', -1, 64)
			}
			record = append(record, num)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func newFieldsCmd(ctx context.Context, load func() (*app, error)) *cobra.Command {
	var (
		output  string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "fields FILE|DIR...",
		Short: "Resolve the tag and read the pattern fields of each file as CSV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}

			runID := uuid.New().String()
			logger := a.logger.With("run", runID)
			logger.Info("reading fields", "files", len(paths), "workers", workers)

			rows := runPool(ctx, paths, workers, func(ctx context.Context, path string) fieldsRow {
				return fieldsFile(ctx, a.service, logger, path)
			})

			out, err := openOutput(output)
			if err != nil {
				return err
			}
			defer out.Close()
			if err := writeFieldsCSV(out, a.service.Fields(), rows); err != nil {
				return fmt.Errorf("failed to write CSV: %w", err)
			}
			return ctx.Err()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV output file (default stdout)")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Files processed in parallel")
	return cmd
}

// === preprocess ===

// candidateFileName names a candidate PNG after its source and configuration.
func candidateFileName(path string, c imaging.Candidate) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return fmt.Sprintf("%s_%02d_%s_x%d_ball%d.png", base, c.Index, c.Config.Threshold, c.Config.Scale, c.Config.Ball)
}

func writeCandidates(dir, path string, ladder *imaging.Ladder, invert bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	var written []string
	for _, c := range ladder.All() {
		img := c.Image
		if invert {
			img = imaging.Invert(img)
		}
		name := filepath.Join(dir, candidateFileName(path, c))
		f, err := os.Create(name)
		if err != nil {
			return written, err
		}
		err = png.Encode(f, img)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}

func newPreprocessCmd(load func() (*app, error)) *cobra.Command {
	var (
		model   string
		boxJSON string
		outDir  string
		rescale bool
		invert  bool
	)
	cmd := &cobra.Command{
		Use:   "preprocess FILE",
		Short: "Write the 12 candidate images the resolver tries for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			in, err := dicomsrc.Load(args[0])
			if err != nil {
				return err
			}
			if !in.HasFrame {
				return fmt.Errorf("%s (%s) has no frame to read", in.Path, in.Type)
			}
			if model != "" {
				in.Model = model
			}

			var box imaging.BoundingBox
			if boxJSON != "" {
				if err := json.Unmarshal([]byte(boxJSON), &box); err != nil {
					return err
				}
			} else {
				var ok bool
				if box, ok = a.service.Box(in.Model); !ok {
					return fmt.Errorf("no tag box for model %q; pass --model or --box", in.Model)
				}
			}

			var opts []imaging.LadderOption
			if rescale {
				opts = append(opts, imaging.WithRescale())
			}
			ladder, err := imaging.NewLadder(in.Frame, box, opts...)
			if err != nil {
				return err
			}

			written, err := writeCandidates(outDir, in.Path, ladder, invert)
			for _, name := range written {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Capture device model (overrides the file)")
	cmd.Flags().StringVarP(&boxJSON, "box", "b", "", "Explicit box as [[x0,y0],[x1,y1]]")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory for the candidate PNGs")
	cmd.Flags().BoolVar(&rescale, "rescale", false, "Stretch the region to 0..255 first, as field extraction does")
	cmd.Flags().BoolVar(&invert, "invert", false, "Write dark text on a light background")
	return cmd
}
