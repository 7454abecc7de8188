package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ironsheep/us-probe-tag/internal/config"
	"github.com/ironsheep/us-probe-tag/internal/logger"
	"github.com/ironsheep/us-probe-tag/internal/ocr"
	"github.com/ironsheep/us-probe-tag/internal/server"
	"github.com/ironsheep/us-probe-tag/internal/tagger"
	"github.com/ironsheep/us-probe-tag/internal/vocab"
)

const appName = "us-probe-tag"

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// app is what every subcommand needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *tagger.Service
	watcher *vocab.Watcher
}

// newApp loads configuration and wires the resolver stack.
func newApp(configPath, logLevel string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log, ok := logger.InitLogger(cfg.LogLevel)
	if !ok {
		log.Warn("unknown log level, using info", "level", cfg.LogLevel)
	}

	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	fields, err := cfg.TaggerFields()
	if err != nil {
		return nil, err
	}

	engine := ocr.NewTesseract(cfg.OCR.Language, cfg.OCR.TessdataPrefix)
	engine.Whitelist = cfg.OCR.Whitelist

	opts := []tagger.Option{
		tagger.WithPolicy(policy),
		tagger.WithTimeout(timeout),
		tagger.WithLogger(log),
	}
	if cfg.Resolver.Trace {
		opts = append(opts, tagger.WithTrace())
	}
	resolver := tagger.New(engine, opts...)

	a := &app{cfg: cfg, logger: log}
	source, watcher := openVocabulary(cfg.Vocabulary, log)
	a.watcher = watcher

	a.service = tagger.NewService(resolver, source, cfg.Models, fields, log)
	log.Debug("configured",
		"models", cfg.ModelNames(),
		"fields", cfg.FieldNames(),
		"policy", policy,
		"timeout", timeout,
		"tags", source.Current().Len(),
	)
	return a, nil
}

// openVocabulary returns the tag vocabulary to resolve against. A watcher is
// returned only when watching is enabled and the file loads; an unreadable
// file always falls back to the default vocabulary with a warning.
func openVocabulary(cfg config.VocabularyConfig, log *slog.Logger) (tagger.VocabularySource, *vocab.Watcher) {
	if cfg.Watch && cfg.Path != "" {
		w, err := vocab.NewWatcher(cfg.Path, log, cfg.Extras...)
		if err == nil {
			return w, w
		}
		log.Warn("vocabulary not watched", "path", cfg.Path, "error", err)
	}

	v, err := vocab.LoadOrDefault(cfg.Path, cfg.Extras...)
	if err != nil {
		log.Warn("using default vocabulary", "path", cfg.Path, "error", err)
	}
	return v, nil
}

// watch keeps the vocabulary in sync until ctx is done.
func (a *app) watch(ctx context.Context) {
	if a.watcher == nil {
		return
	}
	go func() {
		if err := a.watcher.Run(ctx); err != nil {
			a.logger.Error("vocabulary watcher stopped", "error", err)
		}
	}()
}

func main() {
	var (
		configPath string
		logLevel   string
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	load := func() (*app, error) {
		return newApp(configPath, logLevel)
	}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Read probe tags burned into ultrasound DICOM frames",
		Long: color.New(color.FgHiCyan).Sprintf(
			"Read the probe tag burned into ultrasound frames with Tesseract. %s",
			color.New(color.FgBlue).Sprintf("(%s)", Version),
		),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/us-probe-tag/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides "+config.EnvLogLevel+")")

	rootCmd.AddCommand(
		newServeCmd(ctx, load),
		newTagCmd(ctx, load),
		newFieldsCmd(ctx, load),
		newPreprocessCmd(load),
		newVersionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Error executing command", "error", err)
		os.Exit(1)
	}
}

func newServeCmd(ctx context.Context, load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			a.watch(ctx)
			a.logger.Info("starting MCP server", "version", Version, "commit", GitCommit)

			srv := server.New(a.service, server.WithLogger(a.logger), server.WithVersion(Version))
			return srv.Run(ctx)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", appName, Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
			if v := ocr.Version(); v != "" {
				fmt.Fprintf(out, "  Tesseract:  %s\n", v)
			} else {
				fmt.Fprintf(out, "  Tesseract:  %s\n", color.RedString("not found"))
			}
		},
	}
}
