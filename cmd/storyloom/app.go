package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/config"
	"github.com/vampirenirmal/storyloom/internal/core"
	"github.com/vampirenirmal/storyloom/internal/events"
	"github.com/vampirenirmal/storyloom/internal/phase/fiction"
	"github.com/vampirenirmal/storyloom/internal/storage"
)

// app is everything a command needs, wired from the configuration.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	bus         *events.Bus
	store       *storage.FileSystem
	files       *storage.ArtifactWriter
	archive     *storage.Archive
	pipeline    *core.Pipeline
	checkpoints *core.CheckpointManager

	closers []func() error
}

type appOptions struct {
	dryRun bool
	// logFile sends logs to <output>/storyloom.log instead of stderr.
	logFile bool
	// offline skips building the model gateway.
	offline bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	a := &app{cfg: cfg}
	var logOut io.Writer = os.Stderr
	if opts.logFile {
		f, err := os.OpenFile(filepath.Join(cfg.Paths.OutputDir, "storyloom.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		logOut = f
	}
	a.logger = newLogger(cfg.Log, logOut)
	slog.SetDefault(a.logger)

	a.store = storage.NewFileSystem(cfg.Paths.OutputDir)
	a.checkpoints = core.NewCheckpointManager(a.store)
	a.files = storage.NewArtifactWriter(a.store, storage.ParseNamingStrategy(cfg.Paths.Naming), a.logger)

	a.archive, err = storage.OpenArchive(cfg.Paths.Archive, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.archive.Close)

	if opts.offline {
		return a, nil
	}

	a.bus = events.NewBus(a.logger)
	a.closers = append(a.closers, func() error {
		a.bus.Stop()
		m := a.bus.Metrics()
		a.logger.Debug("event bus stopped",
			"published", m.Published,
			"delivered", m.Delivered,
			"failed", m.Failed)
		return nil
	})
	if err := a.subscribe(); err != nil {
		a.Close()
		return nil, err
	}

	backend, err := newBackend(ctx, cfg, opts.dryRun)
	if err != nil {
		a.Close()
		return nil, err
	}
	gateway := agent.NewClient(backend, clientOptions(cfg, a.bus, a.logger, opts.dryRun)...)

	agents, err := fiction.NewAgents(gateway, fiction.Config{
		SceneModel: cfg.AI.SceneModel,
		Models:     cfg.AI.Models,
		PromptsDir: cfg.Paths.PromptsDir,
		Events:     a.bus,
		Logger:     a.logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline = core.NewPipeline(agents,
		core.WithGenres(cfg.Story.Genres),
		core.WithEvents(a.bus),
		core.WithSinks(a.files, a.archive),
		core.WithLogger(a.logger),
	)
	return a, nil
}

// subscribe logs degradation, archives it and traces lifecycle events.
func (a *app) subscribe() error {
	logDegradation := func(ctx context.Context, e events.Event) error {
		attrs := []any{"type", e.Type, "source", e.Source}
		if d, ok := e.Data.(events.Degradation); ok {
			attrs = append(attrs, "stage", d.Stage, "reason", d.Reason)
			if d.Chapter > 0 {
				attrs = append(attrs, "chapter", d.Chapter)
			}
		}
		a.logger.Warn("output degraded", attrs...)
		return nil
	}
	if _, err := a.bus.Subscribe(events.PatternDegradation, logDegradation, events.Options{Priority: 10}); err != nil {
		return err
	}
	if _, err := a.bus.Subscribe(events.PatternDegradation, a.archive.HandleEvent); err != nil {
		return err
	}
	_, err := a.bus.Subscribe(events.PatternLifecycle, func(ctx context.Context, e events.Event) error {
		a.logger.Debug("event", "type", e.Type, "source", e.Source)
		return nil
	})
	return err
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

func newBackend(ctx context.Context, cfg *config.Config, dryRun bool) (agent.Backend, error) {
	if dryRun {
		return fiction.NewDryRunBackend(), nil
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	switch cfg.AI.Provider {
	case config.ProviderGemini:
		return agent.NewGeminiBackend(ctx, cfg.AI.APIKey)
	default:
		return agent.NewOpenAIBackend(cfg.AI.APIKey, cfg.AI.BaseURL, agent.StructuredMode(cfg.AI.StructuredOutput)), nil
	}
}

func clientOptions(cfg *config.Config, bus *events.Bus, logger *slog.Logger, dryRun bool) []agent.Option {
	opts := []agent.Option{
		agent.WithDefaults(cfg.AI.Model, cfg.AI.Temperature, cfg.AI.MaxTokens),
		agent.WithRetry(cfg.Limits.MaxRetries),
		agent.WithTimeout(cfg.Limits.Timeout),
		agent.WithMaxPromptSize(cfg.Limits.MaxPromptSize),
		agent.WithEvents(bus),
		agent.WithLogger(logger),
	}
	if !dryRun {
		opts = append(opts, agent.WithRateLimit(cfg.Limits.RateLimit.RequestsPerMinute, cfg.Limits.RateLimit.BurstSize))
	}
	if cfg.AI.Cache.Enabled {
		opts = append(opts, agent.WithCache(agent.NewResponseCache(cfg.AI.Cache.Size, cfg.AI.Cache.TTL)))
	}
	return opts
}

// newLogger builds the slog logger: charmbracelet/log for text output,
// the standard JSON handler otherwise.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	if cfg.Format == "json" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelInfo
		}
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}

	level, err := charmlog.ParseLevel(cfg.Level)
	if err != nil {
		level = charmlog.InfoLevel
	}
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "storyloom",
	})
	return slog.New(handler)
}
