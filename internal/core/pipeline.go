package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vampirenirmal/storyloom/internal/events"
	"github.com/vampirenirmal/storyloom/internal/phase/fiction"
	"github.com/vampirenirmal/storyloom/internal/story"
)

// Run modes recorded with each run.
const (
	ModeBatch       = "batch"
	ModeInteractive = "interactive"
)

// Run is the state of a batch generation.
type Run struct {
	ID       string         `json:"id"`
	Request  RunRequest     `json:"request"`
	Context  *story.Context `json:"context"`
	Chapters []string       `json:"chapters"`
	// Summary is nil until the first chapter is summarized.
	Summary    *string                  `json:"summary,omitempty"`
	Coherence  *fiction.CoherenceReport `json:"coherence,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at,omitempty"`

	words *fiction.WordTracker
}

func (r *Run) info() RunInfo {
	info := RunInfo{
		ID:         r.ID,
		Mode:       ModeBatch,
		Request:    r.Request,
		Context:    r.Context,
		Chapters:   len(r.Chapters),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Summary != nil {
		info.Summary = *r.Summary
	}
	return info
}

// Pipeline is the controller. It owns the story state of every run it
// drives and is the only code that replaces it.
type Pipeline struct {
	agents    *fiction.Agents
	validator *RequestValidator
	events    events.Publisher
	sinks     []ArtifactSink
	logger    *slog.Logger
}

type Option func(*Pipeline)

// WithGenres restricts requests to genres.
func WithGenres(genres []string) Option {
	return func(p *Pipeline) {
		p.validator = NewRequestValidator(genres)
	}
}

func WithEvents(pub events.Publisher) Option {
	return func(p *Pipeline) {
		p.events = pub
	}
}

// WithSinks adds artifact sinks.
func WithSinks(sinks ...ArtifactSink) Option {
	return func(p *Pipeline) {
		p.sinks = append(p.sinks, sinks...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger.With("component", "pipeline")
	}
}

func NewPipeline(agents *fiction.Agents, opts ...Option) *Pipeline {
	p := &Pipeline{
		agents:    agents,
		validator: NewRequestValidator(nil),
		logger:    slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks req after normalisation.
func (p *Pipeline) Validate(req RunRequest) error {
	return p.validator.Validate(req.Normalized())
}

// Plan validates req and plans the story. Besides cancellation, a
// validation failure is the only error it returns; an unparseable plan
// yields an empty context.
func (p *Pipeline) Plan(ctx context.Context, req RunRequest) (*Run, error) {
	req = req.Normalized()
	if err := p.validator.Validate(req); err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.NewString(),
		Request:   req,
		Chapters:  []string{},
		StartedAt: time.Now(),
		words:     fiction.NewWordTracker(),
	}
	ctx = events.WithRunID(ctx, run.ID)
	logger := p.logger.With("run_id", run.ID)
	logger.Info("planning story", "genre", req.Genre, "chapters", req.Chapters)

	run.Context = p.agents.Plot.Generate(ctx, req.Premise, req.Genre)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if run.Context.IsZero() {
		logger.Warn("story plan is empty; continuing with an empty context")
	}
	p.fanOut(ctx, "run_started", func(ctx context.Context, s ArtifactSink) error {
		return s.RunStarted(ctx, run.info())
	})
	return run, nil
}

// RunBatch generates every remaining chapter of run in order. It stops
// early only when ctx is cancelled; a chapter interrupted part way is
// dropped and the run keeps the state of the last finished chapter.
func (p *Pipeline) RunBatch(ctx context.Context, run *Run) (*Run, error) {
	ctx = events.WithRunID(ctx, run.ID)
	logger := p.logger.With("run_id", run.ID)
	total := run.Request.Chapters
	if run.words == nil {
		run.words = countWords(run.Chapters)
	}

	for i := len(run.Chapters) + 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("run interrupted", "chapter", i, "error", err)
			return run, err
		}
		pos := story.Position{Index: i, Total: total}
		start := time.Now()

		layout := p.agents.Scenes.Plan(ctx, run.Context, pos, run.Summary)
		if err := ctx.Err(); err != nil {
			return run, err
		}
		result, err := p.chapter(ctx, run.words, run.Context, pos, layout, run.Summary)
		if err != nil {
			logger.Warn("run interrupted", "chapter", i, "error", err)
			return run, err
		}

		run.Chapters = append(run.Chapters, result.Text)
		run.Summary = &result.Summary
		run.Context = result.Context

		logger.Info("chapter complete",
			"chapter", pos.String(),
			"words", result.Words,
			"tracked", result.Tracked,
			"duration_ms", time.Since(start).Milliseconds())
		p.complete(ctx, run.ID, result)
	}

	if run.Request.Coherence {
		report := p.agents.Tracker.CheckCoherence(ctx, run.Context, run.Chapters)
		run.Coherence = &report
	}
	run.FinishedAt = time.Now()
	logger.Info("run finished", "chapters", len(run.Chapters), "words", run.words.Total())
	p.fanOut(ctx, "run_finished", func(ctx context.Context, s ArtifactSink) error {
		return s.RunFinished(ctx, run.info())
	})
	return run, nil
}

// Generate plans and runs a whole story in batch mode.
func (p *Pipeline) Generate(ctx context.Context, req RunRequest) (*Run, error) {
	run, err := p.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.RunBatch(ctx, run)
}

// chapter runs write, refine, summarize and track for one chapter against
// a fixed context and summary. The returned artifact has no RunID. If ctx
// is cancelled between steps the chapter is abandoned with ctx.Err(), so
// degraded output of an interrupted call is never kept.
func (p *Pipeline) chapter(ctx context.Context, words *fiction.WordTracker, sc *story.Context, pos story.Position, layout string, summary *string) (ChapterArtifact, error) {
	draft := p.agents.Writer.Write(ctx, sc, pos, layout, summary)
	if err := ctx.Err(); err != nil {
		return ChapterArtifact{}, err
	}
	text := p.agents.Refiner.Refine(ctx, sc, pos, draft, layout)
	if err := ctx.Err(); err != nil {
		return ChapterArtifact{}, err
	}
	newSummary := p.agents.Summarizer.Summarize(ctx, text, summary)
	if err := ctx.Err(); err != nil {
		return ChapterArtifact{}, err
	}
	merged, track := p.agents.Tracker.Track(ctx, sc, pos.Index, text, newSummary)
	if err := ctx.Err(); err != nil {
		return ChapterArtifact{}, err
	}

	out := ChapterArtifact{
		Position:    pos,
		Text:        text,
		Draft:       draft,
		SceneLayout: layout,
		Summary:     newSummary,
		Context:     merged,
		Tracked:     track.Applied,
		Words:       words.Record(pos.Index, text),
		Created:     time.Now(),
	}
	if track.Applied {
		delta := track.Delta
		out.Delta = &delta
	}
	if off, msg := words.NeedsAdjustment(pos.Index, 0.25); off {
		p.logger.Debug("chapter length outside target", "chapter", pos.String(), "detail", msg)
	}
	return out, nil
}

// countWords seeds a tracker with chapters already written.
func countWords(chapters []string) *fiction.WordTracker {
	wt := fiction.NewWordTracker()
	for i, text := range chapters {
		wt.Record(i+1, text)
	}
	return wt
}

// complete announces a finished chapter and hands it to every sink.
func (p *Pipeline) complete(ctx context.Context, runID string, a ChapterArtifact) {
	a.RunID = runID
	if p.events != nil {
		_ = p.events.Publish(ctx, events.Event{
			Type:   events.TypeChapterCompleted,
			Source: "pipeline",
			Data: events.ChapterData{
				Chapter: a.Position.Index,
				Total:   a.Position.Total,
				Words:   a.Words,
				Heading: firstLine(a.Text),
			},
			Metadata: map[string]any{"run_id": runID},
		})
	}
	p.fanOut(ctx, "chapter_completed", func(ctx context.Context, s ArtifactSink) error {
		return s.ChapterCompleted(ctx, a)
	})
}

// fanOut calls every sink concurrently and waits. Failures are logged.
func (p *Pipeline) fanOut(ctx context.Context, op string, call func(context.Context, ArtifactSink) error) {
	if len(p.sinks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, sink := range p.sinks {
		g.Go(func() error {
			if err := call(ctx, sink); err != nil {
				p.logger.Error("artifact sink failed", "sink", sink.Name(), "op", op, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func firstLine(text string) string {
	for i, r := range text {
		if r == '\n' {
			return text[:i]
		}
	}
	return text
}
