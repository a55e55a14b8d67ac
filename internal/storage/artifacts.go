package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/vampirenirmal/storyloom/internal/core"
	"github.com/vampirenirmal/storyloom/internal/story"
)

// ArtifactWriter writes each run's output into its own directory of a
// core.Storage:
//
//	<dir>/metadata.md
//	<dir>/context.json
//	<dir>/summary.md
//	<dir>/chapters/chapter-NN.md
type ArtifactWriter struct {
	store    core.Storage
	strategy NamingStrategy
	logger   *slog.Logger

	mu   sync.Mutex
	dirs map[string]string
}

func NewArtifactWriter(store core.Storage, strategy NamingStrategy, logger *slog.Logger) *ArtifactWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactWriter{
		store:    store,
		strategy: strategy,
		logger:   logger.With("component", "artifact_writer"),
		dirs:     make(map[string]string),
	}
}

func (w *ArtifactWriter) Name() string { return "files" }

// Dir returns the directory of a run, locating it in storage for runs this
// writer has not seen start (resumed sessions).
func (w *ArtifactWriter) Dir(ctx context.Context, runID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if dir, ok := w.dirs[runID]; ok {
		return dir
	}
	dir := path.Join("sessions", runID)
	if matches, err := w.store.List(ctx, "sessions/*"+shortID(runID)+"*"); err == nil {
		for _, m := range matches {
			if strings.HasSuffix(m, shortID(runID)) || path.Base(m) == runID {
				dir = m
				break
			}
		}
	}
	w.dirs[runID] = dir
	return dir
}

func (w *ArtifactWriter) RunStarted(ctx context.Context, run core.RunInfo) error {
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	dir := SessionDir(run.ID, run.Request.Premise, w.strategy, started)
	w.mu.Lock()
	w.dirs[run.ID] = dir
	w.mu.Unlock()

	w.logger.Debug("run directory", "run_id", run.ID, "dir", dir)
	if err := w.store.Save(ctx, path.Join(dir, "metadata.md"), Metadata(run)); err != nil {
		return err
	}
	return w.saveContext(ctx, dir, run.Context)
}

func (w *ArtifactWriter) ChapterCompleted(ctx context.Context, ch core.ChapterArtifact) error {
	dir := w.Dir(ctx, ch.RunID)
	name := fmt.Sprintf("chapter-%02d.md", ch.Position.Index)
	if err := w.store.Save(ctx, path.Join(dir, "chapters", name), []byte(ch.Text)); err != nil {
		return err
	}
	if err := w.store.Save(ctx, path.Join(dir, "summary.md"), []byte(ch.Summary)); err != nil {
		return err
	}
	return w.saveContext(ctx, dir, ch.Context)
}

func (w *ArtifactWriter) RunFinished(ctx context.Context, run core.RunInfo) error {
	dir := w.Dir(ctx, run.ID)
	if err := w.store.Save(ctx, path.Join(dir, "metadata.md"), Metadata(run)); err != nil {
		return err
	}
	return w.saveContext(ctx, dir, run.Context)
}

func (w *ArtifactWriter) saveContext(ctx context.Context, dir string, sc *story.Context) error {
	if sc == nil {
		sc = story.Empty()
	}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling context: %w", err)
	}
	return w.store.Save(ctx, path.Join(dir, "context.json"), data)
}

// ReadChapters loads the chapter files of a run directory in order.
func ReadChapters(ctx context.Context, store core.Storage, dir string) ([]string, error) {
	files, err := store.List(ctx, path.Join(dir, "chapters", "chapter-*.md"))
	if err != nil {
		return nil, err
	}
	chapters := make([]string, 0, len(files))
	for _, f := range files {
		data, err := store.Load(ctx, f)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, string(data))
	}
	return chapters, nil
}

// ReadContext loads the context.json of a run directory.
func ReadContext(ctx context.Context, store core.Storage, dir string) (*story.Context, error) {
	data, err := store.Load(ctx, path.Join(dir, "context.json"))
	if err != nil {
		return nil, err
	}
	sc := story.Empty()
	if err := json.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("decoding context: %w", err)
	}
	return sc, nil
}
