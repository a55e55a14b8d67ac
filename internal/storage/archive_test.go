package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/core"
	"github.com/vampirenirmal/storyloom/internal/events"
	"github.com/vampirenirmal/storyloom/internal/phase/fiction"
	"github.com/vampirenirmal/storyloom/internal/story"
)

var _ core.ArtifactSink = (*Archive)(nil)
var _ core.ArtifactSink = (*ArtifactWriter)(nil)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchiveRunLifecycle(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	run := testRun()
	require.NoError(t, a.RunStarted(ctx, run))

	runs, err := a.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "The Lantern Keeper", runs[0].Title)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, 2, runs[0].ChaptersPlanned)

	ch := testChapter(1)
	ch.Tracked = true
	ch.Delta = &story.TrackerDelta{NewTensions: []string{"The ferrymen want payment"}}
	require.NoError(t, a.ChapterCompleted(ctx, ch))
	require.NoError(t, a.ChapterCompleted(ctx, testChapter(2)))
	// regenerating a chapter replaces it
	require.NoError(t, a.ChapterCompleted(ctx, testChapter(2)))

	run.Chapters = 2
	run.Summary = "summary after 2"
	run.FinishedAt = run.StartedAt.Add(time.Minute)
	require.NoError(t, a.RunFinished(ctx, run))

	runs, err = a.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].ChaptersWritten)
	assert.Equal(t, "summary after 2", runs[0].Summary)
	require.NotNil(t, runs[0].FinishedAt)

	chapters, err := a.LoadChapters(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, 1, chapters[0].Index)
	assert.True(t, chapters[0].Tracked)
	assert.Contains(t, chapters[0].Delta, "ferrymen")
	assert.False(t, chapters[1].Tracked)
}

func TestArchiveListRunsNewestFirst(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	older := testRun()
	newer := testRun()
	newer.ID = "second-run"
	newer.StartedAt = older.StartedAt.Add(time.Hour)
	require.NoError(t, a.RecordRun(ctx, older))
	require.NoError(t, a.RecordRun(ctx, newer))

	runs, err := a.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "second-run", runs[0].ID)
}

func TestArchiveRecordsEvents(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	bus := events.NewBus(nil)
	defer bus.Stop()
	_, err := bus.Subscribe(events.PatternDegradation, a.HandleEvent)
	require.NoError(t, err)

	publish := func(e events.Event) {
		require.NoError(t, bus.Publish(ctx, e))
	}
	publish(events.Event{
		Type:     events.TypeBookkeepingSkipped,
		Source:   "narrative_tracker",
		Data:     events.Degradation{Stage: "narrative_tracker", Chapter: 2, Reason: "invalid JSON"},
		Metadata: map[string]any{"run_id": testRunID},
	})
	publish(events.Event{
		Type:     events.TypeOutputEmpty,
		Source:   "summarizer",
		Data:     events.Degradation{Stage: "summarizer", Reason: "empty response"},
		Metadata: map[string]any{"session_id": testRunID},
	})
	publish(events.Event{Type: events.TypeChapterCompleted, Source: "pipeline", Metadata: map[string]any{"run_id": testRunID}})
	// not a degradation, so the archive ignores it even when called directly
	require.NoError(t, a.HandleEvent(ctx, events.Event{ID: "lifecycle", Type: events.TypeStoryPlanned, Metadata: map[string]any{"run_id": testRunID}}))

	n, err := a.CountEvents(ctx, testRunID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = a.CountEvents(ctx, testRunID, events.TypeBookkeepingSkipped)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchiveAttributesPipelineDegradation(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := events.NewBus(logger)
	defer bus.Stop()
	_, err := bus.Subscribe(events.PatternDegradation, a.HandleEvent)
	require.NoError(t, err)

	backend := fiction.NewDryRunBackend()
	backend.OnFunc(fiction.StageNarrativeTracker, func(agent.Request) string {
		return "The arcs moved on, but I would rather not say how."
	})
	gateway := agent.NewClient(backend, agent.WithLogger(logger), agent.WithEvents(bus))
	agents, err := fiction.NewAgents(gateway, fiction.Config{Events: bus, Logger: logger})
	require.NoError(t, err)
	p := core.NewPipeline(agents, core.WithEvents(bus), core.WithSinks(a), core.WithLogger(logger))

	run, err := p.Generate(ctx, core.RunRequest{
		Premise:  "A lamplighter's apprentice must relight the great lantern.",
		Genre:    "Fantasy",
		Chapters: 2,
	})
	require.NoError(t, err)

	n, err := a.CountEvents(ctx, run.ID, events.TypeBookkeepingSkipped)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chapters, err := a.LoadChapters(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.False(t, chapters[0].Tracked)

	var orphans int
	require.NoError(t, a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE run_id IS NULL`).Scan(&orphans))
	assert.Zero(t, orphans)
}
