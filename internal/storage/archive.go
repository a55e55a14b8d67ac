package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vampirenirmal/storyloom/internal/core"
	"github.com/vampirenirmal/storyloom/internal/events"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    premise TEXT NOT NULL,
    genre TEXT NOT NULL,
    chapters_planned INTEGER NOT NULL,
    chapters_written INTEGER NOT NULL DEFAULT 0,
    title TEXT,
    summary TEXT,
    context TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chapters (
    run_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    total INTEGER NOT NULL,
    text TEXT NOT NULL,
    draft TEXT,
    scene_layout TEXT,
    summary TEXT,
    words INTEGER NOT NULL,
    tracked INTEGER NOT NULL,
    delta TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    run_id TEXT,
    type TEXT NOT NULL,
    source TEXT,
    data TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS events_run ON events(run_id);
`

// RunRecord is one archived run.
type RunRecord struct {
	ID              string
	Mode            string
	Premise         string
	Genre           string
	ChaptersPlanned int
	ChaptersWritten int
	Title           string
	Summary         string
	StartedAt       time.Time
	// FinishedAt is nil for runs that never finished.
	FinishedAt *time.Time
}

// ChapterRecord is one archived chapter.
type ChapterRecord struct {
	RunID       string
	Index       int
	Total       int
	Text        string
	Draft       string
	SceneLayout string
	Summary     string
	Words       int
	Tracked     bool
	Delta       string
	Created     time.Time
}

// Archive is a SQLite history of runs, chapters and degradation events.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenArchive opens or creates the database at path and applies the schema.
func OpenArchive(path string, logger *slog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; sinks and event handlers run concurrently
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(archiveSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{db: db, logger: logger.With("component", "archive")}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) Name() string { return "archive" }

func (a *Archive) RunStarted(ctx context.Context, run core.RunInfo) error {
	return a.RecordRun(ctx, run)
}

func (a *Archive) ChapterCompleted(ctx context.Context, ch core.ChapterArtifact) error {
	return a.RecordChapter(ctx, ch)
}

func (a *Archive) RunFinished(ctx context.Context, run core.RunInfo) error {
	return a.RecordRun(ctx, run)
}

// RecordRun inserts or updates a run.
func (a *Archive) RecordRun(ctx context.Context, run core.RunInfo) error {
	var title, contextJSON string
	if run.Context != nil {
		title = run.Context.Title
		data, err := json.Marshal(run.Context)
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		contextJSON = string(data)
	}
	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC()
	}

	_, err := a.db.ExecContext(ctx, `
INSERT INTO runs(id, mode, premise, genre, chapters_planned, chapters_written, title, summary, context, started_at, finished_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
    chapters_written = excluded.chapters_written,
    title = excluded.title,
    summary = excluded.summary,
    context = excluded.context,
    finished_at = excluded.finished_at`,
		run.ID, run.Mode, run.Request.Premise, run.Request.Genre, run.Request.Chapters,
		run.Chapters, title, run.Summary, contextJSON, run.StartedAt.UTC(), finished)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordChapter stores a chapter and bumps the run's written count. A
// regenerated chapter replaces the earlier row.
func (a *Archive) RecordChapter(ctx context.Context, ch core.ChapterArtifact) error {
	var delta string
	if ch.Delta != nil {
		data, err := json.Marshal(ch.Delta)
		if err != nil {
			return fmt.Errorf("marshal delta: %w", err)
		}
		delta = string(data)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO chapters(run_id, idx, total, text, draft, scene_layout, summary, words, tracked, delta, created_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		ch.RunID, ch.Position.Index, ch.Position.Total, ch.Text, ch.Draft, ch.SceneLayout,
		ch.Summary, ch.Words, ch.Tracked, delta, ch.Created.UTC()); err != nil {
		return fmt.Errorf("insert chapter: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET chapters_written = (SELECT COUNT(*) FROM chapters WHERE run_id = ?), summary = ? WHERE id = ?`,
		ch.RunID, ch.Summary, ch.RunID); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RecordEvent stores an event. The run is taken from the run_id or
// session_id metadata when present.
func (a *Archive) RecordEvent(ctx context.Context, e events.Event) error {
	var runID any
	for _, key := range []string{"run_id", "session_id"} {
		if id, ok := e.Metadata[key].(string); ok && id != "" {
			runID = id
			break
		}
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events(id, run_id, type, source, data, created_at) VALUES(?,?,?,?,?,?)`,
		e.ID, runID, e.Type, e.Source, string(data), ts.UTC()); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// HandleEvent adapts RecordEvent to an events.Handler for degradation
// events; other types are ignored and failures are logged.
func (a *Archive) HandleEvent(ctx context.Context, e events.Event) error {
	if !events.IsDegradation(e.Type) {
		return nil
	}
	if err := a.RecordEvent(ctx, e); err != nil {
		a.logger.Warn("event not archived", "type", e.Type, "error", err)
		return err
	}
	return nil
}

// ListRuns returns runs newest first. A limit of zero or less means all.
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(ctx, `
SELECT id, mode, premise, genre, chapters_planned, chapters_written,
       COALESCE(title, ''), COALESCE(summary, ''), started_at, finished_at
FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Mode, &r.Premise, &r.Genre, &r.ChaptersPlanned, &r.ChaptersWritten,
			&r.Title, &r.Summary, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadChapters returns a run's chapters in order.
func (a *Archive) LoadChapters(ctx context.Context, runID string) ([]ChapterRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
SELECT run_id, idx, total, text, COALESCE(draft, ''), COALESCE(scene_layout, ''), COALESCE(summary, ''),
       words, tracked, COALESCE(delta, ''), created_at
FROM chapters WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	var out []ChapterRecord
	for rows.Next() {
		var c ChapterRecord
		if err := rows.Scan(&c.RunID, &c.Index, &c.Total, &c.Text, &c.Draft, &c.SceneLayout, &c.Summary,
			&c.Words, &c.Tracked, &c.Delta, &c.Created); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountEvents returns how many events of eventType were archived for a run.
// An empty eventType counts every type.
func (a *Archive) CountEvents(ctx context.Context, runID, eventType string) (int, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE run_id = ? AND (? = '' OR type = ?)`,
		runID, eventType, eventType)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("scan count: %w", err)
	}
	return n, nil
}
