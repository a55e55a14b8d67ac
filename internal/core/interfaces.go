package core

import (
	"context"
	"time"

	"github.com/vampirenirmal/storyloom/internal/story"
)

// Storage persists run artifacts and checkpoints under relative paths.
type Storage interface {
	Save(ctx context.Context, path string, data []byte) error
	Load(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, pattern string) ([]string, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
}

// RunInfo describes a run for sinks.
type RunInfo struct {
	ID        string
	Mode      string
	Request   RunRequest
	Context   *story.Context
	Summary   string
	Chapters  int
	StartedAt time.Time
	// FinishedAt is zero until the run ends.
	FinishedAt time.Time
}

// ChapterArtifact is everything produced for one completed chapter.
type ChapterArtifact struct {
	RunID       string
	Position    story.Position
	Text        string
	Draft       string
	SceneLayout string
	// Summary is the rolling summary after this chapter.
	Summary string
	// Context is the story context after tracking this chapter.
	Context *story.Context
	// Tracked is false when the narrative bookkeeping was skipped.
	Tracked bool
	Delta   *story.TrackerDelta
	Words   int
	Created time.Time
}

// ArtifactSink receives run output as it is produced. Sinks are called
// concurrently with each other; a failing sink never stops the run.
type ArtifactSink interface {
	Name() string
	RunStarted(ctx context.Context, run RunInfo) error
	ChapterCompleted(ctx context.Context, chapter ChapterArtifact) error
	RunFinished(ctx context.Context, run RunInfo) error
}
