package export

import (
	"context"
	"fmt"
	"path"

	"github.com/vampirenirmal/storyloom/internal/core"
	"github.com/vampirenirmal/storyloom/internal/storage"
)

// Result describes what Run wrote.
type Result struct {
	Manuscript string
	Bible      string
	Chapters   int
	Skipped    int
}

// Run exports the run directory dir of store, writing manuscript.md and
// story.yaml next to the chapters.
func Run(ctx context.Context, store core.Storage, dir string) (Result, error) {
	sc, err := storage.ReadContext(ctx, store, dir)
	if err != nil {
		return Result{}, fmt.Errorf("reading context: %w", err)
	}
	chapters, err := storage.ReadChapters(ctx, store, dir)
	if err != nil {
		return Result{}, fmt.Errorf("reading chapters: %w", err)
	}
	if len(chapters) == 0 {
		return Result{}, fmt.Errorf("no chapters in %s", dir)
	}

	doc, skipped := Manuscript(sc.Title, sc.CentralTheme, chapters)
	bibleDoc, err := StoryBible(sc, chapters)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Manuscript: path.Join(dir, "manuscript.md"),
		Bible:      path.Join(dir, "story.yaml"),
		Chapters:   len(chapters) - skipped,
		Skipped:    skipped,
	}
	if err := store.Save(ctx, res.Manuscript, doc); err != nil {
		return Result{}, err
	}
	if err := store.Save(ctx, res.Bible, bibleDoc); err != nil {
		return Result{}, err
	}
	return res, nil
}
