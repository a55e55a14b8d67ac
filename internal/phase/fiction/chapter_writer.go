package fiction

import (
	"context"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/phase"
	"github.com/vampirenirmal/storyloom/internal/story"
)

// ChapterWriter drafts chapter prose.
type ChapterWriter struct {
	phase.Base
	write *agent.Agent
}

func NewChapterWriter(f *agent.Factory, opts ...phase.BaseOption) *ChapterWriter {
	return &ChapterWriter{
		Base:  phase.NewBase(StageChapterWriter, opts...),
		write: f.Create(StageChapterWriter, systemTemplate(StageChapterWriter), userTemplate(StageChapterWriter)),
	}
}

type writePrompt struct {
	Position story.Position
	Final    bool
	Guidance string
	Genre    string
	Brief    string
	Outline  string
}

// Write drafts the chapter at pos. outline may be empty; summary is nil for
// the first chapter. An empty draft is returned as is.
func (w *ChapterWriter) Write(ctx context.Context, sc *story.Context, pos story.Position, outline string, summary *string) string {
	start := w.LogStart(pos.String(), "has_outline", outline != "")
	out, err := w.write.Run(ctx, writePrompt{
		Position: pos,
		Final:    pos.IsFinal(),
		Guidance: pos.Band().Guidance(),
		Genre:    sc.Genre,
		Brief:    story.NewBrief(sc, pos, summary).JSON(),
		Outline:  outline,
	})
	if err != nil {
		return ""
	}
	draft := w.Text(ctx, out, pos.Index)
	w.LogComplete(pos.String(), start, len(draft))
	return draft
}
