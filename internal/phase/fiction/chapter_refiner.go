package fiction

import (
	"context"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/phase"
	"github.com/vampirenirmal/storyloom/internal/story"
)

// ChapterRefiner edits a draft for flow and consistency without changing
// what happens in it.
type ChapterRefiner struct {
	phase.Base
	refine *agent.Agent
}

func NewChapterRefiner(f *agent.Factory, opts ...phase.BaseOption) *ChapterRefiner {
	return &ChapterRefiner{
		Base:   phase.NewBase(StageChapterRefiner, opts...),
		refine: f.Create(StageChapterRefiner, systemTemplate(StageChapterRefiner), userTemplate(StageChapterRefiner)),
	}
}

type refinePrompt struct {
	Position story.Position
	Genre    string
	Draft    string
	Outline  string
	Brief    string
}

// Refine returns the edited chapter. The brief it sends carries no
// summary; the draft already reflects it.
func (r *ChapterRefiner) Refine(ctx context.Context, sc *story.Context, pos story.Position, draft, outline string) string {
	start := r.LogStart(pos.String(), "draft_words", CountWords(draft))
	out, err := r.refine.Run(ctx, refinePrompt{
		Position: pos,
		Genre:    sc.Genre,
		Draft:    draft,
		Outline:  outline,
		Brief:    story.NewBrief(sc, pos, nil).JSON(),
	})
	if err != nil {
		return ""
	}
	chapter := r.Text(ctx, out, pos.Index)
	r.LogComplete(pos.String(), start, len(chapter))
	return chapter
}
