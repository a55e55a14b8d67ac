package fiction

import (
	"context"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/phase"
)

// Summarizer folds a chapter into the rolling summary.
type Summarizer struct {
	phase.Base
	summarize *agent.Agent
}

func NewSummarizer(f *agent.Factory, opts ...phase.BaseOption) *Summarizer {
	return &Summarizer{
		Base:      phase.NewBase(StageSummarizer, opts...),
		summarize: f.Create(StageSummarizer, systemTemplate(StageSummarizer), userTemplate(StageSummarizer)),
	}
}

type summaryPrompt struct {
	Chapter  string
	Previous string
}

// Summarize returns the new rolling summary covering chapter and previous.
// A nil previous is rendered as None, marking the first chapter.
func (s *Summarizer) Summarize(ctx context.Context, chapter string, previous *string) string {
	prev := "None"
	if previous != nil {
		prev = *previous
	}
	start := s.LogStart("-", "first_chapter", previous == nil)
	out, err := s.summarize.Run(ctx, summaryPrompt{Chapter: chapter, Previous: prev})
	if err != nil {
		return ""
	}
	summary := s.Text(ctx, out, 0)
	s.LogComplete("-", start, len(summary))
	return summary
}
