package fiction

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/vampirenirmal/storyloom/internal/agent"
	"github.com/vampirenirmal/storyloom/internal/events"
	"github.com/vampirenirmal/storyloom/internal/phase"
	"github.com/vampirenirmal/storyloom/internal/story"
)

// NarrativeTracker extracts what a chapter changed about the story and
// merges it into a copy of the context.
type NarrativeTracker struct {
	phase.Base
	track     *agent.Agent
	coherence *agent.Agent
}

func NewNarrativeTracker(f *agent.Factory, opts ...phase.BaseOption) *NarrativeTracker {
	return &NarrativeTracker{
		Base: phase.NewBase(StageNarrativeTracker, opts...),
		track: f.Create(StageNarrativeTracker, systemTemplate(StageNarrativeTracker), userTemplate(StageNarrativeTracker)).
			WithCallOptions(agent.WithJSON(StageNarrativeTracker, trackerSchema)),
		coherence: f.Create(StageCoherenceChecker, systemTemplate(StageCoherenceChecker), userTemplate(StageCoherenceChecker)),
	}
}

// TrackResult reports how a tracking call went.
type TrackResult struct {
	// Applied is false when the delta was dropped and the context kept.
	Applied bool
	Delta   story.TrackerDelta
	// Err explains why the delta was dropped.
	Err error
}

type trackPrompt struct {
	Context string
	Summary string
	Chapter string
}

// Track analyses chapter and returns the merged context. On any failure
// the input context itself is returned, untouched.
func (t *NarrativeTracker) Track(ctx context.Context, sc *story.Context, chapter int, text, summary string) (*story.Context, TrackResult) {
	start := t.LogStart(strconv.Itoa(chapter))
	out, err := t.track.Run(ctx, trackPrompt{Context: sc.JSON(), Summary: summary, Chapter: text})
	if err != nil {
		t.Degrade(ctx, events.TypeBookkeepingSkipped, chapter, err.Error(), "")
		return sc, TrackResult{Err: err}
	}

	delta, err := story.ParseTrackerDelta([]byte(phase.CleanJSONResponse(out.Text)))
	if err != nil {
		t.Degrade(ctx, events.TypeBookkeepingSkipped, chapter, "narrative analysis not parsed: "+err.Error(), out.Text)
		return sc, TrackResult{Err: err}
	}

	merged := sc.Apply(delta)
	t.Logger().Info("narrative tracked",
		"chapter", chapter,
		"characters", len(delta.CharacterDevelopments),
		"threads", len(delta.PlotThreadStatus),
		"new_tensions", len(delta.NewTensions),
		"themes", len(delta.ThematicProgression),
		"duration_ms", time.Since(start).Milliseconds())
	return merged, TrackResult{Applied: true, Delta: delta}
}

// CoherenceReport is the free-text review of all chapters so far.
type CoherenceReport struct {
	Report string `json:"coherence_report"`
	// NeedsRevision is true once more than two chapters exist. It does not
	// look at the report.
	NeedsRevision bool `json:"needs_revision"`
}

type coherencePrompt struct {
	Context  string
	Chapters string
}

// CheckCoherence reviews chapters against the context.
func (t *NarrativeTracker) CheckCoherence(ctx context.Context, sc *story.Context, chapters []string) CoherenceReport {
	start := t.LogStart("-", "chapters", len(chapters))
	if chapters == nil {
		chapters = []string{}
	}
	list, _ := json.MarshalIndent(chapters, "", "  ")

	report := CoherenceReport{NeedsRevision: len(chapters) > 2}
	out, err := t.coherence.Run(ctx, coherencePrompt{Context: sc.JSON(), Chapters: string(list)})
	if err == nil {
		report.Report = t.Text(ctx, out, 0)
	}
	t.LogComplete("-", start, len(report.Report))
	t.Publish(ctx, events.TypeCoherenceChecked, report)
	return report
}
