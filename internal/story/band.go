package story

import (
	"fmt"
	"strings"
)

// Band classifies a chapter's position in the story. A position can sit in
// more than one band: the only chapter of a one-chapter story both opens
// and closes it.
type Band uint8

const (
	BandEarly Band = 1 << iota
	BandMid
	BandLate
	BandFinal
)

var bandNames = []struct {
	band Band
	name string
}{
	{BandEarly, "early"},
	{BandMid, "mid"},
	{BandLate, "late"},
	{BandFinal, "final"},
}

// Has reports whether b includes every band in other.
func (b Band) Has(other Band) bool {
	return other != 0 && b&other == other
}

func (b Band) String() string {
	var parts []string
	for _, bn := range bandNames {
		if b.Has(bn.band) {
			parts = append(parts, bn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Guidance is the tonal instruction for chapters in this band.
func (b Band) Guidance() string {
	var lines []string
	if b.Has(BandEarly) {
		lines = append(lines, "Early chapter: establish the world, the characters and the initial conflicts.")
	}
	if b.Has(BandMid) {
		lines = append(lines, "Middle chapter: escalate tensions, deepen relationships and reveal complications.")
	}
	if b.Has(BandLate) {
		lines = append(lines, "Late chapter: build toward resolution, heighten the stakes and prepare for the climax.")
	}
	if b.Has(BandFinal) {
		lines = append(lines, "Final chapter: deliver a satisfying conclusion that still leaves room for reflection.")
	}
	return strings.Join(lines, "\n")
}

// Position is a chapter index within a run of Total chapters, 1-based.
type Position struct {
	Index int `json:"index"`
	Total int `json:"total"`
}

// Band returns the position bands for p.
//
// Index 1-3 is early, 4-7 mid and 8 onward late; the last chapter is
// always final in addition to its positional band.
func (p Position) Band() Band {
	var b Band
	switch {
	case p.Index <= 3:
		b = BandEarly
	case p.Index <= 7:
		b = BandMid
	default:
		b = BandLate
	}
	if p.IsFinal() {
		if p.Index > 1 {
			// a closing chapter replaces its positional band
			b = 0
		}
		b |= BandFinal
	}
	return b
}

// IsFinal reports whether p is the last chapter of the run.
func (p Position) IsFinal() bool {
	return p.Total > 0 && p.Index == p.Total
}

// ChapterTitle is the working title used in context briefs.
func (p Position) ChapterTitle() string {
	return fmt.Sprintf("Chapter %d", p.Index)
}

func (p Position) String() string {
	return fmt.Sprintf("%d/%d", p.Index, p.Total)
}
