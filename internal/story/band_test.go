package story

import (
	"strings"
	"testing"
)

func TestPositionBand(t *testing.T) {
	tests := []struct {
		pos  Position
		want Band
	}{
		{Position{1, 1}, BandEarly | BandFinal},
		{Position{1, 3}, BandEarly},
		{Position{1, 10}, BandEarly},
		{Position{3, 10}, BandEarly},
		{Position{4, 10}, BandMid},
		{Position{7, 10}, BandMid},
		{Position{8, 10}, BandLate},
		{Position{9, 10}, BandLate},
		{Position{10, 10}, BandFinal},
		{Position{3, 3}, BandFinal},
		{Position{5, 5}, BandFinal},
	}
	for _, tt := range tests {
		t.Run(tt.pos.String(), func(t *testing.T) {
			if got := tt.pos.Band(); got != tt.want {
				t.Errorf("Band() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFinalChapterAlwaysFinal(t *testing.T) {
	for total := 1; total <= 10; total++ {
		if !(Position{Index: total, Total: total}).Band().Has(BandFinal) {
			t.Errorf("chapter %d of %d is not final", total, total)
		}
	}
}

func TestFirstChapterAlwaysEarly(t *testing.T) {
	for total := 1; total <= 10; total++ {
		if !(Position{Index: 1, Total: total}).Band().Has(BandEarly) {
			t.Errorf("chapter 1 of %d is not early", total)
		}
	}
}

func TestBandGuidance(t *testing.T) {
	g := (BandEarly | BandFinal).Guidance()
	if !strings.Contains(g, "Early chapter") || !strings.Contains(g, "Final chapter") {
		t.Errorf("guidance missing a band: %q", g)
	}
	if got := (BandEarly | BandFinal).String(); got != "early+final" {
		t.Errorf("String() = %q", got)
	}
}

func TestBriefOmitsMissingSummary(t *testing.T) {
	sc := New(Seed{Title: "Ash", Genre: "fantasy"})
	b := NewBrief(sc, Position{Index: 2, Total: 3}, nil)
	out := b.JSON()
	if strings.Contains(out, "Previous Chapter Summary") {
		t.Errorf("brief should omit summary: %s", out)
	}
	if !strings.Contains(out, `"Chapter Title": "Chapter 2"`) {
		t.Errorf("brief missing chapter title: %s", out)
	}

	summary := "They fled."
	out = NewBrief(sc, Position{Index: 2, Total: 3}, &summary).JSON()
	if !strings.Contains(out, `"Previous Chapter Summary": "They fled."`) {
		t.Errorf("brief missing summary: %s", out)
	}
}
