package fiction

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// The writer is asked for chapters of roughly this length.
const (
	ChapterMinWords = 2000
	ChapterMaxWords = 3000
)

// WordTracker records chapter lengths for a run.
type WordTracker struct {
	mu       sync.Mutex
	chapters map[int]int
}

func NewWordTracker() *WordTracker {
	return &WordTracker{chapters: make(map[int]int)}
}

// Record stores the length of chapter and returns its word count. A
// regenerated chapter replaces the earlier count.
func (wt *WordTracker) Record(chapter int, text string) int {
	words := CountWords(text)
	wt.mu.Lock()
	wt.chapters[chapter] = words
	wt.mu.Unlock()
	return words
}

func (wt *WordTracker) Total() int {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	total := 0
	for _, words := range wt.chapters {
		total += words
	}
	return total
}

// NeedsAdjustment reports whether chapter fell outside the requested range
// by more than threshold (0.1 is 10%), with a description.
func (wt *WordTracker) NeedsAdjustment(chapter int, threshold float64) (bool, string) {
	wt.mu.Lock()
	actual, ok := wt.chapters[chapter]
	wt.mu.Unlock()
	if !ok {
		return false, ""
	}

	low := int(float64(ChapterMinWords) * (1 - threshold))
	high := int(float64(ChapterMaxWords) * (1 + threshold))
	switch {
	case actual < low:
		return true, fmt.Sprintf("Chapter %d is %d words short of %d", chapter, ChapterMinWords-actual, ChapterMinWords)
	case actual > high:
		return true, fmt.Sprintf("Chapter %d is %d words over %d", chapter, actual-ChapterMaxWords, ChapterMaxWords)
	}
	return false, ""
}

// Summary renders per-chapter counts in chapter order.
func (wt *WordTracker) Summary() string {
	wt.mu.Lock()
	indexes := make([]int, 0, len(wt.chapters))
	for i := range wt.chapters {
		indexes = append(indexes, i)
	}
	counts := make(map[int]int, len(wt.chapters))
	for i, w := range wt.chapters {
		counts[i] = w
	}
	wt.mu.Unlock()
	sort.Ints(indexes)

	var b strings.Builder
	total := 0
	for _, i := range indexes {
		fmt.Fprintf(&b, "Chapter %d: %d words\n", i, counts[i])
		total += counts[i]
	}
	fmt.Fprintf(&b, "Total: %d words, about %d minutes of reading", total, EstimateReadingTime(total))
	return b.String()
}

// CountWords counts words in text
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// EstimateReadingTime estimates reading time in minutes
func EstimateReadingTime(wordCount int) int {
	// Average reading speed: 200-250 words per minute
	return wordCount / 225
}
