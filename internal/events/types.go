package events

// Event types published during a story run.
const (
	TypeStoryPlanned      = "story.planned"
	TypeStoryRevised      = "story.revised"
	TypeScenesPlanned     = "scenes.planned"
	TypeChapterCompleted  = "chapter.completed"
	TypeCoherenceChecked  = "coherence.checked"
	TypeSessionTransition = "session.transition"

	// TypeBookkeepingSkipped means structured output could not be parsed
	// and the previous state was kept.
	TypeBookkeepingSkipped = "bookkeeping.skipped"
	// TypeOutputEmpty means an agent produced no text.
	TypeOutputEmpty   = "output.empty"
	TypeGatewayFailed = "gateway.failed"
	TypeGatewayEmpty  = "gateway.empty"
)

// Subscription patterns.
const (
	PatternAll         = `.*`
	PatternDegradation = `^(bookkeeping|output|gateway)\.`
	PatternLifecycle   = `^(story|scenes|chapter|coherence|session)\.`
)

// Degradation is the payload of degradation events.
type Degradation struct {
	Stage   string `json:"stage"`
	Chapter int    `json:"chapter,omitempty"`
	Reason  string `json:"reason"`
	// Raw holds the offending model output, truncated.
	Raw string `json:"raw,omitempty"`
}

// ChapterData is the payload of chapter.completed.
type ChapterData struct {
	Chapter int    `json:"chapter"`
	Total   int    `json:"total"`
	Words   int    `json:"words"`
	Heading string `json:"heading,omitempty"`
}

// IsDegradation reports whether an event type signals lost or empty output.
func IsDegradation(eventType string) bool {
	switch eventType {
	case TypeBookkeepingSkipped, TypeOutputEmpty, TypeGatewayFailed, TypeGatewayEmpty:
		return true
	}
	return false
}
