package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/vampirenirmal/storyloom/internal/core"
)

// NamingStrategy decides how run output directories are named.
type NamingStrategy int

const (
	// NamingUUID uses the full run ID (default).
	NamingUUID NamingStrategy = iota
	// NamingTimestamp uses a timestamp and a short ID.
	NamingTimestamp
	// NamingDescriptive uses a timestamp, a premise slug and a short ID.
	NamingDescriptive
)

// ParseNamingStrategy maps a config value to a strategy. Unknown values
// fall back to NamingUUID.
func ParseNamingStrategy(s string) NamingStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "timestamp":
		return NamingTimestamp
	case "descriptive":
		return NamingDescriptive
	}
	return NamingUUID
}

func (n NamingStrategy) String() string {
	switch n {
	case NamingTimestamp:
		return "timestamp"
	case NamingDescriptive:
		return "descriptive"
	}
	return "uuid"
}

// SessionDir returns the storage-relative directory for a run.
//
//	uuid:        sessions/82f06b15-...
//	timestamp:   sessions/2025-07-16_1530_82f06b15
//	descriptive: sessions/2025-07-16_1530_a-lamplighter-in-a-drowned_82f06b15
func SessionDir(runID, premise string, strategy NamingStrategy, now time.Time) string {
	switch strategy {
	case NamingTimestamp:
		return path.Join("sessions", fmt.Sprintf("%s_%s", now.Format("2006-01-02_1504"), shortID(runID)))
	case NamingDescriptive:
		return path.Join("sessions", fmt.Sprintf("%s_%s_%s",
			now.Format("2006-01-02_1504"), slugify(premise, 30), shortID(runID)))
	}
	return path.Join("sessions", runID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lower-cases s and keeps runs of ASCII letters and digits joined by
// hyphens, cut to maxLen.
func slugify(s string, maxLen int) string {
	s = nonSlug.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if s == "" {
		s = "story"
	}
	return s
}

// Metadata renders the metadata.md file of a run directory.
func Metadata(run core.RunInfo) []byte {
	var b strings.Builder
	b.WriteString("# Session Metadata\n\n")
	fmt.Fprintf(&b, "**Session ID**: %s\n", run.ID)
	fmt.Fprintf(&b, "**Mode**: %s\n", run.Mode)
	fmt.Fprintf(&b, "**Started**: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "**Finished**: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&b, "**Genre**: %s\n", run.Request.Genre)
	fmt.Fprintf(&b, "**Chapters**: %d of %d\n", run.Chapters, run.Request.Chapters)
	if run.Context != nil && run.Context.Title != "" {
		fmt.Fprintf(&b, "**Title**: %s\n", run.Context.Title)
	}
	fmt.Fprintf(&b, "\n## Premise\n\n%s\n", run.Request.Premise)
	b.WriteString("\n## Output Files\n\n")
	b.WriteString("- `chapters/chapter-NN.md`: refined chapter text\n")
	b.WriteString("- `summary.md`: rolling summary after the latest chapter\n")
	b.WriteString("- `context.json`: story context after the latest chapter\n")
	return []byte(b.String())
}
