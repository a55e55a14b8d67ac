// Package export turns a finished run into a manuscript and a story bible.
package export

import (
	"regexp"
	"strings"
)

var headingRe = regexp.MustCompile(`^(Chapter \d+):\s(.+)`)

// Heading is the parsed first line of a chapter, e.g. "Chapter 3: The Tide".
type Heading struct {
	Number string
	Title  string
}

// ParseHeading splits a chapter into its heading and body. ok is false when
// the first line does not follow the "Chapter N: Title" contract.
func ParseHeading(text string) (h Heading, body string, ok bool) {
	first, rest, _ := strings.Cut(strings.TrimSpace(text), "\n")
	m := headingRe.FindStringSubmatch(strings.TrimRight(first, "\r"))
	if m == nil {
		return Heading{}, "", false
	}
	return Heading{Number: m[1], Title: strings.TrimSpace(m[2])}, strings.TrimSpace(rest), true
}
