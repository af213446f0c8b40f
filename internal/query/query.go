// Package query derives catalog search strings from a title and author list.
package query

import (
	"regexp"
	"strings"
)

// shortQueryWords is how many leading words of a cleaned title form the broadest candidate.
const shortQueryWords = 4

var (
	versionMarker = regexp.MustCompile(`(?i)\b(v|ver|vol)\.?\s*\d+(\.\d+)*\b`)
	bracketedSpan = regexp.MustCompile(`[\(\[].*?[\)\]]`)
)

// CleanTitle strips version markers ("v2", "Vol. 1.5") and any parenthesized or
// bracketed span, then collapses whitespace.
func CleanTitle(title string) string {
	cleaned := versionMarker.ReplaceAllString(title, "")
	cleaned = bracketedSpan.ReplaceAllString(cleaned, "")
	return strings.Join(strings.Fields(cleaned), " ")
}

// BuildCandidates returns search strings ordered from most to least specific:
// title with first author, title alone, cleaned title, and the first four words
// of the cleaned title. The last two are tried only when cleaning changed the
// title. Empty and repeated strings are dropped. A blank title yields no candidates.
func BuildCandidates(title string, authors []string) []string {
	if strings.TrimSpace(title) == "" {
		return nil
	}

	var b builder
	if len(authors) > 0 {
		b.add(strings.TrimSpace(title + " " + strings.TrimSpace(authors[0])))
	}
	b.add(title)

	if cleaned := CleanTitle(title); cleaned != title {
		b.add(cleaned)
		if words := strings.Fields(cleaned); len(words) > shortQueryWords {
			b.add(strings.Join(words[:shortQueryWords], " "))
		}
	}

	return b.out
}

type builder struct {
	out  []string
	seen map[string]bool
}

func (b *builder) add(candidate string) {
	if strings.TrimSpace(candidate) == "" {
		return
	}
	if b.seen == nil {
		b.seen = make(map[string]bool)
	}
	if b.seen[candidate] {
		return
	}
	b.seen[candidate] = true
	b.out = append(b.out, candidate)
}
