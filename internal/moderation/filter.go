// Package moderation provides soft content classification for chat messages.
// Classifiers flag content for follow-up (a room notice, a dashboard marker)
// but never block delivery.
package moderation

import "strings"

// Result is the outcome of classifying a piece of text. Term names what
// matched when Flagged is true.
type Result struct {
	Flagged bool
	Term    string
}

// Classifier inspects message text and reports whether it should be flagged.
// Implementations must be safe for concurrent use. The interface exists so a
// stronger classifier can replace the built-in ones without touching callers.
type Classifier interface {
	Classify(text string) Result
}

// DefaultTerms is the built-in banned-term list used when no override is
// configured.
var DefaultTerms = []string{"idiot", "stupid", "kill", "hate", "die"}

// TermFilter flags text containing any banned term, matched as a
// case-insensitive substring.
type TermFilter struct {
	terms []string
}

// NewTermFilter builds a TermFilter from the given terms. Terms are
// lowercased; empty or whitespace-only entries are dropped. A nil or empty
// list falls back to DefaultTerms.
func NewTermFilter(terms []string) *TermFilter {
	if len(terms) == 0 {
		terms = DefaultTerms
	}
	f := &TermFilter{}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			f.terms = append(f.terms, t)
		}
	}
	return f
}

// Classify reports the first banned term found in text.
func (f *TermFilter) Classify(text string) Result {
	lowered := strings.ToLower(text)
	for _, t := range f.terms {
		if strings.Contains(lowered, t) {
			return Result{Flagged: true, Term: t}
		}
	}
	return Result{}
}
