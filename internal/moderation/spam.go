package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Compiled once at package init and reused for every call, so the filter is
// safe and cheap under concurrent dispatch.
var (
	// urlPattern matches http/https URLs, www. URLs, and common TLD patterns.
	// The bare-domain variant requires a trailing "/" to avoid false
	// positives on version strings like "v2.0" or decimals like "3.14".
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches common phone number formats such as
	// +1-555-123-4567, (555) 123-4567, 555.123.4567. Anchored to whitespace
	// boundaries so short numbers like "100" don't match.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// spamCheck pairs a detector with the term reported on a hit.
type spamCheck struct {
	name  string
	match func(string) bool
}

// spamChecks is the ordered list applied by SpamFilter. First match wins.
var spamChecks = []spamCheck{
	{name: "url", match: urlPattern.MatchString},
	{name: "phone", match: phonePattern.MatchString},
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
}

// SpamFilter flags text matching heuristic spam patterns: links, phone
// numbers, and character or word flooding. Like every classifier here it
// only annotates; the message is still delivered.
type SpamFilter struct{}

// NewSpamFilter returns a SpamFilter ready for use.
func NewSpamFilter() *SpamFilter {
	return &SpamFilter{}
}

// Classify reports the name of the first spam pattern found in text.
func (f *SpamFilter) Classify(text string) Result {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return Result{Flagged: true, Term: sc.name}
		}
	}
	return Result{}
}

// hasCharFlood returns true if text contains 5 or more consecutive identical
// characters. RE2 has no backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood returns true if the same word appears 3 or more times
// consecutively, case-insensitive. Words are delimited by whitespace.
func hasWordFlood(text string) bool {
	const threshold = 3

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}
