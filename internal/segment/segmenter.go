// Package segment splits free text into sentence-sized practice candidates.
package segment

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxSegments caps a document import when no explicit limit is set.
const DefaultMaxSegments = 10

// minRunes is the shortest candidate kept; anything at or below is treated
// as a heading or layout artifact.
const minRunes = 10

// Sentences yields sentence candidates of text in order. The sequence is
// lazy and can be ranged over any number of times.
//
// Whitespace runs are collapsed to a single space; no other normalization is
// applied so the exact wording survives for later scoring.
func Sentences(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		norm := strings.Join(strings.Fields(text), " ")
		for len(norm) > 0 {
			cut := boundary(norm)
			var sentence string
			if cut < 0 {
				sentence, norm = norm, ""
			} else {
				sentence, norm = norm[:cut], norm[cut:]
			}
			sentence = strings.TrimSpace(sentence)
			if !keep(sentence) {
				continue
			}
			if !yield(sentence) {
				return
			}
		}
	}
}

// Split collects at most max candidates from text. Content past the cap is
// dropped. max <= 0 selects DefaultMaxSegments.
func Split(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxSegments
	}
	out := make([]string, 0, max)
	for s := range Sentences(text) {
		out = append(out, s)
		if len(out) >= max {
			break
		}
	}
	return out
}

// boundary returns the index just past the first terminator that is followed
// by whitespace, or -1.
func boundary(s string) int {
	for i := 0; i+1 < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' {
				return i + 1
			}
		}
	}
	return -1
}

func keep(s string) bool {
	if utf8.RuneCountInString(s) <= minRunes {
		return false
	}
	return !numeric(s)
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
