package evaluate

import (
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Similarity returns the Ratcliff/Obershelp ratio of the two texts over
// characters, case-insensitive, scaled to 0..100 with one decimal.
func Similarity(reference, transcription string) float64 {
	a := runes(strings.ToLower(strings.TrimSpace(reference)))
	b := runes(strings.ToLower(strings.TrimSpace(transcription)))
	ratio := difflib.NewMatcher(a, b).Ratio()
	return round1(ratio * 100)
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// wordSet returns the distinct lower-cased whitespace-separated words of s
// in order of first occurrence.
func wordSet(s string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// difference returns the members of a not in b, keeping a's order.
func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, w := range b {
		in[w] = struct{}{}
	}
	out := []string{}
	for _, w := range a {
		if _, ok := in[w]; !ok {
			out = append(out, w)
		}
	}
	return out
}

func head(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
