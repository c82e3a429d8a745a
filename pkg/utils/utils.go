// Package utils provides small text helpers shared by the skills: HTML
// stripping for plain-text output, truncation for previews, closest-name
// suggestions for not-found errors and secret redaction for logs.
package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
	htmlBreakRe   = regexp.MustCompile(`(?i)<br\s*/?>|</div>|</p>|</li>`)
	styleScriptRe = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(style|script)>`)
)

// StripHTML removes markup from an Anki field value, keeping line breaks and
// decoding entities.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	s = styleScriptRe.ReplaceAllString(s, "")
	s = htmlBreakRe.ReplaceAllString(s, "\n")
	s = htmlTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(s)
}

// FlattenWhitespace replaces newlines with spaces.
func FlattenWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

// Truncate shortens s to at most limit runes, appending "..." when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(ra)]
}

// ClosestMatch returns the candidate most similar to name, compared
// case-insensitively. It returns "" when nothing is within half the length of
// name, so unrelated suggestions are never offered.
func ClosestMatch(name string, candidates []string) string {
	target := strings.ToLower(name)
	best := ""
	bestDistance := -1
	for _, c := range candidates {
		d := Levenshtein(target, strings.ToLower(c))
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = c, d
		}
	}
	if bestDistance < 0 {
		return ""
	}
	threshold := max(utf8.RuneCountInString(name)/2, 1)
	if bestDistance > threshold {
		return ""
	}
	return best
}

// QuoteList renders names as a comma separated list of quoted strings.
func QuoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = `"` + n + `"`
	}
	return strings.Join(quoted, ", ")
}
