package steps

import (
	"strings"
	"unicode"
)

const (
	snippetBefore   = 80
	snippetAfter    = 140
	snippetFallback = 220
	ellipsis        = "…"
)

// ExtractSnippet returns the text around the first case-insensitive match of
// query in whitespace-normalized content, or its first 220 characters.
func ExtractSnippet(content, query string) string {
	norm := []rune(strings.Join(strings.Fields(content), " "))
	if len(norm) == 0 {
		return ""
	}
	q := []rune(strings.Join(strings.Fields(query), " "))
	idx := indexFold(norm, q)
	if idx < 0 {
		if len(norm) > snippetFallback {
			return string(norm[:snippetFallback])
		}
		return string(norm)
	}

	start := idx - snippetBefore
	if start < 0 {
		start = 0
	}
	end := idx + len(q) + snippetAfter
	if end > len(norm) {
		end = len(norm)
	}
	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(string(norm[start:end]))
	if end < len(norm) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

// indexFold finds needle in hay comparing rune by rune after lowering, so the
// returned index is valid for hay.
func indexFold(hay, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j := range needle {
			if unicode.ToLower(hay[i+j]) != unicode.ToLower(needle[j]) {
				continue outer
			}
		}
		return i
	}
	return -1
}
