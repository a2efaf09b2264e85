package steps

import "unicode/utf8"

// embeddingInput is title + blank line + content, capped at maxChars runes.
func embeddingInput(title, content string, maxChars int) (string, bool) {
	text := title + "\n\n" + content
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i], true
		}
		n++
	}
	return text, false
}
