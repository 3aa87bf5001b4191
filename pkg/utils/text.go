package utils

import (
	"strings"
	"unicode"
)

const quoteChars = "\"'`“”‘’«»"

// StripQuotes removes quotation marks models like to wrap short answers in.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.Trim(s, quoteChars))
}

// FirstWords keeps at most n whitespace-separated words.
func FirstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// FirstSentences keeps at most n sentences. A sentence ends at '.', '!' or '?' followed by
// whitespace or the end of the text.
func FirstSentences(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	count := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		count++
		if count == n {
			return string(runes[:i+1])
		}
	}
	return string(runes)
}

// Truncate cuts s to at most max runes, appending an ellipsis when it cut.
func Truncate(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
