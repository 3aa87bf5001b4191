// Package retrieval holds the pure parts of note search: chunking transcripts, scoring
// vectors and ranking hits.
package retrieval

import (
	"strings"
	"unicode/utf8"
)

const DefaultChunkSize = 1000

// Chunk greedily packs whitespace-separated words into chunks of at most maxLen runes,
// joined by single spaces. A word longer than maxLen becomes a chunk of its own rather
// than being split. The same text always produces the same boundaries.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if size > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, w := range words {
		n := utf8.RuneCountInString(w)
		switch {
		case size == 0:
			current.WriteString(w)
			size = n
		case size+1+n <= maxLen:
			current.WriteByte(' ')
			current.WriteString(w)
			size += 1 + n
		default:
			flush()
			current.WriteString(w)
			size = n
		}
	}
	flush()

	return chunks
}
