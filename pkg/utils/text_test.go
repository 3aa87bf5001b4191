package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"Holiday Plans"`, "Holiday Plans"},
		{"“Plan de viaje”", "Plan de viaje"},
		{"  'Groceries'  ", "Groceries"},
		{"No quotes", "No quotes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripQuotes(tt.in))
	}
}

func TestFirstWords(t *testing.T) {
	assert.Equal(t, "one two three four five", FirstWords("one two  three\nfour five six seven", 5))
	assert.Equal(t, "short", FirstWords(" short ", 5))
}

func TestFirstSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"cuts after two", "You plan a trip. You need tickets! You also pack?", "You plan a trip. You need tickets!"},
		{"keeps decimals together", "You spent 3.50 today. That is fine. Extra.", "You spent 3.50 today. That is fine."},
		{"fewer than max", "Just one sentence", "Just one sentence"},
		{"spanish", "Planeas un viaje. Necesitas boletos. Y más.", "Planeas un viaje. Necesitas boletos."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FirstSentences(tt.in, 2))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ñandú…", Truncate("ñandú azul", 5))
}
