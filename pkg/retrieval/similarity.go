package retrieval

import (
	"math"
	"sort"
)

// Cosine returns dot(a,b) / (|a|·|b|). ok is false when the vectors differ in length, are
// empty, or either has zero norm; such pairs have no defined similarity.
func Cosine(a, b []float32) (score float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// Candidate is a stored chunk considered for a query.
type Candidate struct {
	VectorID  int64
	AudioKey  string
	Content   string
	Embedding []float32
}

// Hit is a candidate that passed the threshold.
type Hit struct {
	VectorID int64   `json:"vector_id"`
	AudioKey string  `json:"audio_key"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// Rank scores every candidate against query, keeps those scoring strictly above
// threshold, and returns the best k by score; equal scores keep the lower VectorID first.
func Rank(query []float32, candidates []Candidate, k int, threshold float64) []Hit {
	if k <= 0 {
		return nil
	}

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		score, ok := Cosine(query, c.Embedding)
		// NaN fails every comparison, so only a score known to be above threshold passes.
		if !ok || !(score > threshold) {
			continue
		}
		hits = append(hits, Hit{VectorID: c.VectorID, AudioKey: c.AudioKey, Content: c.Content, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].VectorID < hits[j].VectorID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// SourceKeys lists the note behind each hit in rank order, so entry i backs the
// citation "(Note i+1)" of a reply built from the same hits.
func SourceKeys(hits []Hit) []string {
	if len(hits) == 0 {
		return nil
	}
	keys := make([]string, len(hits))
	for i, h := range hits {
		keys[i] = h.AudioKey
	}
	return keys
}
