package embedding

import (
	"context"
	"fmt"
	"math"
)

// EmbeddingProvider turns text into a fixed-length vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Provider string // ollama | openai | gemini
	BaseURL  string
	APIKey   string
	Model    string
}

func NewProvider(cfg Config) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "gemini":
		return NewGeminiProvider(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// normalizeVector normalizes a vector to unit length (magnitude = 1)
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	// Avoid division by zero
	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
