package factory

import (
	"fmt"

	"voice2note-be/pkg/llm"
	"voice2note-be/pkg/llm/ollama"
	"voice2note-be/pkg/llm/openai"
)

type Config struct {
	Provider string // ollama | openai
	BaseURL  string
	APIKey   string
	Model    string
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "", "ollama":
		return ollama.NewOllamaProvider(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return openai.NewProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
