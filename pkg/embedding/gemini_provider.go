package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1/models/%s:embedContent"

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbeddingRequest struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"task_type,omitempty"`
}

type geminiEmbeddingResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type GeminiProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiProvider{
		apiKey:   apiKey,
		model:    model,
		endpoint: fmt.Sprintf(geminiEndpoint, model),
		client:   &http.Client{},
	}
}

// Embed uses the SEMANTIC_SIMILARITY task: stored chunks and queries are compared
// symmetrically.
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(geminiEmbeddingRequest{
		Model:    p.model,
		Content:  geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	defer res.Body.Close()

	resByte, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error from gemini response, code %d, body %s", res.StatusCode, string(resByte))
	}

	var parsed geminiEmbeddingResponse
	if err := json.Unmarshal(resByte, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding from gemini")
	}
	return parsed.Embedding.Values, nil
}
