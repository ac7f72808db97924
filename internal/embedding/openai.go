// Package embedding provides text embedding clients for the memory store.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAI calls an OpenAI-compatible /v1/embeddings endpoint. Local servers
// (llama.cpp, Ollama, LM Studio) speak the same protocol.
type OpenAI struct {
	apiURL string
	apiKey string
	model  string
	dims   int
	client *http.Client
}

func NewOpenAI(apiURL, apiKey, model string, dims int) *OpenAI {
	return &OpenAI{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (e *OpenAI) Dimensions() int { return e.dims }

func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]any{
		"input": text,
		"model": e.model,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Data[0].Embedding, nil
}
