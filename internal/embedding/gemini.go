package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Gemini embeds text with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	dims   int
}

func NewGemini(ctx context.Context, apiKey, model string, dims int) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	return &Gemini{client: client, model: model, dims: dims}, nil
}

func (g *Gemini) Dimensions() int { return g.dims }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{}
	if g.dims > 0 {
		d := int32(g.dims)
		cfg.OutputDimensionality = &d
	}
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.model))
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, goerr.New("gemini returned no embeddings", goerr.V("model", g.model))
	}
	return resp.Embeddings[0].Values, nil
}
