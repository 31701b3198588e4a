// Package llm provides the Gemini client pieces the agent needs outside the
// ADK runtime: text embeddings for the vector memory store.
package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultEmbeddingModel produces 768-dimension vectors, matching the
// memory_records.embedding column.
const DefaultEmbeddingModel = "text-embedding-004"

// EmbedFunc is the subset of the genai Models API used for embeddings.
type EmbedFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)

// Embedder generates text embeddings through the Gemini API.
type Embedder struct {
	embed EmbedFunc
	model string
}

// NewEmbedder creates an Embedder backed by a Gemini API client.
func NewEmbedder(ctx context.Context, apiKey string) (*Embedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return NewEmbedderFunc(client.Models.EmbedContent, DefaultEmbeddingModel), nil
}

// NewEmbedderFunc creates an Embedder over an arbitrary embed call.
func NewEmbedderFunc(embed EmbedFunc, model string) *Embedder {
	return &Embedder{embed: embed, model: model}
}

// Embed generates an embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.embed(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("no embedding returned")
	}

	return resp.Embeddings[0].Values, nil
}
