package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGenAIModel is the Gemini embedding model used when none is configured.
const DefaultGenAIModel = "gemini-embedding-001"

// ErrEmptyResponse is returned when the upstream answers without vectors.
var ErrEmptyResponse = errors.New("no embeddings returned")

// GenAIEngine embeds texts with Google's Gemini API in a single request per call.
// Wrap it in Batched for rate-limited batch behaviour.
type GenAIEngine struct {
	client    *genai.Client
	model     string
	truncator *Truncator
}

// GenAIConfig configures a GenAIEngine.
type GenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int // 0 disables input capping
}

// NewGenAIEngine creates a new GenAI embedding engine.
func NewGenAIEngine(ctx context.Context, cfg GenAIConfig) (*GenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGenAIModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}

	var truncator *Truncator
	if cfg.MaxTokens > 0 {
		truncator, err = NewTruncator(cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
	}

	return &GenAIEngine{
		client:    client,
		model:     model,
		truncator: truncator,
	}, nil
}

// Embed implements Provider.
func (e *GenAIEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(e.truncator.Truncate(text), genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: "CLUSTERING",
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI embed: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 {
		return nil, ErrEmptyResponse
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return "genai:" + e.model
}
