package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"resume-rag/internal/config"
)

// Embedder maps text to a fixed-dimensionality vector. One instance is shared
// by ingestion and querying for the lifetime of the process.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the embedding model; it is recorded in the index
	// manifest so an index is never queried with a different model.
	Model() string
}

// LangchainEmbedder adapts a langchaingo embedder
type LangchainEmbedder struct {
	impl  embeddings.Embedder
	model string
}

func (e *LangchainEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.impl.EmbedQuery(ctx, text)
}

func (e *LangchainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.impl.EmbedDocuments(ctx, texts)
}

func (e *LangchainEmbedder) Model() string {
	return e.model
}

// New builds the embedder selected by the config
func New(cfg *config.LLMConfig) (Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "hashing":
		return NewHashingEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// new ollama embedder
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*LangchainEmbedder, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Initializing ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &LangchainEmbedder{impl: embedder, model: "ollama/" + llmConfig.Model}, nil
}

// NewOpenAIEmbedder works against any OpenAI-compatible embeddings endpoint
func NewOpenAIEmbedder(llmConfig *config.LLMConfig) (*LangchainEmbedder, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Initializing openai embedder")

	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithEmbeddingModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &LangchainEmbedder{impl: embedder, model: "openai/" + llmConfig.Model}, nil
}
