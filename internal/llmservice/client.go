package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
)

const publicFailureMessage = "Failed to get response from AI service"

// Generator is the part of a langchaingo model the client needs
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Client sends inference requests to an OpenAI-compatible chat endpoint with
// a fixed retry budget and no backoff
type Client struct {
	llm         Generator
	model       string
	temperature float64
	maxTokens   int
	maxAttempts int
}

// InferenceError is returned once every attempt has failed
type InferenceError struct {
	Attempts int
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", models.ErrInferenceFailure, e.Attempts, e.Err)
}

func (e *InferenceError) Unwrap() []error {
	return []error{models.ErrInferenceFailure, e.Err}
}

// NewClient builds a client for the configured endpoint
func NewClient(llmConfig *config.LLMConfig) (*Client, error) {
	log.Debug().Str("model", llmConfig.Model).Str("base_url", llmConfig.BaseURL).Msg("Creating inference client")
	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, err
	}
	return NewClientWithGenerator(llm, llmConfig), nil
}

func NewClientWithGenerator(llm Generator, llmConfig *config.LLMConfig) *Client {
	attempts := llmConfig.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		llm:         llm,
		model:       llmConfig.Model,
		temperature: llmConfig.Temperature,
		maxTokens:   llmConfig.MaxTokens,
		maxAttempts: attempts,
	}
}

// Infer sends req and returns the first choice's text
func (c *Client) Infer(ctx context.Context, req models.InferenceRequest) (string, error) {
	messages := ToMessageContent(req)
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		log.Debug().Str("model", c.model).Int("attempt", attempt).Int("max_attempts", c.maxAttempts).
			Int("images", req.ImageCount()).Msg("Making inference request")

		resp, err := c.llm.GenerateContent(ctx, messages, opts...)
		if err == nil {
			if len(resp.Choices) > 0 {
				return resp.Choices[0].Content, nil
			}
			err = errors.New("response has no choices")
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("Inference request failed")

		if ctx.Err() != nil {
			return "", &InferenceError{Attempts: attempt, Err: ctx.Err()}
		}
	}
	return "", &InferenceError{Attempts: c.maxAttempts, Err: lastErr}
}

// ToMessageContent converts a request to langchaingo messages; the openai
// client serialises text and image parts in the chat completions shape.
func ToMessageContent(req models.InferenceRequest) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		mc := llms.MessageContent{Role: chatRole(m.Role)}
		for _, b := range m.Content {
			switch b.Type {
			case models.BlockImageURL:
				if b.ImageURL != nil {
					mc.Parts = append(mc.Parts, llms.ImageURLContent{URL: b.ImageURL.URL})
				}
			default:
				mc.Parts = append(mc.Parts, llms.TextContent{Text: b.Text})
			}
		}
		out = append(out, mc)
	}
	return out
}

func chatRole(r models.Role) llms.ChatMessageType {
	if r == models.RoleSystem {
		return llms.ChatMessageTypeSystem
	}
	return llms.ChatMessageTypeHuman
}

// PublicMessage is what callers outside the service get to see. Internal
// detail is only added outside production.
func PublicMessage(err error, production bool) string {
	if err == nil || production {
		return publicFailureMessage
	}
	return publicFailureMessage + ": " + err.Error()
}
