package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
)

type fakeGenerator struct {
	failures int
	answer   string
	calls    int
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	for _, o := range options {
		o(&f.options)
	}
	if f.calls <= f.failures {
		return nil, errors.New("502 bad gateway")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.answer}}}, nil
}

func llmConfig() *config.LLMConfig {
	return &config.LLMConfig{Model: "mistralai/Mistral-Nemo-Instruct-2407", Temperature: 0.5, MaxTokens: 600, MaxAttempts: 2}
}

func request() models.InferenceRequest {
	return models.InferenceRequest{Messages: []models.Message{
		{Role: models.RoleSystem, Content: []models.ContentBlock{models.TextBlock("rubric")}},
		{Role: models.RoleUser, Content: []models.ContentBlock{
			models.TextBlock("Job description:\nGo"),
			models.TextBlock("Resume: a.pdf (relevance score: 0.3000)"),
			models.ImageBlock("data:image/png;base64,AAAA"),
		}},
	}}
}

func TestInferSucceedsOnRetry(t *testing.T) {
	gen := &fakeGenerator{failures: 1, answer: "Candidate a.pdf fits."}
	c := NewClientWithGenerator(gen, llmConfig())

	answer, err := c.Infer(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "Candidate a.pdf fits.", answer)
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, 0.5, gen.options.Temperature)
	assert.Equal(t, 600, gen.options.MaxTokens)
}

func TestInferExhaustsRetries(t *testing.T) {
	gen := &fakeGenerator{failures: 10}
	c := NewClientWithGenerator(gen, llmConfig())

	_, err := c.Infer(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, 2, gen.calls)
	assert.ErrorIs(t, err, models.ErrInferenceFailure)

	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 2, ie.Attempts)
	assert.Contains(t, ie.Err.Error(), "502")
}

func TestInferStopsOnCancel(t *testing.T) {
	gen := &fakeGenerator{failures: 10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClientWithGenerator(gen, llmConfig()).Infer(ctx, request())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, gen.calls)
}

func TestToMessageContent(t *testing.T) {
	msgs := ToMessageContent(request())
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, []llms.ContentPart{llms.TextContent{Text: "rubric"}}, msgs[0].Parts)

	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, []llms.ContentPart{
		llms.TextContent{Text: "Job description:\nGo"},
		llms.TextContent{Text: "Resume: a.pdf (relevance score: 0.3000)"},
		llms.ImageURLContent{URL: "data:image/png;base64,AAAA"},
	}, msgs[1].Parts)
}

func TestPublicMessage(t *testing.T) {
	err := &InferenceError{Attempts: 2, Err: errors.New("dial tcp: timeout")}
	assert.Equal(t, "Failed to get response from AI service", PublicMessage(err, true))
	assert.Contains(t, PublicMessage(err, false), "dial tcp: timeout")
}
