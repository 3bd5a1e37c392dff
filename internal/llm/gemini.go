package llm

import (
	"context"
	"fmt"
	"strings"

	"capillaire/internal/config"
	"capillaire/internal/shared"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiOption customizes the underlying generative model.
type GeminiOption func(*genai.GenerativeModel)

// WithJSONSchema constrains responses to JSON matching schema.
func WithJSONSchema(schema *genai.Schema) GeminiOption {
	return func(m *genai.GenerativeModel) {
		m.ResponseMIMEType = "application/json"
		m.ResponseSchema = schema
	}
}

// WithSystemInstruction sets the system prompt for every request.
func WithSystemInstruction(text string) GeminiOption {
	return func(m *genai.GenerativeModel) {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(text)}}
	}
}

func WithTemperature(t float32) GeminiOption {
	return func(m *genai.GenerativeModel) {
		m.SetTemperature(t)
	}
}

// GeminiClient is a client for the Google Gemini API.
type GeminiClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

// NewGeminiClient creates a new Gemini API client bound to one model.
func NewGeminiClient(ctx context.Context, cfg *config.Config, modelName string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	for _, opt := range opts {
		opt(model)
	}
	return &GeminiClient{client: client, model: model, modelName: modelName}, nil
}

// GenerateContent sends a prompt to the Gemini model and returns the generated text.
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to generate content: %w", err)
	}
	return c.toContentResponse(resp)
}

// Chat replays history into a chat session and sends message.
func (c *GeminiClient) Chat(ctx context.Context, history []ChatMessage, message string) (ContentResponse, error) {
	cs := c.model.StartChat()
	for _, m := range history {
		cs.History = append(cs.History, &genai.Content{
			Role:  string(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to send chat message: %w", err)
	}
	return c.toContentResponse(resp)
}

func (c *GeminiClient) toContentResponse(resp *genai.GenerateContentResponse) (ContentResponse, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return ContentResponse{}, fmt.Errorf("generated content is not text")
	}

	usage := shared.TokenUsage{Model: c.modelName}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return ContentResponse{Content: sb.String(), Usage: usage}, nil
}

// Close closes the underlying Gemini client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}
