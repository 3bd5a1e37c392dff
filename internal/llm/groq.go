package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"capillaire/internal/config"
	"capillaire/internal/shared"
)

const (
	groqAPIURL = "https://api.groq.com/openai/v1/chat/completions"
	groqModel  = "llama-3.3-70b-versatile"
)

// GroqOption customizes a Groq client.
type GroqOption func(*GroqClient)

// WithGroqJSONMode asks the API for a JSON object response.
func WithGroqJSONMode() GroqOption {
	return func(c *GroqClient) { c.jsonMode = true }
}

func WithGroqSystemPrompt(text string) GroqOption {
	return func(c *GroqClient) { c.system = text }
}

func WithGroqTemperature(t float64) GroqOption {
	return func(c *GroqClient) { c.temperature = t }
}

// WithGroqURL points the client at a different endpoint.
func WithGroqURL(url string) GroqOption {
	return func(c *GroqClient) { c.url = url }
}

// GroqClient is a client for the Groq API.
type GroqClient struct {
	apiKey      string
	url         string
	model       string
	system      string
	temperature float64
	jsonMode    bool
	httpClient  *http.Client
}

// NewGroqClient creates a new Groq API client.
func NewGroqClient(cfg *config.Config, opts ...GroqOption) *GroqClient {
	c := &GroqClient{
		apiKey:      cfg.GroqAPIKey,
		url:         groqAPIURL,
		model:       groqModel,
		temperature: 0.1,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateContent sends a prompt to the Groq model and returns the generated text.
func (c *GroqClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	return c.complete(ctx, []groqMessage{{Role: "user", Content: prompt}})
}

// Chat sends the conversation so far plus message.
func (c *GroqClient) Chat(ctx context.Context, history []ChatMessage, message string) (ContentResponse, error) {
	msgs := make([]groqMessage, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Role == RoleModel {
			role = "assistant"
		}
		msgs = append(msgs, groqMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, groqMessage{Role: "user", Content: message})
	return c.complete(ctx, msgs)
}

func (c *GroqClient) complete(ctx context.Context, msgs []groqMessage) (ContentResponse, error) {
	if c.system != "" {
		msgs = append([]groqMessage{{Role: "system", Content: c.system}}, msgs...)
	}

	reqBody := map[string]interface{}{
		"model":       c.model,
		"messages":    msgs,
		"temperature": c.temperature,
	}
	if c.jsonMode {
		reqBody["response_format"] = map[string]string{"type": "json_object"}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return ContentResponse{}, fmt.Errorf("groq api error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var groqResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(groqResp.Choices) == 0 {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}

	return ContentResponse{
		Content: groqResp.Choices[0].Message.Content,
		Usage: shared.TokenUsage{
			PromptTokens:     groqResp.Usage.PromptTokens,
			CompletionTokens: groqResp.Usage.CompletionTokens,
			TotalTokens:      groqResp.Usage.TotalTokens,
			Model:            c.model,
		},
	}, nil
}
