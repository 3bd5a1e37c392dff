package llm

import (
	"context"

	"capillaire/internal/shared"
)

// Model names used by the application.
const (
	ModelPlan      = "gemini-2.5-flash"
	ModelAssistant = "gemini-2.5-flash-lite"
)

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// Role of a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is one prior turn of a conversation.
type ChatMessage struct {
	Role    Role
	Content string
}

// ChatGenerator answers a message given the conversation so far.
type ChatGenerator interface {
	Chat(ctx context.Context, history []ChatMessage, message string) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}
