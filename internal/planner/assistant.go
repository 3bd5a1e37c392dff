package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/llm"
	"capillaire/internal/logging"
	"capillaire/internal/shared"
)

// AssistantInstruction is the system prompt for the care assistant.
const AssistantInstruction = "Você é o Assistente Capillaire. Especialista em terapias naturais (Babosa, Óleos, Argilas). Ajude o usuário com seu cronograma. Nunca sugira químicos agressivos."

// FallbackTip is returned when a quick tip cannot be generated.
const FallbackTip = "Tente massagear o couro cabeludo com movimentos circulares para estimular a saúde dos fios."

// Assistant answers free-form questions about the care routine.
type Assistant struct {
	chat     llm.ChatGenerator
	tips     llm.TextGenerator
	logger   logging.Logger
	observer Observer
}

// NewAssistant wires the chat model and the quick-tip model. They may be
// the same client.
func NewAssistant(chat llm.ChatGenerator, tips llm.TextGenerator, logger logging.Logger, observer Observer) *Assistant {
	return &Assistant{chat: chat, tips: tips, logger: logger, observer: observer}
}

// Chat sends message with the prior conversation.
func (a *Assistant) Chat(ctx context.Context, history []llm.ChatMessage, message string) (string, error) {
	start := time.Now()
	resp, err := a.chat.Chat(ctx, history, message)
	a.record("Assistant", resp.Usage, start, err)
	if err != nil {
		return "", fmt.Errorf("assistant chat failed: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// FastTip returns a two-sentence natural tip for problem. It never fails:
// upstream errors yield FallbackTip.
func (a *Assistant) FastTip(ctx context.Context, problem string, d *diagnosis.Diagnosis) string {
	prompt := fmt.Sprintf("Dê uma dica natural de 2 frases para o problema: %s.", problem)
	if d != nil {
		prompt += fmt.Sprintf(" Para um cabelo %s e porosidade %s.", d.Curvature.Label(), d.Porosity.Label())
	}

	start := time.Now()
	resp, err := a.tips.GenerateContent(ctx, prompt)
	a.record("FastTip", resp.Usage, start, err)
	if err != nil {
		a.logger.Warnf("Warning: fast tip failed, using fallback: %v", err)
		return FallbackTip
	}
	tip := strings.TrimSpace(resp.Content)
	if tip == "" {
		return FallbackTip
	}
	return tip
}

func (a *Assistant) record(name string, usage shared.TokenUsage, start time.Time, err error) {
	if a.observer == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(KindUpstreamError)
	}
	a.observer.ObserveGeneration(shared.Generation{
		Component: name,
		Usage:     usage,
		Latency:   time.Since(start),
		Outcome:   outcome,
	})
}
