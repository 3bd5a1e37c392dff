package telegram

import (
	"fmt"

	"capillaire/internal/logging"
	"capillaire/internal/shared"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// contextBloatTokens is the prompt size above which the admin is warned.
const contextBloatTokens = 4000

// Alerter tells the admin chat about failed or oversized generation calls.
// It implements planner.Observer.
type Alerter struct {
	api     Sender
	adminID int64
	logger  logging.Logger
}

func NewAlerter(api Sender, adminID int64, logger logging.Logger) *Alerter {
	return &Alerter{api: api, adminID: adminID, logger: logger}
}

func (a *Alerter) ObserveGeneration(meta shared.Generation) {
	if text, ok := alertFor(meta); ok {
		go a.sendAdminAlert(text)
	}
}

func alertFor(meta shared.Generation) (string, bool) {
	switch {
	case meta.Failed():
		return fmt.Sprintf("🚨 *Generation Failure*\nAgent: %s\nOutcome: %s\nLatency: %dms",
			meta.Component, escape(meta.Outcome), meta.Latency.Milliseconds()), true
	case meta.Usage.PromptTokens > contextBloatTokens:
		return fmt.Sprintf("⚠️ *Context Bloat Alert*\nAgent: %s\nModel: %s\nPrompt Tokens: %d",
			meta.Component, escape(meta.Usage.Model), meta.Usage.PromptTokens), true
	}
	return "", false
}

func (a *Alerter) sendAdminAlert(text string) {
	if a.adminID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(a.adminID, text)
	msg.ParseMode = "Markdown"
	if _, err := a.api.Send(msg); err != nil {
		a.logger.Warnf("Failed to send admin alert: %v", err)
	}
}
