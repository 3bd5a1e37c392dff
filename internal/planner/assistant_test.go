package planner

import (
	"context"
	"errors"
	"testing"

	"capillaire/internal/diagnosis"
	"capillaire/internal/llm"
	"capillaire/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockChatGenerator struct {
	Reply   string
	Err     error
	History []llm.ChatMessage
	Message string
}

func (m *MockChatGenerator) Chat(ctx context.Context, history []llm.ChatMessage, message string) (llm.ContentResponse, error) {
	m.History = history
	m.Message = message
	if m.Err != nil {
		return llm.ContentResponse{}, m.Err
	}
	return llm.ContentResponse{Content: m.Reply}, nil
}

func TestAssistantChat(t *testing.T) {
	chat := &MockChatGenerator{Reply: " Use óleo de coco. "}
	obs := &recordingObserver{}
	a := NewAssistant(chat, &MockTextGenerator{}, logging.NewNop(), obs)

	history := []llm.ChatMessage{{Role: llm.RoleUser, Content: "oi"}}
	reply, err := a.Chat(context.Background(), history, "pontas duplas?")
	require.NoError(t, err)

	assert.Equal(t, "Use óleo de coco.", reply)
	assert.Equal(t, history, chat.History)
	assert.Equal(t, "pontas duplas?", chat.Message)
	require.Len(t, obs.metas, 1)
	assert.Equal(t, "Assistant", obs.metas[0].Component)
}

func TestAssistantChatError(t *testing.T) {
	a := NewAssistant(&MockChatGenerator{Err: errors.New("down")}, &MockTextGenerator{}, logging.NewNop(), nil)
	_, err := a.Chat(context.Background(), nil, "oi")
	assert.Error(t, err)
}

func TestFastTip(t *testing.T) {
	gen := &MockTextGenerator{Content: "Use babosa. Enxágue com água fria."}
	a := NewAssistant(&MockChatGenerator{}, gen, logging.NewNop(), nil)

	d := diagnosis.Diagnosis{Curvature: diagnosis.CurvatureCurly, Porosity: diagnosis.PorosityHigh}
	tip := a.FastTip(context.Background(), "frizz", &d)

	assert.Equal(t, "Use babosa. Enxágue com água fria.", tip)
	require.Len(t, gen.Prompts, 1)
	assert.Contains(t, gen.Prompts[0], "frizz")
	assert.Contains(t, gen.Prompts[0], "Cacheado")
	assert.Contains(t, gen.Prompts[0], "Alta")
}

func TestFastTipFallback(t *testing.T) {
	a := NewAssistant(&MockChatGenerator{}, &MockTextGenerator{Err: errors.New("down")}, logging.NewNop(), nil)
	assert.Equal(t, FallbackTip, a.FastTip(context.Background(), "queda", nil))

	a = NewAssistant(&MockChatGenerator{}, &MockTextGenerator{Content: "  "}, logging.NewNop(), nil)
	assert.Equal(t, FallbackTip, a.FastTip(context.Background(), "queda", nil))
}
