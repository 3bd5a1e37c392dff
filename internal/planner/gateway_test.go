package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/llm"
	"capillaire/internal/logging"
	"capillaire/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

type MockTextGenerator struct {
	Content string
	Err     error
	Block   chan struct{}

	mu      sync.Mutex
	Prompts []string
}

func (m *MockTextGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	if m.Block != nil {
		<-m.Block
	}
	if m.Err != nil {
		return llm.ContentResponse{}, m.Err
	}
	return llm.ContentResponse{
		Content: m.Content,
		Usage:   shared.TokenUsage{PromptTokens: 100, CompletionTokens: 900, Model: "mock"},
	}, nil
}

type recordingObserver struct {
	mu    sync.Mutex
	metas []shared.Generation
}

func (o *recordingObserver) ObserveGeneration(meta shared.Generation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metas = append(o.metas, meta)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func strengthDiagnosis() diagnosis.Diagnosis {
	return diagnosis.Diagnosis{
		Goal:          diagnosis.GoalStrength,
		Curvature:     diagnosis.CurvatureCoily,
		Scalp:         diagnosis.ScalpOily,
		Porosity:      diagnosis.PorosityHigh,
		Chemicals:     true,
		WashFrequency: diagnosis.DefaultWashFrequency,
		Budget:        diagnosis.BudgetLow,
	}
}

func planJSON(t *testing.T, summary string, days int) string {
	t.Helper()
	tasks := make([]map[string]interface{}, 0, days)
	// reverse order, and claim completion, to check normalization
	for d := days; d >= 1; d-- {
		tasks = append(tasks, map[string]interface{}{
			"day":         d,
			"title":       fmt.Sprintf("Dia %d", d),
			"category":    "Hidratação",
			"description": "Aplique a máscara.",
			"recipe":      "Babosa e mel",
			"completed":   true,
		})
	}
	b, err := json.Marshal(map[string]interface{}{"summary": summary, "tasks": tasks})
	require.NoError(t, err)
	return string(b)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestGateway(gen llm.TextGenerator, opts ...Option) *Gateway {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewGateway(gen, logging.NewNop(), opts...)
}

func TestGeneratePlanSuccess(t *testing.T) {
	gen := &MockTextGenerator{Content: planJSON(t, "Foco em fortalecimento.", 30)}
	obs := &recordingObserver{}
	g := newTestGateway(gen, WithObserver(obs))

	plan, err := g.GeneratePlan(context.Background(), strengthDiagnosis())
	require.NoError(t, err)

	assert.Regexp(t, uuidV4, plan.ID)
	assert.Equal(t, fixedNow, plan.CreatedAt)
	assert.Equal(t, strengthDiagnosis(), plan.Diagnosis)
	assert.Equal(t, "Foco em fortalecimento.", plan.Summary)
	require.Len(t, plan.Tasks, 30)
	for i, task := range plan.Tasks {
		assert.Equal(t, i+1, task.Day)
		assert.False(t, task.Completed)
		assert.Equal(t, CategoryHydration, task.Category)
	}

	require.Len(t, obs.metas, 1)
	assert.Equal(t, "success", obs.metas[0].Outcome)
	assert.Equal(t, 100, obs.metas[0].Usage.PromptTokens)
}

func TestGeneratePlanPromptDescribesDiagnosis(t *testing.T) {
	gen := &MockTextGenerator{Content: planJSON(t, "ok", 28)}
	g := newTestGateway(gen)

	plan, err := g.GeneratePlan(context.Background(), strengthDiagnosis())
	require.NoError(t, err)
	assert.Len(t, plan.Tasks, 28, "short plans are accepted without synthesizing days")

	require.Len(t, gen.Prompts, 1)
	prompt := gen.Prompts[0]
	assert.Contains(t, prompt, "exatos 30 dias")
	assert.Contains(t, prompt, "Força/Queda")
	assert.Contains(t, prompt, "Crespo")
	assert.Contains(t, prompt, "Oleoso")
	assert.Contains(t, prompt, "Alta")
	assert.Contains(t, prompt, "Histórico de Química: Sim")
	assert.Contains(t, prompt, "Baixo (Caseiro)")
	assert.Contains(t, prompt, `"tasks"`)
}

func TestGeneratePlanFallbackExtraction(t *testing.T) {
	t.Run("EmbeddedEmptyPlan", func(t *testing.T) {
		gen := &MockTextGenerator{Content: "Here is your plan: {\"summary\":\"ok\",\"tasks\":[]}"}
		_, err := newTestGateway(gen).GeneratePlan(context.Background(), strengthDiagnosis())
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindEmptyPlan, kind)
		assert.Equal(t, "the plan came back empty; redo the quiz", err.Error())
	})

	t.Run("EmbeddedValidPlan", func(t *testing.T) {
		content := "```json\n" + planJSON(t, "ok", 30) + "\n```\nBons cuidados! {não é json}"
		gen := &MockTextGenerator{Content: content}
		plan, err := newTestGateway(gen).GeneratePlan(context.Background(), strengthDiagnosis())
		require.NoError(t, err)
		assert.Len(t, plan.Tasks, 30)
	})
}

func TestGeneratePlanFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *MockTextGenerator
		want ErrorKind
	}{
		{"Malformed", &MockTextGenerator{Content: "sorry, I cannot help"}, KindMalformedResponse},
		{"UnbalancedBraces", &MockTextGenerator{Content: `{"summary": "ok", "tasks": [`}, KindMalformedResponse},
		{"Upstream", &MockTextGenerator{Err: errors.New("quota exceeded")}, KindUpstreamError},
		{"NoTasks", &MockTextGenerator{Content: `{"summary":"ok"}`}, KindEmptyPlan},
		{"OnlyInvalidDays", &MockTextGenerator{Content: `{"summary":"ok","tasks":[{"day":0,"title":"x"},{"day":31,"title":"y"}]}`}, KindEmptyPlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			_, err := newTestGateway(tt.gen, WithObserver(obs)).GeneratePlan(context.Background(), strengthDiagnosis())
			require.Error(t, err)

			var ge *GenerationError
			require.True(t, errors.As(err, &ge), "error must be classified")
			assert.Equal(t, tt.want, ge.Kind)
			assert.NotEmpty(t, ge.Message)
			require.Len(t, obs.metas, 1)
			assert.Equal(t, string(tt.want), obs.metas[0].Outcome)
		})
	}
}

func TestGeneratePlanTimeout(t *testing.T) {
	gen := &MockTextGenerator{Block: make(chan struct{}), Content: planJSON(t, "late", 30)}
	defer close(gen.Block)

	g := newTestGateway(gen, WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := g.GeneratePlan(context.Background(), strengthDiagnosis())

	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, KindTimeout, kind)
	assert.Equal(t, "the service took too long to respond.", err.Error())
	assert.Less(t, time.Since(start), time.Second)
}

func TestGeneratePlanDefaultsSummaryAndDedupesDays(t *testing.T) {
	content := `{"summary":"  ","tasks":[
		{"day":2,"title":"B","category":"Nutrição","description":"d"},
		{"day":1,"title":"A","category":"rest","description":"d","recipe":"  "},
		{"day":2,"title":"dup","category":"Detox","description":"d"}
	]}`
	plan, err := newTestGateway(&MockTextGenerator{Content: content}).GeneratePlan(context.Background(), strengthDiagnosis())
	require.NoError(t, err)

	assert.Equal(t, defaultSummary, plan.Summary)
	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, "A", plan.Tasks[0].Title)
	assert.Equal(t, CategoryRest, plan.Tasks[0].Category)
	assert.Nil(t, plan.Tasks[0].Recipe)
	assert.Equal(t, "B", plan.Tasks[1].Title)
	assert.Equal(t, CategoryNutrition, plan.Tasks[1].Category)
}

func TestGeneratePlanTasksWithoutDayKeepTheirPosition(t *testing.T) {
	content := `{"summary":"ok","tasks":[
		{"title":"A","category":"rest","description":"d"},
		{"day":0,"title":"B","category":"detox","description":"d"},
		{"day":1,"title":"explicit","category":"rest","description":"d"},
		{"day":31,"title":"late","category":"rest","description":"d"}
	]}`
	core, logs := observer.New(zapcore.WarnLevel)
	g := NewGateway(&MockTextGenerator{Content: content}, logging.NewZapLogger(zap.New(core).Sugar()))

	plan, err := g.GeneratePlan(context.Background(), strengthDiagnosis())
	require.NoError(t, err)

	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, "explicit", plan.Tasks[0].Title, "numbered days win over positions")
	assert.Equal(t, 2, plan.Tasks[1].Day)
	assert.Equal(t, "B", plan.Tasks[1].Title)

	var warned bool
	for _, e := range logs.All() {
		if strings.Contains(e.Message, "dropped 2 generated tasks") {
			warned = true
		}
	}
	assert.True(t, warned, "dropped tasks are reported")
}

func TestGeneratePlanPseudoRandomFallback(t *testing.T) {
	g := newTestGateway(&MockTextGenerator{Content: planJSON(t, "ok", 30)}, WithRandom(failingReader{}))
	plan, err := g.GeneratePlan(context.Background(), strengthDiagnosis())
	require.NoError(t, err)
	assert.Regexp(t, uuidV4, plan.ID)
}

func TestGeneratePlanCallersGetIndependentCopies(t *testing.T) {
	gen := &MockTextGenerator{Block: make(chan struct{}), Content: planJSON(t, "ok", 30)}
	g := newTestGateway(gen)

	var wg sync.WaitGroup
	plans := make([]*Plan, 2)
	for i := range plans {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := g.GeneratePlan(context.Background(), strengthDiagnosis())
			assert.NoError(t, err)
			plans[i] = p
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(gen.Block)
	wg.Wait()

	require.NotNil(t, plans[0])
	require.NotNil(t, plans[1])
	assert.Len(t, gen.Prompts, 1, "identical diagnoses share one upstream call")
	assert.NotEqual(t, plans[0].ID, plans[1].ID, "each caller owns its plan identity")
	assert.Regexp(t, uuidV4, plans[1].ID)
	plans[0].Tasks[0].Completed = true
	assert.False(t, plans[1].Tasks[0].Completed)
}

func TestGeneratePlanCancelledCallerDoesNotFailOthers(t *testing.T) {
	gen := &MockTextGenerator{Block: make(chan struct{}), Content: planJSON(t, "ok", 30)}
	g := newTestGateway(gen)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := g.GeneratePlan(ctx, strengthDiagnosis())
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	second := make(chan *Plan, 1)
	go func() {
		p, err := g.GeneratePlan(context.Background(), strengthDiagnosis())
		assert.NoError(t, err)
		second <- p
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	err := <-firstErr
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindUpstreamError, kind)

	close(gen.Block)
	select {
	case p := <-second:
		require.NotNil(t, p)
		assert.Len(t, p.Tasks, 30)
	case <-time.After(time.Second):
		t.Fatal("second caller never received the shared plan")
	}
}

func TestExtractFirstObject(t *testing.T) {
	assert.Equal(t, `{"a":"}"}`, extractFirstObject(`noise {"a":"}"} {"b":1}`))
	assert.Equal(t, `{"a":{"b":"\"{"}}`, extractFirstObject(`x{"a":{"b":"\"{"}}y`))
	assert.Empty(t, extractFirstObject("no braces"))
	assert.Empty(t, extractFirstObject(`{"open": true`))
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryReconstruction, ParseCategory(" Reconstrução "))
	assert.Equal(t, CategoryDetox, ParseCategory("DETOX"))
	assert.Equal(t, Category("cronograma"), ParseCategory("Cronograma"))
	assert.False(t, ParseCategory("Cronograma").Known())
	assert.True(t, strings.HasPrefix(CategoryHydration.Label(), "Hidrata"))
}

func TestObserversFanOut(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	gen := &MockTextGenerator{Err: errors.New("boom")}
	g := newTestGateway(gen, WithObserver(Observers{a, nil, b}))

	_, err := g.GeneratePlan(context.Background(), strengthDiagnosis())
	require.Error(t, err)

	require.Len(t, a.metas, 1)
	require.Len(t, b.metas, 1)
	assert.Equal(t, string(KindUpstreamError), a.metas[0].Outcome)
}
