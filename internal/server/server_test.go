package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/export"
	"capillaire/internal/logging"
	"capillaire/internal/metrics"
	"capillaire/internal/planner"
	"capillaire/internal/session"
	"capillaire/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPlans struct {
	mu    sync.Mutex
	plans map[string]planner.Plan
	err   error
}

func (m *memPlans) LoadLatestPlan(ctx context.Context, userID string) (*planner.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.plans[userID]
	if !ok {
		return nil, nil
	}
	p = p.Clone()
	return &p, nil
}

func (m *memPlans) UpsertPlan(ctx context.Context, userID string, plan planner.Plan) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[userID] = plan.Clone()
	return plan.ID, nil
}

type memSubs struct{ active bool }

func (m memSubs) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	return m.active, nil
}

func (m memSubs) SetSubscriptionStatus(ctx context.Context, userID string, status store.SubscriptionStatus) error {
	return nil
}

type stubGenerator struct {
	err error
}

func (s stubGenerator) GeneratePlan(ctx context.Context, d diagnosis.Diagnosis) (*planner.Plan, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := samplePlan()
	p.ID = "generated"
	p.Diagnosis = d
	return &p, nil
}

type stubTipper struct{}

func (stubTipper) FastTip(ctx context.Context, problem string, d *diagnosis.Diagnosis) string {
	return "Use babosa. Enxágue com água fria."
}

var now = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

func samplePlan() planner.Plan {
	p := planner.Plan{ID: "p1", CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), Summary: "Resumo"}
	for d := 1; d <= planner.TotalDays; d++ {
		p.Tasks = append(p.Tasks, planner.DayTask{Day: d, Category: planner.CategoryNutrition, Title: "Nutrição"})
	}
	return p
}

type fixture struct {
	router *gin.Engine
	plans  *memPlans
	token  string
	reg    *prometheus.Registry
}

func setup(t *testing.T, gen Generator) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	issuer := session.NewIssuer("test-secret", time.Hour)
	token, _, err := issuer.Issue("u1", "ana@example.com")
	require.NoError(t, err)

	plans := &memPlans{plans: map[string]planner.Plan{}}
	reg := prometheus.NewRegistry()
	router := NewRouter(Deps{
		Plans:           plans,
		Subscriptions:   memSubs{active: true},
		Issuer:          issuer,
		Generator:       gen,
		Tipper:          stubTipper{},
		Gatherer:        reg,
		Collectors:      metrics.NewCollectors(reg),
		DatabasePath:    t.TempDir() + "/db.sqlite",
		ExportTaskCount: 7,
		Logger:          logging.NewNop(),
		Now:             func() time.Time { return now },
	})
	return fixture{router: router, plans: plans, token: token, reg: reg}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := setup(t, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := setup(t, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "capillaire_active_journeys")
}

func TestAPIRequiresToken(t *testing.T) {
	f := setup(t, nil)
	f.token = "forged"
	w := f.do(t, http.MethodGet, "/api/plan", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetPlan(t *testing.T) {
	f := setup(t, nil)

	w := f.do(t, http.MethodGet, "/api/plan", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.plans.plans["u1"] = samplePlan()
	w = f.do(t, http.MethodGet, "/api/plan", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp PlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "p1", resp.Plan.ID)
	assert.Equal(t, 3, resp.CurrentDay)
	require.NotNil(t, resp.Today)
	assert.Equal(t, 3, resp.Today.Day)
	assert.Equal(t, 0.0, resp.ProgressPercent)
}

func TestToggleTask(t *testing.T) {
	f := setup(t, nil)
	f.plans.plans["u1"] = samplePlan()

	w := f.do(t, http.MethodPost, "/api/plan/tasks/2/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.plans.plans["u1"].Tasks[1].Completed)

	var resp PlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 100.0/30, resp.ProgressPercent, 0.001)

	w = f.do(t, http.MethodPost, "/api/plan/tasks/31/toggle", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodPost, "/api/plan/tasks/abc/toggle", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportPlan(t *testing.T) {
	f := setup(t, nil)
	f.plans.plans["u1"] = samplePlan()

	w := f.do(t, http.MethodGet, "/api/plan/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "cronograma-capillaire-2026-03-01.html")

	p, err := export.ReadPreview(w.Body)
	require.NoError(t, err)
	assert.Equal(t, "Resumo", p.Summary)
	assert.Len(t, p.Items, 7)
}

func TestSubscription(t *testing.T) {
	f := setup(t, nil)
	w := f.do(t, http.MethodGet, "/api/subscription", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active":true}`, w.Body.String())
}

func TestPostDiagnosis(t *testing.T) {
	f := setup(t, stubGenerator{})

	body := `{"curvature":"curly","scalp":"dry","porosity":"high","chemicals":true,"budget":"low","goal":"hydration"}`
	w := f.do(t, http.MethodPost, "/api/diagnosis", body)
	require.Equal(t, http.StatusCreated, w.Code)
	saved := f.plans.plans["u1"]
	assert.Equal(t, "generated", saved.ID)
	assert.Equal(t, diagnosis.DefaultWashFrequency, saved.Diagnosis.WashFrequency)

	w = f.do(t, http.MethodPost, "/api/diagnosis", `{"curvature":"zigzag"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostDiagnosisTimeout(t *testing.T) {
	f := setup(t, stubGenerator{err: &planner.GenerationError{Kind: planner.KindTimeout, Message: "the service took too long to respond."}})

	body := `{"curvature":"curly","scalp":"dry","porosity":"high","budget":"low","goal":"hydration"}`
	w := f.do(t, http.MethodPost, "/api/diagnosis", body)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "took too long")
}

func TestPostDiagnosisDisabled(t *testing.T) {
	f := setup(t, nil)
	w := f.do(t, http.MethodPost, "/api/diagnosis", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStoreFailureCounted(t *testing.T) {
	f := setup(t, nil)
	f.plans.err = store.Transport("load latest plan", errors.New("down"))

	w := f.do(t, http.MethodGet, "/api/plan", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	mfs, err := f.reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "capillaire_store_errors_total" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestPostTip(t *testing.T) {
	f := setup(t, nil)
	w := f.do(t, http.MethodPost, "/api/tip", `{"problem":"frizz"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "babosa")

	w = f.do(t, http.MethodPost, "/api/tip", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
