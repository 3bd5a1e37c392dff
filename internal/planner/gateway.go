package planner

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	mrand "math/rand/v2"
	"strings"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/llm"
	"capillaire/internal/logging"
	"capillaire/internal/race"
	"capillaire/internal/shared"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout = 30 * time.Second
	defaultSummary = "Seu plano personalizado está pronto."
	agentName      = "PlanGenerator"
)

// Observer is told about every generation attempt, successful or not.
type Observer interface {
	ObserveGeneration(meta shared.Generation)
}

// Observers fans one observation out to several observers.
type Observers []Observer

func (os Observers) ObserveGeneration(meta shared.Generation) {
	for _, o := range os {
		if o != nil {
			o.ObserveGeneration(meta)
		}
	}
}

// Gateway turns a Diagnosis into a Plan using an external text generator.
type Gateway struct {
	textGen  llm.TextGenerator
	logger   logging.Logger
	timeout  time.Duration
	now      func() time.Time
	random   io.Reader
	observer Observer
	group    singleflight.Group
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout sets the generation budget.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithRandom sets the source used for plan identifiers.
func WithRandom(r io.Reader) Option {
	return func(g *Gateway) { g.random = r }
}

func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// NewGateway creates a Gateway. The generator should already be configured
// for JSON output where the provider supports it.
func NewGateway(textGen llm.TextGenerator, logger logging.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		textGen: textGen,
		logger:  logger,
		timeout: defaultTimeout,
		now:     time.Now,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GeneratePlan requests a 30-day plan for d. Concurrent calls for the same
// diagnosis share one upstream request, which runs detached from any single
// caller's cancellation. Each caller gets its own copy with its own ID and
// creation time. Every error returned is a *GenerationError.
func (g *Gateway) GeneratePlan(ctx context.Context, d diagnosis.Diagnosis) (*Plan, error) {
	key, _ := json.Marshal(d)
	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(string(key), func() (interface{}, error) {
		return g.generate(detached, d)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, errUpstream(ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		g.logger.Debugf("plan generation shared between concurrent callers")
	}
	plan := res.Val.(*Plan).Clone()
	plan.ID = g.newPlanID()
	plan.CreatedAt = g.now().UTC()
	return &plan, nil
}

func (g *Gateway) generate(ctx context.Context, d diagnosis.Diagnosis) (*Plan, error) {
	prompt, err := buildPlanPrompt(d)
	if err != nil {
		return nil, errUpstream(err)
	}

	start := g.now()
	out := race.First(ctx, g.timeout, func(ctx context.Context) (llm.ContentResponse, error) {
		return g.textGen.GenerateContent(ctx, prompt)
	}, func(late race.Result[llm.ContentResponse]) {
		g.logger.Warnf("Warning: plan generation settled after the %s budget and was discarded (err=%v)", g.timeout, late.Err)
	})
	meta := shared.Generation{
		Component: agentName,
		Usage:     out.Value.Usage,
		Latency:   g.now().Sub(start),
	}

	plan, genErr := g.assemble(d, out)
	if genErr != nil {
		meta.Outcome = string(genErr.Kind)
		g.observe(meta)
		g.logger.Errorf("plan generation failed (%s): %v", genErr.Kind, genErr.Err)
		return nil, genErr
	}
	meta.Outcome = "success"
	g.observe(meta)
	return plan, nil
}

func (g *Gateway) assemble(d diagnosis.Diagnosis, out race.Outcome[llm.ContentResponse]) (*Plan, *GenerationError) {
	if out.TimedOut {
		return nil, errTimeout()
	}
	if out.Err != nil {
		return nil, errUpstream(out.Err)
	}

	raw, err := parsePlanResponse(out.Value.Content)
	if err != nil {
		return nil, errMalformed(err)
	}

	tasks, dropped := normalizeTasks(raw.Tasks)
	if dropped > 0 {
		g.logger.Warnf("Warning: dropped %d generated tasks with an invalid or repeated day", dropped)
	}
	if len(tasks) == 0 {
		return nil, errEmptyPlan()
	}
	if len(tasks) < TotalDays {
		g.logger.Warnf("Warning: generated plan has %d of %d days", len(tasks), TotalDays)
	}

	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		summary = defaultSummary
	}

	return &Plan{
		Diagnosis: d,
		Tasks:     tasks,
		Summary:   summary,
	}, nil
}

func (g *Gateway) observe(meta shared.Generation) {
	if g.observer != nil {
		g.observer.ObserveGeneration(meta)
	}
}

// newPlanID returns a v4 UUID, falling back to a pseudo-random source with
// the same shape when the secure source fails.
func (g *Gateway) newPlanID() string {
	id, err := uuid.NewRandomFromReader(g.random)
	if err == nil {
		return id.String()
	}
	g.logger.Warnf("Warning: secure random source unavailable, using pseudo-random plan id: %v", err)
	id, _ = uuid.NewRandomFromReader(pseudoRandom{})
	return id.String()
}

type pseudoRandom struct{}

func (pseudoRandom) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(mrand.IntN(256))
	}
	return len(p), nil
}
