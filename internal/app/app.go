// Package app wires configuration, storage, generation and metrics into the
// services the binaries run.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"capillaire/internal/config"
	"capillaire/internal/database"
	"capillaire/internal/llm"
	"capillaire/internal/logging"
	"capillaire/internal/metrics"
	"capillaire/internal/planner"
	"capillaire/internal/session"
	"capillaire/internal/store"
	"capillaire/internal/store/postgres"
	"capillaire/internal/store/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// SessionTTL is the lifetime of issued access tokens.
const SessionTTL = 30 * 24 * time.Hour

// App holds the application's dependencies.
type App struct {
	Config *config.Config
	Logger logging.Logger

	// DB is the local SQLite database. It always holds metrics, preferences
	// and chat sessions, and holds plans too unless the backend is postgres.
	DB       *database.DB
	Postgres *postgres.Storage

	Repos        store.Repositories
	Preferences  *sqlite.PreferencesRepository
	AuthSessions *sqlite.AuthSessionRepository
	Writer       *store.WriteQueue

	Metrics    *metrics.Store
	Registry   *prometheus.Registry
	Collectors *metrics.Collectors

	// Observer receives every generation call: metrics first, then the
	// observers passed with WithObserver.
	Observer  planner.Observer
	Gateway   *planner.Gateway
	Assistant *planner.Assistant
	Issuer    *session.Issuer

	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	observers []planner.Observer
}

// WithObserver adds an observer of every generation call next to the
// metrics observer.
func WithObserver(o planner.Observer) Option {
	return func(opts *options) { opts.observers = append(opts.observers, o) }
}

// New opens storage, runs migrations and builds the services described by
// cfg. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if err := a.openRepositories(ctx); err != nil {
		return nil, err
	}
	a.Preferences = sqlite.NewPreferencesRepository(db.SQL)
	a.AuthSessions = sqlite.NewAuthSessionRepository(db.SQL)

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Collectors = metrics.NewCollectors(a.Registry)
	a.Metrics = metrics.NewStore(db.SQL)

	a.Observer = planner.Observers(append([]planner.Observer{metrics.NewObserver(a.Metrics, a.Collectors, logger)}, o.observers...))

	planGen, chatGen, err := newGenerators(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, g := range []interface{}{planGen, chatGen} {
		if c, isCloser := g.(llm.Closer); isCloser {
			a.closers = append(a.closers, c.Close)
		}
	}

	a.Gateway = planner.NewGateway(planGen, logger.With("component", "gateway"),
		planner.WithTimeout(cfg.GenerationTimeout),
		planner.WithObserver(a.Observer),
	)
	a.Assistant = planner.NewAssistant(chatGen, chatGen, logger.With("component", "assistant"), a.Observer)
	a.Issuer = session.NewIssuer(cfg.SessionJWTSecret, SessionTTL)

	a.Writer = store.NewWriteQueue(a.Repos.Plans, cfg.WriteDebounce, logger.With("component", "write_queue"))
	a.Writer.OnWritten = func(userID, planID string, err error) {
		if err != nil {
			a.Collectors.CountStoreError(err)
		}
	}
	a.closers = append(a.closers, a.Writer.Close)

	ok = true
	return a, nil
}

func (a *App) openRepositories(ctx context.Context) error {
	switch a.Config.StoreBackend {
	case "postgres":
		if err := database.RunPostgresMigrations(a.Config.PostgresDSN); err != nil {
			return fmt.Errorf("failed to run postgres migrations: %w", err)
		}
		pg, err := postgres.NewStorage(ctx, a.Config.PostgresDSN, a.Logger.With("component", "postgres"))
		if err != nil {
			return err
		}
		a.Postgres = pg
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		a.Repos = pg.Repositories()
	default:
		a.Repos = store.Repositories{
			Plans:         sqlite.NewPlanRepository(a.DB.SQL),
			Subscriptions: sqlite.NewSubscriptionRepository(a.DB.SQL),
			Clients:       sqlite.NewClientRepository(a.DB.SQL),
		}
	}
	return nil
}

// newGenerators returns the plan model, constrained to JSON, and the chat
// model used by the assistant.
func newGenerators(ctx context.Context, cfg *config.Config) (llm.TextGenerator, interface {
	llm.TextGenerator
	llm.ChatGenerator
}, error) {
	switch cfg.LLMProvider {
	case "groq":
		plan := llm.NewGroqClient(cfg, llm.WithGroqJSONMode(), llm.WithGroqTemperature(0.7))
		chat := llm.NewGroqClient(cfg, llm.WithGroqSystemPrompt(planner.AssistantInstruction), llm.WithGroqTemperature(0.5))
		return plan, chat, nil
	default:
		plan, err := llm.NewGeminiClient(ctx, cfg, llm.ModelPlan, llm.WithJSONSchema(llm.PlanSchema), llm.WithTemperature(0.7))
		if err != nil {
			return nil, nil, err
		}
		chat, err := llm.NewGeminiClient(ctx, cfg, llm.ModelAssistant, llm.WithSystemInstruction(planner.AssistantInstruction))
		if err != nil {
			plan.Close()
			return nil, nil, err
		}
		return plan, chat, nil
	}
}

// DataDir is the directory holding the local database.
func (a *App) DataDir() string {
	return filepath.Dir(a.Config.DatabasePath)
}

// Close flushes pending plan writes and releases every resource, newest
// first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warnf("Warning: close failed: %v", err)
		}
	}
	a.closers = nil
}
