package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"capillaire/internal/journey"
	"capillaire/internal/logging"
	"capillaire/internal/metrics"
	"capillaire/internal/session"
	"capillaire/internal/store"
)

// JourneyDeps are shared by every chat journey.
type JourneyDeps struct {
	Generator   journey.PlanGenerator
	Writer      journey.PlanWriter
	Repos       store.Repositories
	Preferences store.Preferences
	Tokens      session.TokenStore
	Issuer      *session.Issuer
	Watchdog    time.Duration
	Collectors  *metrics.Collectors
}

// Chat is the live journey of one Telegram chat.
type Chat struct {
	ID         int64
	Controller *journey.Controller
	Sessions   *session.Manager
	Auth       *session.TokenProvider

	unsubscribe func()
}

func (c *Chat) close() {
	c.unsubscribe()
	c.Sessions.Close()
	c.Controller.Close()
}

// Registry lazily creates one journey per chat and keeps it for the life of
// the process.
type Registry struct {
	deps     JourneyDeps
	logger   logging.Logger
	onChange func(chatID int64, ch journey.Change)

	mu    sync.Mutex
	ctx   context.Context
	chats map[int64]*Chat
}

// NewRegistry creates a Registry. Journeys live until ctx is cancelled or
// Close is called.
func NewRegistry(ctx context.Context, deps JourneyDeps, logger logging.Logger) *Registry {
	return &Registry{
		deps:   deps,
		logger: logger,
		ctx:    ctx,
		chats:  make(map[int64]*Chat),
	}
}

// OnChange sets the callback for journey transitions of every chat created
// afterwards.
func (r *Registry) OnChange(fn func(chatID int64, ch journey.Change)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Get returns the journey of chatID, creating and starting it on first use.
func (r *Registry) Get(chatID int64) *Chat {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.chats[chatID]; ok {
		return c
	}
	c := r.build(chatID)
	r.chats[chatID] = c
	if r.deps.Collectors != nil {
		r.deps.Collectors.Journeys.Set(float64(len(r.chats)))
	}
	return c
}

// Len is the number of live journeys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chats)
}

// Close stops every journey.
func (r *Registry) Close() {
	r.mu.Lock()
	chats := r.chats
	r.chats = make(map[int64]*Chat)
	r.mu.Unlock()

	for _, c := range chats {
		c.close()
	}
	if r.deps.Collectors != nil {
		r.deps.Collectors.Journeys.Set(0)
	}
}

func (r *Registry) build(chatID int64) *Chat {
	owner := Owner(chatID)
	logger := r.logger.With("chat_id", chatID)

	auth := session.NewTokenProvider(owner, r.deps.Issuer, r.deps.Tokens, logger)
	ctrl := journey.NewController(journey.Deps{
		Generator:     r.deps.Generator,
		Plans:         r.deps.Writer,
		Clients:       r.deps.Repos.Clients,
		Subscriptions: r.deps.Repos.Subscriptions,
		Preferences:   r.deps.Preferences,
		Auth:          auth,
		Owner:         owner,
	}, logger)

	onChange := r.onChange
	unsubscribe := ctrl.Subscribe(func(ch journey.Change) {
		if onChange != nil {
			onChange(chatID, ch)
		}
	})

	opts := []session.ManagerOption{}
	if r.deps.Watchdog > 0 {
		opts = append(opts, session.WithWatchdog(r.deps.Watchdog))
	}
	if r.deps.Collectors != nil {
		checks := r.deps.Collectors.SessionChecks
		opts = append(opts, session.WithCheckObserver(func(result string) {
			checks.WithLabelValues(result).Inc()
		}))
	}
	mgr := session.NewManager(auth, r.deps.Repos.Plans, r.deps.Repos.Subscriptions, r.deps.Repos.Clients,
		ctrl.HandleSessionUpdate, logger, opts...)

	ctrl.Start(r.ctx)
	go mgr.Start(r.ctx)

	return &Chat{
		ID:          chatID,
		Controller:  ctrl,
		Sessions:    mgr,
		Auth:        auth,
		unsubscribe: unsubscribe,
	}
}

// Owner is the preferences and token key of a chat.
func Owner(chatID int64) string {
	return fmt.Sprintf("telegram:%d", chatID)
}
