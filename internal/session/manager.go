package session

import (
	"context"
	"sync"
	"time"

	"capillaire/internal/logging"
	"capillaire/internal/planner"
	"capillaire/internal/race"
)

// DefaultWatchdog is how long discovery may take before the visitor is
// treated as anonymous.
const DefaultWatchdog = 5 * time.Second

const loadTimeout = 10 * time.Second

// PlanLoader loads the latest plan of a user.
type PlanLoader interface {
	LoadLatestPlan(ctx context.Context, userID string) (*planner.Plan, error)
}

// SubscriptionLookup answers whether a user has an active subscription.
type SubscriptionLookup interface {
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
}

// ClientLookup finds the lead record registered with an email.
type ClientLookup interface {
	FindClientIDByEmail(ctx context.Context, email string) (string, bool, error)
}

// UpdateKind tells which part of an Update is meaningful.
type UpdateKind int

const (
	UpdateStatus UpdateKind = iota
	UpdatePlan
	UpdateSubscription
	UpdateClientLink
)

// Update is emitted by the Manager to its listener.
type Update struct {
	Kind UpdateKind
	// Epoch identifies the session check that produced the update.
	Epoch        uint64
	Status       Status
	Session      *Session
	Plan         *planner.Plan
	Subscription Subscription
	ClientLink   ClientLink
}

// Listener receives updates. It may be called from any goroutine.
type Listener func(Update)

// Manager follows the session of one journey.
type Manager struct {
	provider      Provider
	plans         PlanLoader
	subscriptions SubscriptionLookup
	clients       ClientLookup
	listener      Listener
	logger        logging.Logger
	watchdog      time.Duration
	onCheck       func(result string)

	mu          sync.Mutex
	epoch       uint64
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithWatchdog overrides DefaultWatchdog.
func WithWatchdog(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.watchdog = d
		}
	}
}

// WithCheckObserver registers fn to be told how each check resolved:
// "authenticated", "anonymous", "watchdog", "error" or "late".
func WithCheckObserver(fn func(result string)) ManagerOption {
	return func(m *Manager) { m.onCheck = fn }
}

// NewManager creates a Manager. Any of the loaders may be nil, in which case
// that load is skipped.
func NewManager(provider Provider, plans PlanLoader, subs SubscriptionLookup, clients ClientLookup, listener Listener, logger logging.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider:      provider,
		plans:         plans,
		subscriptions: subs,
		clients:       clients,
		listener:      listener,
		logger:        logger,
		watchdog:      DefaultWatchdog,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to session changes and runs the initial check. It returns
// once the check has left the checking state, at most after the watchdog.
// Start does nothing on a closed Manager.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Unlock()

	unsub := m.provider.OnSessionChange(m.handleChange)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsub()
		return
	}
	m.unsubscribe = unsub
	m.mu.Unlock()

	m.Check()
}

// pendingCheck arbitrates between the watchdog and a late provider answer
// of one check, so whichever is applied last is the late answer.
type pendingCheck struct {
	mu          sync.Mutex
	provisional uint64
	late        bool
}

// Check asks the provider for the current session, racing it against the
// watchdog. A provider answer arriving after the watchdog is still applied
// unless a newer check or change has happened since.
func (m *Manager) Check() {
	epoch := m.nextEpoch()
	ctx := m.context()
	m.emit(Update{Kind: UpdateStatus, Epoch: epoch, Status: StatusChecking})

	pc := &pendingCheck{}
	out := race.First(ctx, m.watchdog, m.provider.CurrentSession, func(r race.Result[*Session]) {
		if r.Err != nil {
			m.logger.Warnf("Warning: late session lookup failed: %v", &SessionError{Kind: KindProviderUnreachable, Err: r.Err})
			return
		}
		pc.mu.Lock()
		defer pc.mu.Unlock()
		cur := m.currentEpoch()
		if cur != epoch && (pc.provisional == 0 || cur != pc.provisional) {
			m.logger.Debugf("Discarding late session answer for superseded check %d", epoch)
			return
		}
		pc.late = true
		m.logger.Infof("Applying late session answer for check %d", epoch)
		m.apply(cur, r.Value)
		m.observe("late")
	})

	switch {
	case out.TimedOut:
		m.logger.Warnf("Warning: session lookup exceeded %s, continuing as anonymous", m.watchdog)
		m.observe("watchdog")
		pc.mu.Lock()
		if !pc.late {
			if provisional, ok := m.claimEpoch(epoch); ok {
				pc.provisional = provisional
				m.apply(provisional, nil)
			}
		}
		pc.mu.Unlock()
	case out.Err != nil:
		m.logger.Warnf("Warning: %v", &SessionError{Kind: KindProviderUnreachable, Err: out.Err})
		m.observe("error")
		m.apply(epoch, nil)
	default:
		if out.Value != nil {
			m.observe("authenticated")
		} else {
			m.observe("anonymous")
		}
		m.apply(epoch, out.Value)
	}
}

// Close releases the provider subscription and abandons pending loads.
func (m *Manager) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	cancel := m.cancel
	m.epoch++
	m.closed = true
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Manager) handleChange(s *Session) {
	epoch := m.nextEpoch()
	m.apply(epoch, s)
}

// apply publishes the resolved status and, for a live session, starts the
// three dependent loads. Each load reports independently.
func (m *Manager) apply(epoch uint64, s *Session) {
	if s == nil || s.UserID == "" {
		m.emit(Update{Kind: UpdateStatus, Epoch: epoch, Status: StatusAnonymous})
		return
	}
	m.emit(Update{Kind: UpdateStatus, Epoch: epoch, Status: StatusAuthenticated, Session: s})

	ctx := m.context()
	if m.plans != nil {
		m.spawn(func() { m.loadPlan(ctx, epoch, s.UserID) })
	}
	if m.subscriptions != nil {
		m.spawn(func() { m.loadSubscription(ctx, epoch, s.UserID) })
	}
	if m.clients != nil && s.Email != "" {
		m.spawn(func() { m.loadClientLink(ctx, epoch, s.Email) })
	}
}

func (m *Manager) loadPlan(ctx context.Context, epoch uint64, userID string) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	plan, err := m.plans.LoadLatestPlan(ctx, userID)
	if err != nil {
		m.logger.Warnf("Warning: failed to load plan for %s: %v", userID, err)
		return
	}
	if plan == nil {
		return
	}
	m.emitIfCurrent(epoch, Update{Kind: UpdatePlan, Plan: plan})
}

func (m *Manager) loadSubscription(ctx context.Context, epoch uint64, userID string) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	sub := SubscriptionInactive
	active, err := m.subscriptions.HasActiveSubscription(ctx, userID)
	if err != nil {
		m.logger.Warnf("Warning: failed to check subscription for %s: %v", userID, err)
	} else if active {
		sub = SubscriptionActive
	}
	m.emitIfCurrent(epoch, Update{Kind: UpdateSubscription, Subscription: sub})
}

func (m *Manager) loadClientLink(ctx context.Context, epoch uint64, email string) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	link := ClientLink{State: LinkUnlinked}
	id, ok, err := m.clients.FindClientIDByEmail(ctx, email)
	if err != nil {
		m.logger.Warnf("Warning: failed to link client for %s: %v", email, err)
	} else if ok {
		link = ClientLink{State: LinkLinked, ID: id}
	}
	m.emitIfCurrent(epoch, Update{Kind: UpdateClientLink, ClientLink: link})
}

func (m *Manager) emitIfCurrent(epoch uint64, u Update) {
	if m.currentEpoch() != epoch {
		return
	}
	u.Epoch = epoch
	m.emit(u)
}

func (m *Manager) emit(u Update) {
	if m.listener != nil {
		m.listener(u)
	}
}

func (m *Manager) observe(result string) {
	if m.onCheck != nil {
		m.onCheck(result)
	}
}

func (m *Manager) spawn(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

func (m *Manager) nextEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	return m.epoch
}

// claimEpoch advances the epoch only if epoch is still current.
func (m *Manager) claimEpoch(epoch uint64) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return 0, false
	}
	m.epoch++
	return m.epoch, true
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manager) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}
