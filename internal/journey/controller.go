package journey

import (
	"context"
	"errors"
	"sync"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/logging"
	"capillaire/internal/planner"
	"capillaire/internal/session"
	"capillaire/internal/store"
)

const effectTimeout = 15 * time.Second

var errNoClientStore = errors.New("no client store configured")

// PlanGenerator produces a plan for a diagnosis.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, d diagnosis.Diagnosis) (*planner.Plan, error)
}

// PlanWriter accepts plans to persist in the background.
type PlanWriter interface {
	Enqueue(userID string, plan planner.Plan)
}

// SignOuter ends the live session.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// Deps are the collaborators a Controller runs effects against. Any of them
// except Generator may be nil; the matching effect is then skipped.
type Deps struct {
	Generator     PlanGenerator
	Plans         PlanWriter
	Clients       store.ClientStore
	Subscriptions store.SubscriptionStore
	Preferences   store.Preferences
	Auth          SignOuter
	// Owner keys the preferences of this journey.
	Owner string
}

// Change is delivered to observers after every event.
type Change struct {
	Prev  State
	Next  State
	Event Event
}

// Controller owns one journey State. Events are reduced one at a time on
// the controller goroutine; effects run asynchronously and report back as
// events.
type Controller struct {
	deps   Deps
	logger logging.Logger

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	state     State
	observers map[int]func(Change)
	nextObs   int
}

// NewController creates a Controller in the Initial state. Call Start to
// begin processing events.
func NewController(deps Deps, logger logging.Logger) *Controller {
	return &Controller{
		deps:      deps,
		logger:    logger,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		state:     Initial(),
		observers: make(map[int]func(Change)),
	}
}

// Start runs the event loop until ctx is cancelled or Close is called, and
// reads the stored reminder flag.
func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.loop()

	if c.deps.Preferences != nil {
		c.spawn(func(ctx context.Context) {
			enabled, err := c.deps.Preferences.GetBool(ctx, c.deps.Owner, store.PrefDailyReminders)
			if err != nil {
				c.logger.Warnf("Warning: failed to read reminder preference: %v", err)
				return
			}
			c.Dispatch(RemindersLoaded{Enabled: enabled})
		})
	}
}

// Dispatch queues ev. It blocks while the queue is full and drops ev once
// the controller is closed.
func (c *Controller) Dispatch(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe registers fn for every processed event. fn runs on the
// controller goroutine and must not block.
func (c *Controller) Subscribe(fn func(Change)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// HandleSessionUpdate translates session manager output into events. It
// is meant to be passed to session.NewManager as the listener.
func (c *Controller) HandleSessionUpdate(u session.Update) {
	switch u.Kind {
	case session.UpdateStatus:
		c.Dispatch(SessionChanged{Status: u.Status, Session: u.Session})
	case session.UpdatePlan:
		if u.Plan != nil {
			c.Dispatch(PlanLoaded{Plan: *u.Plan})
		}
	case session.UpdateSubscription:
		c.Dispatch(SubscriptionResolved{Subscription: u.Subscription})
	case session.UpdateClientLink:
		c.Dispatch(ClientLinkResolved{Link: u.ClientLink})
	}
}

// Close stops the loop and waits for running effects.
func (c *Controller) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.wg.Wait()
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case ev := <-c.events:
			c.step(ev)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) step(ev Event) {
	c.mu.Lock()
	prev := c.state
	next := Reduce(prev, ev)
	c.state = next
	observers := make([]func(Change), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, eff := range Effects(prev, next) {
		c.run(eff)
	}
	for _, fn := range observers {
		fn(Change{Prev: prev, Next: next, Event: ev})
	}
}

func (c *Controller) run(eff Effect) {
	switch e := eff.(type) {
	case SaveLeadEffect:
		c.spawn(func(ctx context.Context) {
			var (
				id  string
				err = errNoClientStore
			)
			if c.deps.Clients != nil {
				id, err = c.deps.Clients.InsertClient(ctx, e.Lead, e.Answers)
			}
			if err != nil {
				c.logger.Warnf("Warning: failed to save lead: %v", err)
			}
			c.Dispatch(LeadSaved{ClientID: id, Err: err})
		})
	case GenerateEffect:
		c.spawn(func(context.Context) {
			c.generate(e)
		})
	case PersistPlanEffect:
		if c.deps.Plans != nil {
			c.deps.Plans.Enqueue(e.UserID, e.Plan)
		}
	case SavePreferenceEffect:
		if c.deps.Preferences == nil {
			return
		}
		c.spawn(func(ctx context.Context) {
			if err := c.deps.Preferences.SetBool(ctx, c.deps.Owner, e.Key, e.Value); err != nil {
				c.logger.Warnf("Warning: failed to save preference %s: %v", e.Key, err)
			}
		})
	case ActivateSubscriptionEffect:
		if c.deps.Subscriptions == nil {
			return
		}
		c.spawn(func(ctx context.Context) {
			if err := c.deps.Subscriptions.SetSubscriptionStatus(ctx, e.UserID, store.SubscriptionActive); err != nil {
				c.logger.Warnf("Warning: failed to activate subscription for %s: %v", e.UserID, err)
			}
		})
	case SignOutEffect:
		if c.deps.Auth == nil {
			return
		}
		c.spawn(func(ctx context.Context) {
			if err := c.deps.Auth.SignOut(ctx); err != nil {
				c.logger.Warnf("Warning: sign out failed: %v", err)
			}
		})
	}
}

// generate has no deadline of its own; the gateway enforces the budget.
func (c *Controller) generate(e GenerateEffect) {
	plan, err := c.deps.Generator.GeneratePlan(c.ctx, e.Diagnosis)
	if err != nil {
		var ge *planner.GenerationError
		if !errors.As(err, &ge) {
			ge = &planner.GenerationError{Kind: planner.KindUpstreamError, Message: err.Error(), Err: err}
		}
		c.logger.Errorf("Plan generation failed (%s): %v", ge.Kind, err)
		c.Dispatch(GenerationFailed{Attempt: e.Attempt, Err: ge})
		return
	}
	c.logger.Infof("Plan %s generated with %d tasks", plan.ID, len(plan.Tasks))
	c.Dispatch(GenerationSucceeded{Attempt: e.Attempt, Plan: *plan})
}

func (c *Controller) spawn(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), effectTimeout)
		defer cancel()
		fn(ctx)
	}()
}
