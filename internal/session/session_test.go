package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"capillaire/internal/logging"
	"capillaire/internal/planner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProvider struct {
	mu       sync.Mutex
	session  *Session
	err      error
	release  chan struct{}
	listener func(*Session)
	unsubbed bool
}

func (f *fakeProvider) CurrentSession(ctx context.Context) (*Session, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.err
}

func (f *fakeProvider) OnSessionChange(fn func(*Session)) func() {
	f.mu.Lock()
	f.listener = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.unsubbed = true
		f.mu.Unlock()
	}
}

func (f *fakeProvider) push(s *Session) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	fn(s)
}

type fakeLoads struct {
	plan      *planner.Plan
	planErr   error
	active    bool
	subErr    error
	clientID  string
	clientErr error
}

func (f *fakeLoads) LoadLatestPlan(ctx context.Context, userID string) (*planner.Plan, error) {
	return f.plan, f.planErr
}

func (f *fakeLoads) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	return f.active, f.subErr
}

func (f *fakeLoads) FindClientIDByEmail(ctx context.Context, email string) (string, bool, error) {
	return f.clientID, f.clientID != "", f.clientErr
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) listen(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Status
	for _, u := range r.updates {
		if u.Kind == UpdateStatus {
			out = append(out, u.Status)
		}
	}
	return out
}

func (r *recorder) find(kind UpdateKind) (Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.updates) - 1; i >= 0; i-- {
		if r.updates[i].Kind == kind {
			return r.updates[i], true
		}
	}
	return Update{}, false
}

func TestManager_AuthenticatedRunsAllLoads(t *testing.T) {
	p := &fakeProvider{session: &Session{UserID: "u1", Email: "a@b.com"}}
	loads := &fakeLoads{plan: &planner.Plan{ID: "p1"}, active: true, clientID: "c1"}
	rec := &recorder{}

	m := NewManager(p, loads, loads, loads, rec.listen, logging.NewNop())
	m.Start(context.Background())
	defer m.Close()

	assert.Equal(t, []Status{StatusChecking, StatusAuthenticated}, rec.statuses())
	assert.Eventually(t, func() bool {
		_, a := rec.find(UpdatePlan)
		_, b := rec.find(UpdateSubscription)
		_, c := rec.find(UpdateClientLink)
		return a && b && c
	}, time.Second, 5*time.Millisecond)

	u, _ := rec.find(UpdatePlan)
	assert.Equal(t, "p1", u.Plan.ID)
	u, _ = rec.find(UpdateSubscription)
	assert.Equal(t, SubscriptionActive, u.Subscription)
	u, _ = rec.find(UpdateClientLink)
	assert.Equal(t, ClientLink{State: LinkLinked, ID: "c1"}, u.ClientLink)
}

func TestManager_LoadFailuresAreIsolated(t *testing.T) {
	p := &fakeProvider{session: &Session{UserID: "u1", Email: "a@b.com"}}
	loads := &fakeLoads{planErr: errors.New("down"), subErr: errors.New("down"), clientID: "c9"}
	rec := &recorder{}

	m := NewManager(p, loads, loads, loads, rec.listen, logging.NewNop())
	m.Start(context.Background())
	defer m.Close()

	assert.Eventually(t, func() bool {
		_, b := rec.find(UpdateSubscription)
		_, c := rec.find(UpdateClientLink)
		return b && c
	}, time.Second, 5*time.Millisecond)

	_, gotPlan := rec.find(UpdatePlan)
	assert.False(t, gotPlan)
	u, _ := rec.find(UpdateSubscription)
	assert.Equal(t, SubscriptionInactive, u.Subscription)
	u, _ = rec.find(UpdateClientLink)
	assert.Equal(t, "c9", u.ClientLink.ID)
}

func TestManager_NoSessionIsAnonymous(t *testing.T) {
	p := &fakeProvider{}
	rec := &recorder{}

	m := NewManager(p, nil, nil, nil, rec.listen, logging.NewNop())
	m.Start(context.Background())
	defer m.Close()

	assert.Equal(t, []Status{StatusChecking, StatusAnonymous}, rec.statuses())
}

func TestManager_ProviderErrorIsAnonymous(t *testing.T) {
	p := &fakeProvider{err: errors.New("unreachable")}
	rec := &recorder{}
	var results []string

	m := NewManager(p, nil, nil, nil, rec.listen, logging.NewNop(),
		WithCheckObserver(func(r string) { results = append(results, r) }))
	m.Start(context.Background())
	defer m.Close()

	assert.Equal(t, []Status{StatusChecking, StatusAnonymous}, rec.statuses())
	assert.Equal(t, []string{"error"}, results)
}

func TestManager_WatchdogThenLateSession(t *testing.T) {
	p := &fakeProvider{
		session: &Session{UserID: "u1", Email: "a@b.com"},
		release: make(chan struct{}),
	}
	rec := &recorder{}

	m := NewManager(p, nil, nil, nil, rec.listen, logging.NewNop(), WithWatchdog(20*time.Millisecond))
	start := time.Now()
	m.Start(context.Background())
	defer m.Close()

	assert.Less(t, time.Since(start), time.Second, "watchdog unblocks start")
	assert.Equal(t, []Status{StatusChecking, StatusAnonymous}, rec.statuses())

	close(p.release)
	assert.Eventually(t, func() bool {
		s := rec.statuses()
		return len(s) == 3 && s[2] == StatusAuthenticated
	}, time.Second, 5*time.Millisecond)
}

func TestManager_LateSessionDroppedWhenSuperseded(t *testing.T) {
	p := &fakeProvider{
		session: &Session{UserID: "u1"},
		release: make(chan struct{}),
	}
	rec := &recorder{}

	m := NewManager(p, nil, nil, nil, rec.listen, logging.NewNop(), WithWatchdog(20*time.Millisecond))
	m.Start(context.Background())
	defer m.Close()

	p.push(nil)
	close(p.release)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []Status{StatusChecking, StatusAnonymous, StatusAnonymous}, rec.statuses())
}

func TestManager_SessionChangeReruns(t *testing.T) {
	p := &fakeProvider{}
	loads := &fakeLoads{active: true}
	rec := &recorder{}

	m := NewManager(p, loads, loads, loads, rec.listen, logging.NewNop())
	m.Start(context.Background())

	p.push(&Session{UserID: "u2", Email: "x@y.com"})
	assert.Eventually(t, func() bool {
		u, ok := rec.find(UpdateSubscription)
		return ok && u.Subscription == SubscriptionActive
	}, time.Second, 5*time.Millisecond)

	p.push(nil)
	s := rec.statuses()
	assert.Equal(t, StatusAnonymous, s[len(s)-1])

	m.Close()
	assert.True(t, p.unsubbed)
}

type memTokens struct {
	mu        sync.Mutex
	tokens    map[string]string
	deleteErr error
}

func (m *memTokens) Save(ctx context.Context, owner, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[owner] = token
	return nil
}

func (m *memTokens) Token(ctx context.Context, owner string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[owner]
	return t, ok, nil
}

func (m *memTokens) Delete(ctx context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.tokens, owner)
	return nil
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	tok, exp, err := iss.Issue("u1", "a@b.com")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	s, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "a@b.com", s.Email)

	_, err = NewIssuer("other", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_Expired(t *testing.T) {
	iss := NewIssuer("secret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, _, err := iss.Issue("u1", "")
	require.NoError(t, err)

	_, err = NewIssuer("secret", time.Minute).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenProvider(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	store := &memTokens{tokens: map[string]string{}}
	p := NewTokenProvider("chat-1", iss, store, logging.NewNop())
	ctx := context.Background()

	s, err := p.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	var seen []*Session
	unsub := p.OnSessionChange(func(s *Session) { seen = append(seen, s) })

	tok, _, err := iss.Issue("u1", "a@b.com")
	require.NoError(t, err)
	_, err = p.SignIn(ctx, tok)
	require.NoError(t, err)

	s, err = p.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "u1", s.UserID)

	require.NoError(t, p.SignOut(ctx))
	require.Len(t, seen, 2)
	assert.Equal(t, "u1", seen[0].UserID)
	assert.Nil(t, seen[1])

	unsub()
	_, err = p.SignIn(ctx, tok)
	require.NoError(t, err)
	assert.Len(t, seen, 2)

	_, err = p.SignIn(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	store.tokens["chat-1"] = "garbage"
	s, err = p.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	_, ok, _ := store.Token(ctx, "chat-1")
	assert.False(t, ok)
}

func TestTokenProvider_DiscardFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := &memTokens{tokens: map[string]string{"chat-1": "garbage"}, deleteErr: errors.New("disk full")}
	p := NewTokenProvider("chat-1", NewIssuer("secret", time.Hour), store, logging.NewZapLogger(zap.New(core).Sugar()))

	s, err := p.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "disk full")
}

func TestIsProviderUnreachable(t *testing.T) {
	err := &SessionError{Kind: KindProviderUnreachable, Err: errors.New("x")}
	assert.True(t, IsProviderUnreachable(err))
	assert.False(t, IsProviderUnreachable(errors.New("x")))
}

func TestManager_LateSessionBeforeWatchdogWriteWins(t *testing.T) {
	p := &fakeProvider{
		session: &Session{UserID: "u1"},
		release: make(chan struct{}),
	}
	rec := &recorder{}
	late := make(chan struct{})

	// The provider answers after the watchdog fired but before the
	// provisional anonymous state is written.
	m := NewManager(p, nil, nil, nil, rec.listen, logging.NewNop(), WithWatchdog(20*time.Millisecond),
		WithCheckObserver(func(r string) {
			switch r {
			case "watchdog":
				close(p.release)
				select {
				case <-late:
				case <-time.After(time.Second):
				}
			case "late":
				close(late)
			}
		}))
	m.Start(context.Background())
	defer m.Close()

	assert.Equal(t, []Status{StatusChecking, StatusAuthenticated}, rec.statuses())
}

func TestManager_StartAfterCloseDoesNothing(t *testing.T) {
	p := &fakeProvider{session: &Session{UserID: "u1"}}
	rec := &recorder{}

	m := NewManager(p, nil, nil, nil, rec.listen, logging.NewNop())
	m.Close()
	m.Start(context.Background())

	assert.Empty(t, rec.statuses())
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Nil(t, p.listener, "no subscription after close")
}
