package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"capillaire/internal/logging"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature or expiry checks.
var ErrInvalidToken = errors.New("invalid token")

// Claims carried by an access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. ttl is the lifetime of issued tokens.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for userID and its expiry.
func (i *Issuer) Issue(userID, email string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tok, exp, nil
}

// Parse verifies tok and returns the session it carries.
func (i *Issuer) Parse(tok string) (*Session, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	s := &Session{UserID: c.Subject, Email: c.Email}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}

// TokenStore persists one access token per owner.
type TokenStore interface {
	Save(ctx context.Context, owner, token string, expiresAt time.Time) error
	Token(ctx context.Context, owner string) (string, bool, error)
	Delete(ctx context.Context, owner string) error
}

// TokenProvider is a Provider for one owner (a chat) backed by stored
// access tokens.
type TokenProvider struct {
	owner  string
	issuer *Issuer
	store  TokenStore
	logger logging.Logger

	mu        sync.Mutex
	listeners map[int]func(*Session)
	nextID    int
}

// NewTokenProvider creates a TokenProvider for owner.
func NewTokenProvider(owner string, issuer *Issuer, store TokenStore, logger logging.Logger) *TokenProvider {
	return &TokenProvider{
		owner:     owner,
		issuer:    issuer,
		store:     store,
		logger:    logger,
		listeners: make(map[int]func(*Session)),
	}
}

// CurrentSession returns the session of the stored token. A stale or
// tampered token is discarded and reported as no session.
func (p *TokenProvider) CurrentSession(ctx context.Context) (*Session, error) {
	tok, ok, err := p.store.Token(ctx, p.owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	s, err := p.issuer.Parse(tok)
	if err != nil {
		if delErr := p.store.Delete(ctx, p.owner); delErr != nil {
			p.logger.Warnf("Warning: failed to discard invalid token for %s: %v", p.owner, delErr)
		}
		return nil, nil
	}
	return s, nil
}

func (p *TokenProvider) OnSessionChange(fn func(*Session)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// SignIn verifies tok, stores it and notifies listeners.
func (p *TokenProvider) SignIn(ctx context.Context, tok string) (*Session, error) {
	s, err := p.issuer.Parse(tok)
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(ctx, p.owner, tok, s.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	p.notify(s)
	return s, nil
}

// SignOut forgets the stored token and notifies listeners.
func (p *TokenProvider) SignOut(ctx context.Context) error {
	if err := p.store.Delete(ctx, p.owner); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	p.notify(nil)
	return nil
}

func (p *TokenProvider) notify(s *Session) {
	p.mu.Lock()
	fns := make([]func(*Session), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

var _ Provider = (*TokenProvider)(nil)
