// Package session discovers and follows the authentication session of one
// journey and triggers the loads that depend on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status of session discovery.
type Status string

const (
	StatusUnknown       Status = "unknown"
	StatusChecking      Status = "checking"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

// Subscription is the gating flag derived per session.
type Subscription string

const (
	SubscriptionPending  Subscription = "pending"
	SubscriptionActive   Subscription = "active"
	SubscriptionInactive Subscription = "inactive"
)

// LinkState tells whether the session was matched to a lead record.
type LinkState string

const (
	LinkPending  LinkState = "pending"
	LinkLinked   LinkState = "linked"
	LinkUnlinked LinkState = "unlinked"
)

// ClientLink is the result of matching the session email to a client row.
// ID is set only when State is LinkLinked.
type ClientLink struct {
	State LinkState
	ID    string
}

// Session is an authenticated identity handed out by a Provider.
type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Provider is the external authentication capability.
type Provider interface {
	// CurrentSession returns the live session or nil when there is none.
	CurrentSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers fn for every later session change. A nil
	// session means the user signed out. The returned func unsubscribes.
	OnSessionChange(fn func(*Session)) (unsubscribe func())
}

// ErrorKind classifies a session failure.
type ErrorKind string

const KindProviderUnreachable ErrorKind = "provider-unreachable"

// SessionError wraps a provider failure. The manager logs it and treats the
// visitor as anonymous.
type SessionError struct {
	Kind ErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsProviderUnreachable reports whether err is a provider-unreachable
// SessionError.
func IsProviderUnreachable(err error) bool {
	var se *SessionError
	return errors.As(err, &se) && se.Kind == KindProviderUnreachable
}
