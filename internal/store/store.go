// Package store defines the persistence contracts for plans, subscriptions,
// client records and preferences. Backends live in sub-packages.
package store

import (
	"context"

	"capillaire/internal/diagnosis"
	"capillaire/internal/planner"
)

// PrefDailyReminders is the preference key for the daily reminder flag.
const PrefDailyReminders = "daily_reminders"

// SubscriptionStatus of a subscription row.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// PlanStore loads and saves plans per user.
type PlanStore interface {
	// LoadLatestPlan returns the most recently created plan for userID, or
	// nil without error when the user has none.
	LoadLatestPlan(ctx context.Context, userID string) (*planner.Plan, error)
	// UpsertPlan writes plan for userID and returns the row id. Writing the
	// same plan twice never creates a second row.
	UpsertPlan(ctx context.Context, userID string, plan planner.Plan) (string, error)
}

// SubscriptionStore answers subscription status questions.
type SubscriptionStore interface {
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
	SetSubscriptionStatus(ctx context.Context, userID string, status SubscriptionStatus) error
}

// ClientStore keeps the lead records captured by the quiz.
type ClientStore interface {
	InsertClient(ctx context.Context, lead diagnosis.Lead, answers diagnosis.QuizAnswers) (string, error)
	// FindClientIDByEmail returns the newest client id for email.
	FindClientIDByEmail(ctx context.Context, email string) (string, bool, error)
}

// Preferences is a small durable key/value store of boolean flags.
type Preferences interface {
	GetBool(ctx context.Context, owner, key string) (bool, error)
	SetBool(ctx context.Context, owner, key string, value bool) error
}

// Repositories bundles the stores one backend provides.
type Repositories struct {
	Plans         PlanStore
	Subscriptions SubscriptionStore
	Clients       ClientStore
}
