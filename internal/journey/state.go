// Package journey is the top-level state machine of one visitor: landing,
// quiz, result, subscription and the app itself.
//
// Reduce is a pure transition function. Effects derives the side effects
// implied by a transition, and Controller runs both on a single goroutine.
package journey

import (
	"capillaire/internal/diagnosis"
	"capillaire/internal/planner"
	"capillaire/internal/session"
)

// Phase is the screen the visitor is on.
type Phase string

const (
	PhaseLanding      Phase = "landing"
	PhaseQuiz         Phase = "quiz"
	PhaseResult       Phase = "result"
	PhaseSubscription Phase = "subscription"
	PhaseApp          Phase = "app"
)

// Tab of the app phase.
type Tab string

const (
	TabHome      Tab = "home"
	TabDashboard Tab = "dashboard"
	TabSchedule  Tab = "schedule"
	TabChat      Tab = "chat"
	TabProfile   Tab = "profile"
)

// Failure is the last failed generation, shown by the error overlay.
type Failure struct {
	Kind    planner.ErrorKind
	Message string
}

// State is the whole journey. Values are treated as immutable: Reduce
// returns a new State and never mutates the plan or answers it was given.
type State struct {
	Phase Phase
	Tab   Tab

	// Generating is the in-flight latch; it drives the loading overlay.
	Generating bool
	// Attempt numbers generation calls so stale results are dropped.
	Attempt   uint64
	LastError *Failure

	Answers     diagnosis.QuizAnswers
	Lead        *diagnosis.Lead
	LeadPending bool
	ClientID    string
	Diagnosis   *diagnosis.Diagnosis

	Plan *planner.Plan
	// PlanRevision is bumped on every local plan change that must be saved.
	PlanRevision uint64

	Session      session.Status
	User         *session.Session
	Subscription session.Subscription
	ClientLink   session.ClientLink
	// Upgraded is set once the visitor completed checkout in this journey.
	Upgraded bool

	Reminders         bool
	RemindersRevision uint64
	SignOutRequests   uint64
}

// Initial is the state of a fresh journey.
func Initial() State {
	return State{
		Phase:        PhaseLanding,
		Tab:          TabHome,
		Answers:      diagnosis.QuizAnswers{},
		Session:      session.StatusUnknown,
		Subscription: session.SubscriptionPending,
		ClientLink:   session.ClientLink{State: session.LinkPending},
	}
}

// Authenticated reports whether a live session is attached.
func (s State) Authenticated() bool {
	return s.Session == session.StatusAuthenticated && s.User != nil
}

// UserID of the live session, or "".
func (s State) UserID() string {
	if !s.Authenticated() {
		return ""
	}
	return s.User.UserID
}

// Loading reports whether the loading overlay is shown.
func (s State) Loading() bool {
	return s.Generating
}

// ShowError reports whether the error overlay is shown.
func (s State) ShowError() bool {
	return !s.Generating && s.LastError != nil
}

// AuthRequired reports whether the app phase must show the sign-in screen
// in place of the tabs.
func (s State) AuthRequired() bool {
	return s.Phase == PhaseApp && !s.Authenticated()
}

// QuizStep is the zero-based index of the current quiz question.
func (s State) QuizStep() int {
	return s.Answers.NextStep()
}

// ResultText is the headline of the result phase.
func (s State) ResultText() string {
	return diagnosis.ResultText(s.Answers)
}
