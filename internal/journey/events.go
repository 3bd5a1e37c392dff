package journey

import (
	"capillaire/internal/diagnosis"
	"capillaire/internal/planner"
	"capillaire/internal/session"
)

// Event is anything that can move the journey. The set is closed.
type Event interface {
	event()
}

type (
	// StartQuiz leaves the landing page, or restarts the quiz from the
	// result phase.
	StartQuiz struct{}

	AnswerQuestion struct {
		Question diagnosis.QuestionID
		Option   string
	}

	RestartQuestion struct {
		Question diagnosis.QuestionID
	}

	// SubmitLead captures name and email once every question is answered.
	SubmitLead struct {
		Lead diagnosis.Lead
	}

	// LeadSaved reports the lead write. ClientID is empty when it failed.
	LeadSaved struct {
		ClientID string
		Err      error
	}

	GenerationSucceeded struct {
		Attempt uint64
		Plan    planner.Plan
	}

	GenerationFailed struct {
		Attempt uint64
		Err     *planner.GenerationError
	}

	DismissError struct{}

	// Retry re-runs generation for the current diagnosis.
	Retry struct{}

	Upgrade struct{}

	SubscriptionSucceeded struct{}

	SubscriptionCancelled struct{}

	SessionChanged struct {
		Status  session.Status
		Session *session.Session
	}

	PlanLoaded struct {
		Plan planner.Plan
	}

	SubscriptionResolved struct {
		Subscription session.Subscription
	}

	ClientLinkResolved struct {
		Link session.ClientLink
	}

	ToggleTask struct {
		Day int
	}

	SelectTab struct {
		Tab Tab
	}

	ToggleReminders struct{}

	RemindersLoaded struct {
		Enabled bool
	}

	// ResetApp forgets the in-memory plan and preferences. Stored plans are
	// left alone.
	ResetApp struct{}

	SignOut struct{}

	// SubmitDiagnosis regenerates the plan from an explicit profile.
	SubmitDiagnosis struct {
		Diagnosis diagnosis.Diagnosis
	}
)

func (StartQuiz) event()             {}
func (AnswerQuestion) event()        {}
func (RestartQuestion) event()       {}
func (SubmitLead) event()            {}
func (LeadSaved) event()             {}
func (GenerationSucceeded) event()   {}
func (GenerationFailed) event()      {}
func (DismissError) event()          {}
func (Retry) event()                 {}
func (Upgrade) event()               {}
func (SubscriptionSucceeded) event() {}
func (SubscriptionCancelled) event() {}
func (SessionChanged) event()        {}
func (PlanLoaded) event()            {}
func (SubscriptionResolved) event()  {}
func (ClientLinkResolved) event()    {}
func (ToggleTask) event()            {}
func (SelectTab) event()             {}
func (ToggleReminders) event()       {}
func (RemindersLoaded) event()       {}
func (ResetApp) event()              {}
func (SignOut) event()               {}
func (SubmitDiagnosis) event()       {}
