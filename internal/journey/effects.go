package journey

import (
	"capillaire/internal/diagnosis"
	"capillaire/internal/planner"
	"capillaire/internal/store"
)

// Effect is a side effect implied by a transition. The set is closed.
type Effect interface {
	effect()
}

type (
	SaveLeadEffect struct {
		Lead    diagnosis.Lead
		Answers diagnosis.QuizAnswers
	}

	GenerateEffect struct {
		Attempt   uint64
		Diagnosis diagnosis.Diagnosis
	}

	PersistPlanEffect struct {
		UserID string
		Plan   planner.Plan
	}

	SavePreferenceEffect struct {
		Key   string
		Value bool
	}

	ActivateSubscriptionEffect struct {
		UserID string
	}

	SignOutEffect struct{}
)

func (SaveLeadEffect) effect()             {}
func (GenerateEffect) effect()             {}
func (PersistPlanEffect) effect()          {}
func (SavePreferenceEffect) effect()       {}
func (ActivateSubscriptionEffect) effect() {}
func (SignOutEffect) effect()              {}

// Effects lists what must happen because the journey moved from prev to
// next. It looks only at the two states, never at the event.
func Effects(prev, next State) []Effect {
	var out []Effect

	if next.LeadPending && !prev.LeadPending && next.Lead != nil {
		out = append(out, SaveLeadEffect{Lead: *next.Lead, Answers: next.Answers})
	}

	if next.Generating && next.Diagnosis != nil && (!prev.Generating || prev.Attempt != next.Attempt) {
		out = append(out, GenerateEffect{Attempt: next.Attempt, Diagnosis: *next.Diagnosis})
	}

	newUser := next.Authenticated() && prev.UserID() != next.UserID()

	if next.Plan != nil && next.Authenticated() && (next.PlanRevision != prev.PlanRevision || newUser) {
		out = append(out, PersistPlanEffect{UserID: next.UserID(), Plan: next.Plan.Clone()})
	}

	if next.RemindersRevision != prev.RemindersRevision {
		out = append(out, SavePreferenceEffect{Key: store.PrefDailyReminders, Value: next.Reminders})
	}

	if next.Upgraded && next.Authenticated() && (!prev.Upgraded || newUser) {
		out = append(out, ActivateSubscriptionEffect{UserID: next.UserID()})
	}

	if next.SignOutRequests != prev.SignOutRequests {
		out = append(out, SignOutEffect{})
	}

	return out
}
