package journey

import (
	"capillaire/internal/diagnosis"
	"capillaire/internal/planner"
	"capillaire/internal/progress"
	"capillaire/internal/session"
)

// Reduce returns the state that follows s after ev. It has no side effects;
// events that do not apply to the current state return s unchanged.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case StartQuiz:
		return startQuiz(s)
	case AnswerQuestion:
		if s.Phase != PhaseQuiz || s.Lead != nil {
			return s
		}
		answers, err := s.Answers.Answer(e.Question, e.Option)
		if err != nil {
			return s
		}
		s.Answers = answers
		return s
	case RestartQuestion:
		if s.Phase != PhaseQuiz || s.Lead != nil {
			return s
		}
		s.Answers = s.Answers.Restart(e.Question)
		return s
	case SubmitLead:
		if s.Phase != PhaseQuiz || s.Lead != nil || !s.Answers.Complete() || e.Lead.Validate() != nil {
			return s
		}
		lead := e.Lead
		s.Lead = &lead
		s.LeadPending = true
		return s
	case LeadSaved:
		if !s.LeadPending {
			return s
		}
		s.LeadPending = false
		if e.Err == nil {
			s.ClientID = e.ClientID
		}
		d := diagnosis.FromQuiz(s.Answers)
		s.Diagnosis = &d
		return enterResult(s)
	case GenerationSucceeded:
		if !s.Generating || e.Attempt != s.Attempt {
			return s
		}
		plan := e.Plan.Clone()
		s.Generating = false
		s.LastError = nil
		s.Plan = &plan
		s.PlanRevision++
		return s
	case GenerationFailed:
		if !s.Generating || e.Attempt != s.Attempt {
			return s
		}
		s.Generating = false
		s.LastError = failureOf(e.Err)
		return s
	case DismissError:
		if s.LastError == nil {
			return s
		}
		s.LastError = nil
		return s
	case Retry:
		if s.Generating || s.Diagnosis == nil || (s.Plan != nil && s.LastError == nil) {
			return s
		}
		return startGeneration(s)
	case Upgrade:
		if s.Phase != PhaseResult {
			return s
		}
		if s.Authenticated() && s.Subscription == session.SubscriptionActive {
			s.Phase = PhaseApp
			s.Tab = TabDashboard
			return s
		}
		s.Phase = PhaseSubscription
		return s
	case SubscriptionSucceeded:
		if s.Phase != PhaseSubscription {
			return s
		}
		s.Phase = PhaseApp
		s.Tab = TabDashboard
		s.Upgraded = true
		s.Subscription = session.SubscriptionActive
		return s
	case SubscriptionCancelled:
		if s.Phase != PhaseSubscription {
			return s
		}
		s.Phase = PhaseApp
		s.Tab = TabHome
		return s
	case SessionChanged:
		return sessionChanged(s, e)
	case PlanLoaded:
		return planLoaded(s, e.Plan)
	case SubscriptionResolved:
		if !s.Authenticated() {
			return s
		}
		if s.Upgraded {
			s.Subscription = session.SubscriptionActive
			return s
		}
		s.Subscription = e.Subscription
		return s
	case ClientLinkResolved:
		if !s.Authenticated() {
			return s
		}
		s.ClientLink = e.Link
		if s.ClientID == "" && e.Link.State == session.LinkLinked {
			s.ClientID = e.Link.ID
		}
		return s
	case ToggleTask:
		if s.Plan == nil {
			return s
		}
		if _, ok := s.Plan.Task(e.Day); !ok {
			return s
		}
		plan := progress.ToggleTask(*s.Plan, e.Day)
		s.Plan = &plan
		s.PlanRevision++
		return s
	case SelectTab:
		if s.Phase != PhaseApp {
			return s
		}
		s.Tab = e.Tab
		return s
	case ToggleReminders:
		s.Reminders = !s.Reminders
		s.RemindersRevision++
		return s
	case RemindersLoaded:
		s.Reminders = e.Enabled
		return s
	case ResetApp:
		s.Plan = nil
		s.Generating = false
		s.Attempt++
		s.LastError = nil
		s.Tab = TabHome
		if s.Reminders {
			s.Reminders = false
			s.RemindersRevision++
		}
		return s
	case SignOut:
		if !s.Authenticated() {
			return s
		}
		s.SignOutRequests++
		return s
	case SubmitDiagnosis:
		if s.Phase != PhaseApp || !s.Authenticated() || s.Generating || e.Diagnosis.Validate() != nil {
			return s
		}
		d := e.Diagnosis
		s.Diagnosis = &d
		return startGeneration(s)
	}
	return s
}

func startQuiz(s State) State {
	switch {
	case s.Phase == PhaseLanding:
	case s.Phase == PhaseResult && !s.Generating && !s.LeadPending:
		s.Lead = nil
		s.Diagnosis = nil
		s.LastError = nil
		s.Plan = nil
	default:
		return s
	}
	s.Phase = PhaseQuiz
	s.Answers = diagnosis.QuizAnswers{}
	return s
}

// enterResult moves to the result phase and starts generation unless a plan
// is already in memory or a call is in flight.
func enterResult(s State) State {
	s.Phase = PhaseResult
	if s.Plan != nil || s.Generating || s.Diagnosis == nil {
		return s
	}
	return startGeneration(s)
}

func startGeneration(s State) State {
	s.Generating = true
	s.Attempt++
	s.LastError = nil
	return s
}

func sessionChanged(s State, e SessionChanged) State {
	switch e.Status {
	case session.StatusChecking:
		if !s.Authenticated() {
			s.Session = session.StatusChecking
		}
		return s
	case session.StatusAuthenticated:
		if e.Session == nil {
			return s
		}
		if s.Authenticated() && s.User.UserID != e.Session.UserID {
			s = clearAccount(s)
		}
		if !s.Authenticated() || s.User.UserID != e.Session.UserID {
			if s.Upgraded {
				s.Subscription = session.SubscriptionActive
			} else {
				s.Subscription = session.SubscriptionPending
			}
			s.ClientLink = session.ClientLink{State: session.LinkPending}
		}
		user := *e.Session
		s.Session = session.StatusAuthenticated
		s.User = &user
		switch s.Phase {
		case PhaseLanding, PhaseResult, PhaseSubscription:
			s.Phase = PhaseApp
		}
		return s
	default:
		if s.Authenticated() {
			s = clearAccount(s)
		}
		s.Session = session.StatusAnonymous
		s.User = nil
		return s
	}
}

// clearAccount drops what belongs to the departing session. Persisted data
// is not touched.
func clearAccount(s State) State {
	s.Plan = nil
	s.Subscription = session.SubscriptionPending
	s.ClientLink = session.ClientLink{State: session.LinkPending}
	s.Upgraded = false
	return s
}

// planLoaded adopts a stored plan unless the one in memory is the same plan
// or was generated after it.
func planLoaded(s State, loaded planner.Plan) State {
	if !s.Authenticated() {
		return s
	}
	if s.Plan != nil && (s.Plan.ID == loaded.ID || s.Plan.CreatedAt.After(loaded.CreatedAt)) {
		return s
	}
	plan := loaded.Clone()
	s.Plan = &plan
	return s
}

func failureOf(err *planner.GenerationError) *Failure {
	if err == nil {
		return &Failure{Kind: planner.KindUpstreamError, Message: "unknown error"}
	}
	return &Failure{Kind: err.Kind, Message: err.Message}
}
