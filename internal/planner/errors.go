package planner

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed generation.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindMalformedResponse ErrorKind = "malformed-response"
	KindUpstreamError     ErrorKind = "upstream-error"
	KindEmptyPlan         ErrorKind = "empty-plan"
)

// GenerationError is the only error GeneratePlan returns. Message is shown
// to the user verbatim.
type GenerationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func errTimeout() *GenerationError {
	return &GenerationError{Kind: KindTimeout, Message: "the service took too long to respond."}
}

func errEmptyPlan() *GenerationError {
	return &GenerationError{Kind: KindEmptyPlan, Message: "the plan came back empty; redo the quiz"}
}

func errMalformed(err error) *GenerationError {
	return &GenerationError{
		Kind:    KindMalformedResponse,
		Message: "the service returned a plan that could not be read.",
		Err:     err,
	}
}

func errUpstream(err error) *GenerationError {
	return &GenerationError{
		Kind:    KindUpstreamError,
		Message: fmt.Sprintf("the service failed to generate the plan: %v", err),
		Err:     err,
	}
}

// KindOf returns the kind of a GenerationError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return "", false
}
