// Package shared holds the record every generative call produces, so the
// planner, metrics and chat alerts agree on one shape.
package shared

import "time"

// TokenUsage is what the upstream model reported for one call. Providers that
// report nothing leave the counts at zero.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Generation describes one call to a generative model: who made it, what it
// cost and how it ended.
type Generation struct {
	Component string
	Usage     TokenUsage
	Latency   time.Duration
	// Outcome is "success" or a failure kind such as "timeout". Empty means
	// success for callers that predate the field.
	Outcome string
}

// Failed reports whether the call ended in anything but success.
func (g Generation) Failed() bool {
	return g.Outcome != "" && g.Outcome != "success"
}
