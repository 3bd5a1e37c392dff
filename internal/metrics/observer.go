package metrics

import (
	"capillaire/internal/logging"
	"capillaire/internal/shared"
)

// Observer feeds generation metadata to the Prometheus collectors and the
// execution_metrics table. It satisfies planner.Observer.
type Observer struct {
	store      *Store
	collectors *Collectors
	logger     logging.Logger
}

// NewObserver builds an Observer. store and collectors may each be nil.
func NewObserver(store *Store, collectors *Collectors, logger logging.Logger) *Observer {
	return &Observer{store: store, collectors: collectors, logger: logger}
}

func (o *Observer) ObserveGeneration(meta shared.Generation) {
	outcome := meta.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}
	if o.collectors != nil {
		o.collectors.Generations.WithLabelValues(meta.Component, outcome).Inc()
		o.collectors.GenerationLatency.WithLabelValues(meta.Component).Observe(meta.Latency.Seconds())
	}
	if o.store != nil {
		if err := o.store.RecordMeta(meta); err != nil {
			o.logger.Warnf("Warning: failed to record metrics for %s: %v", meta.Component, err)
		}
	}
}
