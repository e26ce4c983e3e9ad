package application

// Metrics receives instrumentation events from the application services.
type Metrics interface {
	// ObserveTransition records the outcome of a lifecycle or catalogue operation.
	ObserveTransition(operation string, kind Kind)
	// ObserveDelivery records one outbox delivery attempt.
	ObserveDelivery(template, outcome string)
	// SetOutboxDepth reports the number of outbox messages in a status.
	SetOutboxDepth(status string, n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string, Kind)  {}
func (noopMetrics) ObserveDelivery(string, string) {}
func (noopMetrics) SetOutboxDepth(string, int)     {}

func metricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// outcomeKind labels a finished operation for ObserveTransition.
func outcomeKind(err error) Kind {
	if err == nil {
		return ""
	}
	return KindOf(err)
}
