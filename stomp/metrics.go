package stomp

// Metrics receives WrittenBuffer events. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	IncFramesBuffered()
	IncFramesConfirmed()
	IncTransactionsConfirmed()
	IncSubscriptionsDebuffered()
	IncFramesReplayed()
	IncReplayErrors()
	SetPendingFrames(count int)
}

// NopMetrics discards all metrics.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) IncFramesBuffered() {}

func (NopMetrics) IncFramesConfirmed() {}

func (NopMetrics) IncTransactionsConfirmed() {}

func (NopMetrics) IncSubscriptionsDebuffered() {}

func (NopMetrics) IncFramesReplayed() {}

func (NopMetrics) IncReplayErrors() {}

func (NopMetrics) SetPendingFrames(int) {}
