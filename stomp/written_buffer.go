package stomp

import (
	"strconv"
	"sync"

	"github.com/simlegate/onstomp/stomp/internal/replay"
	"github.com/simlegate/onstomp/stomp/log"
)

type pendingFrame struct {
	sequence uint64
	frame    *Frame
}

// WrittenBuffer holds frames until they are confirmed written on the active
// connection and replays the rest when the failover client reconnects.
//
// Transactional frames stay buffered until the COMMIT or ABORT of their
// transaction has been written. A SUBSCRIBE is dropped as soon as the
// matching UNSUBSCRIBE starts transmitting, so a reconnect never revives a
// subscription the caller has already given up.
type WrittenBuffer struct {
	lock         sync.Mutex
	pending      []pendingFrame
	transactions map[string]struct{}
	sequencer    *replay.Sequencer
	logger       log.Logger
	metrics      Metrics
}

// NewWrittenBuffer returns a buffer registered on hooks. A nil hooks value
// yields an unregistered buffer driven through its methods directly.
func NewWrittenBuffer(hooks *Hooks) *WrittenBuffer {
	buffer := &WrittenBuffer{
		transactions: make(map[string]struct{}),
		sequencer:    replay.NewSequencer(1),
		logger:       log.NewNoopLogger(),
		metrics:      NopMetrics{},
	}
	if hooks == nil {
		return buffer
	}

	hooks.BeforeSend(buffer.BufferFrame).
		BeforeCommit(buffer.BufferFrame).
		BeforeAbort(buffer.BufferFrame).
		BeforeSubscribe(buffer.BufferFrame).
		BeforeBegin(buffer.BufferTransaction).
		// An UNSUBSCRIBE that never completes must still win over its
		// SUBSCRIBE on replay.
		BeforeUnsubscribe(buffer.DebufferSubscription).
		OnCommit(buffer.DebufferTransaction).
		OnAbort(buffer.DebufferTransaction).
		OnSend(buffer.DebufferNonTransactionalFrame).
		OnFailoverConnected(func(hooks *Hooks, client Transmitter) {
			_ = buffer.Replay(hooks, client)
		})
	return buffer
}

// SetLogger sets the buffer logger.
func (buffer *WrittenBuffer) SetLogger(logger log.Logger) *WrittenBuffer {
	if buffer == nil {
		return buffer
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	buffer.lock.Lock()
	buffer.logger = logger
	buffer.lock.Unlock()
	return buffer
}

// SetMetrics sets the buffer metrics collector.
func (buffer *WrittenBuffer) SetMetrics(metrics Metrics) *WrittenBuffer {
	if buffer == nil {
		return buffer
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	buffer.lock.Lock()
	buffer.metrics = metrics
	buffer.lock.Unlock()
	return buffer
}

// BufferFrame appends frame unless it is a replayed copy.
func (buffer *WrittenBuffer) BufferFrame(frame *Frame) {
	if buffer == nil || frame == nil {
		return
	}
	buffer.lock.Lock()
	sequence, added := buffer.appendLocked(frame)
	depth := len(buffer.pending)
	logger, metrics := buffer.logger, buffer.metrics
	buffer.lock.Unlock()

	if !added {
		return
	}
	metrics.IncFramesBuffered()
	metrics.SetPendingFrames(depth)
	logger.Debug("buffered frame",
		log.Command(frame.Command),
		log.Sequence(sequence),
		log.Int("pending", depth),
	)
}

// BufferTransaction opens the frame's transaction and buffers the frame.
func (buffer *WrittenBuffer) BufferTransaction(frame *Frame) {
	if buffer == nil || frame == nil {
		return
	}
	buffer.lock.Lock()
	if transaction, ok := frame.Transaction(); ok {
		buffer.transactions[transaction] = struct{}{}
	}
	sequence, added := buffer.appendLocked(frame)
	depth := len(buffer.pending)
	logger, metrics := buffer.logger, buffer.metrics
	buffer.lock.Unlock()

	if !added {
		return
	}
	metrics.IncFramesBuffered()
	metrics.SetPendingFrames(depth)
	transaction, _ := frame.Transaction()
	logger.Debug("buffered transaction",
		log.Transaction(transaction),
		log.Sequence(sequence),
	)
}

// DebufferTransaction closes the frame's transaction and drops every buffered
// frame that belongs to it. Unknown transactions are ignored.
func (buffer *WrittenBuffer) DebufferTransaction(frame *Frame) {
	if buffer == nil || frame == nil {
		return
	}
	transaction, ok := frame.Transaction()
	if !ok {
		return
	}

	buffer.lock.Lock()
	if _, open := buffer.transactions[transaction]; !open {
		buffer.lock.Unlock()
		return
	}
	delete(buffer.transactions, transaction)
	removed := buffer.removeLocked(func(entry pendingFrame) bool {
		member, ok := entry.frame.Transaction()
		return ok && member == transaction
	})
	depth := len(buffer.pending)
	logger, metrics := buffer.logger, buffer.metrics
	buffer.lock.Unlock()

	metrics.IncTransactionsConfirmed()
	metrics.SetPendingFrames(depth)
	logger.Debug("debuffered transaction",
		log.Transaction(transaction),
		log.Int("frames", removed),
	)
}

// DebufferSubscription drops the buffered SUBSCRIBE whose id matches the
// UNSUBSCRIBE frame.
func (buffer *WrittenBuffer) DebufferSubscription(frame *Frame) {
	if buffer == nil || frame == nil {
		return
	}
	id, ok := frame.SubscriptionID()
	if !ok {
		return
	}

	buffer.lock.Lock()
	removed := buffer.removeLocked(func(entry pendingFrame) bool {
		if entry.frame.Command != CommandSubscribe {
			return false
		}
		subscription, ok := entry.frame.SubscriptionID()
		return ok && subscription == id
	})
	depth := len(buffer.pending)
	logger, metrics := buffer.logger, buffer.metrics
	buffer.lock.Unlock()

	if removed == 0 {
		return
	}
	metrics.IncSubscriptionsDebuffered()
	metrics.SetPendingFrames(depth)
	logger.Debug("debuffered subscription", log.Subscription(id))
}

// DebufferNonTransactionalFrame drops frame once it has been written, unless
// its transaction is still open. Frames are matched by identity; a replayed
// copy is matched to its original through the sequence in ReplayHeader.
func (buffer *WrittenBuffer) DebufferNonTransactionalFrame(frame *Frame) {
	if buffer == nil || frame == nil {
		return
	}
	sequence, replayed := replaySequence(frame)

	buffer.lock.Lock()
	if transaction, ok := frame.Transaction(); ok {
		if _, open := buffer.transactions[transaction]; open {
			buffer.lock.Unlock()
			return
		}
	}
	index := -1
	for position, entry := range buffer.pending {
		if entry.frame == frame || (replayed && entry.sequence == sequence) {
			index = position
			break
		}
	}
	if index < 0 {
		buffer.lock.Unlock()
		return
	}
	entry := buffer.pending[index]
	buffer.pending = append(buffer.pending[:index], buffer.pending[index+1:]...)
	depth := len(buffer.pending)
	logger, metrics := buffer.logger, buffer.metrics
	buffer.lock.Unlock()

	metrics.IncFramesConfirmed()
	metrics.SetPendingFrames(depth)
	logger.Debug("debuffered frame",
		log.Command(entry.frame.Command),
		log.Sequence(entry.sequence),
	)
}

// DrainForReplay returns tagged copies of every pending frame in send order.
// The buffer is left unchanged: entries leave only when their copies are
// confirmed on the new connection.
func (buffer *WrittenBuffer) DrainForReplay() []*Frame {
	if buffer == nil {
		return nil
	}
	buffer.lock.Lock()
	defer buffer.lock.Unlock()

	frames := make([]*Frame, 0, len(buffer.pending))
	for _, entry := range buffer.pending {
		frames = append(frames, entry.frame.Clone().SetHeader(ReplayHeader, strconv.FormatUint(entry.sequence, 10)))
	}
	return frames
}

// Replay retransmits every pending frame through client. It stops at the
// first transmit error so the broker never sees the frames out of order; the
// untransmitted frames stay pending for the next reconnect.
func (buffer *WrittenBuffer) Replay(hooks *Hooks, client Transmitter) error {
	if buffer == nil || client == nil {
		return nil
	}
	frames := buffer.DrainForReplay()

	buffer.lock.Lock()
	logger, metrics := buffer.logger, buffer.metrics
	buffer.lock.Unlock()

	logger.Info("replaying buffered frames", log.Int("frames", len(frames)))
	for index, frame := range frames {
		if err := client.Transmit(frame); err != nil {
			metrics.IncReplayErrors()
			logger.Warn("replay interrupted",
				log.Command(frame.Command),
				log.Int("replayed", index),
				log.Int("remaining", len(frames)-index),
				log.Err(err),
			)
			return err
		}
		metrics.IncFramesReplayed()
	}
	return nil
}

// Len returns the number of pending frames.
func (buffer *WrittenBuffer) Len() int {
	if buffer == nil {
		return 0
	}
	buffer.lock.Lock()
	defer buffer.lock.Unlock()
	return len(buffer.pending)
}

// Pending returns the pending frames in send order. The frames are the
// buffered instances, not copies.
func (buffer *WrittenBuffer) Pending() []*Frame {
	if buffer == nil {
		return nil
	}
	buffer.lock.Lock()
	defer buffer.lock.Unlock()

	frames := make([]*Frame, 0, len(buffer.pending))
	for _, entry := range buffer.pending {
		frames = append(frames, entry.frame)
	}
	return frames
}

// TransactionOpen reports whether transaction is currently open.
func (buffer *WrittenBuffer) TransactionOpen(transaction string) bool {
	if buffer == nil {
		return false
	}
	buffer.lock.Lock()
	defer buffer.lock.Unlock()
	_, open := buffer.transactions[transaction]
	return open
}

func (buffer *WrittenBuffer) appendLocked(frame *Frame) (uint64, bool) {
	if frame.HasHeader(ReplayHeader) {
		return 0, false
	}
	sequence := buffer.sequencer.Next()
	buffer.pending = append(buffer.pending, pendingFrame{sequence: sequence, frame: frame})
	return sequence, true
}

func (buffer *WrittenBuffer) removeLocked(match func(pendingFrame) bool) int {
	kept := buffer.pending[:0]
	for _, entry := range buffer.pending {
		if !match(entry) {
			kept = append(kept, entry)
		}
	}
	removed := len(buffer.pending) - len(kept)
	for index := len(kept); index < len(buffer.pending); index++ {
		buffer.pending[index] = pendingFrame{}
	}
	buffer.pending = kept
	return removed
}

func replaySequence(frame *Frame) (uint64, bool) {
	value, ok := frame.Header(ReplayHeader)
	if !ok {
		return 0, false
	}
	sequence, err := strconv.ParseUint(value, 10, 64)
	if err != nil || sequence == 0 {
		return 0, false
	}
	return sequence, true
}
