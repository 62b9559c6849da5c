package stomp

import (
	"fmt"
	"sync"

	"github.com/simlegate/onstomp/stomp/log"
)

// Transmitter is the client send path. Implementations fire
// Hooks.TriggerBeforeTransmit before writing a frame and
// Hooks.TriggerTransmitted once it has been completely written.
type Transmitter interface {
	Transmit(frame *Frame) error
}

// FrameHandler observes one frame event.
type FrameHandler func(frame *Frame)

// ConnectedHandler observes a successful failover reconnect.
type ConnectedHandler func(hooks *Hooks, client Transmitter)

type hookSlot int

const (
	slotBeforeSend hookSlot = iota
	slotBeforeSubscribe
	slotBeforeUnsubscribe
	slotBeforeBegin
	slotBeforeCommit
	slotBeforeAbort
	slotOnSend
	slotOnSubscribe
	slotOnUnsubscribe
	slotOnBegin
	slotOnCommit
	slotOnAbort
	slotCount
)

var slotNames = [slotCount]string{
	"before_send",
	"before_subscribe",
	"before_unsubscribe",
	"before_begin",
	"before_commit",
	"before_abort",
	"on_send",
	"on_subscribe",
	"on_unsubscribe",
	"on_begin",
	"on_commit",
	"on_abort",
}

func beforeSlot(command string) (hookSlot, bool) {
	switch command {
	case CommandSend:
		return slotBeforeSend, true
	case CommandSubscribe:
		return slotBeforeSubscribe, true
	case CommandUnsubscribe:
		return slotBeforeUnsubscribe, true
	case CommandBegin:
		return slotBeforeBegin, true
	case CommandCommit:
		return slotBeforeCommit, true
	case CommandAbort:
		return slotBeforeAbort, true
	}
	return 0, false
}

func afterSlot(command string) (hookSlot, bool) {
	switch command {
	case CommandSend:
		return slotOnSend, true
	case CommandSubscribe:
		return slotOnSubscribe, true
	case CommandUnsubscribe:
		return slotOnUnsubscribe, true
	case CommandBegin:
		return slotOnBegin, true
	case CommandCommit:
		return slotOnCommit, true
	case CommandAbort:
		return slotOnAbort, true
	}
	return 0, false
}

// Hooks is the set of named extension points a failover manager exposes.
// Handlers run in registration order, outside the registry lock, on whatever
// goroutine triggers the event. A panicking handler is recovered and logged.
type Hooks struct {
	lock      sync.RWMutex
	frame     [slotCount][]FrameHandler
	connected []ConnectedHandler
	logger    log.Logger
}

// NewHooks returns an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{logger: log.NewNoopLogger()}
}

// SetLogger sets the logger used for recovered handler panics.
func (hooks *Hooks) SetLogger(logger log.Logger) *Hooks {
	if hooks == nil {
		return hooks
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	hooks.lock.Lock()
	hooks.logger = logger
	hooks.lock.Unlock()
	return hooks
}

func (hooks *Hooks) register(slot hookSlot, handler FrameHandler) *Hooks {
	if hooks == nil || handler == nil {
		return hooks
	}
	hooks.lock.Lock()
	hooks.frame[slot] = append(hooks.frame[slot], handler)
	hooks.lock.Unlock()
	return hooks
}

// BeforeSend registers handler to run before a SEND frame is written.
func (hooks *Hooks) BeforeSend(handler FrameHandler) *Hooks {
	return hooks.register(slotBeforeSend, handler)
}

// BeforeSubscribe registers handler to run before a SUBSCRIBE frame is written.
func (hooks *Hooks) BeforeSubscribe(handler FrameHandler) *Hooks {
	return hooks.register(slotBeforeSubscribe, handler)
}

// BeforeUnsubscribe registers handler to run before an UNSUBSCRIBE frame is written.
func (hooks *Hooks) BeforeUnsubscribe(handler FrameHandler) *Hooks {
	return hooks.register(slotBeforeUnsubscribe, handler)
}

// BeforeBegin registers handler to run before a BEGIN frame is written.
func (hooks *Hooks) BeforeBegin(handler FrameHandler) *Hooks {
	return hooks.register(slotBeforeBegin, handler)
}

// BeforeCommit registers handler to run before a COMMIT frame is written.
func (hooks *Hooks) BeforeCommit(handler FrameHandler) *Hooks {
	return hooks.register(slotBeforeCommit, handler)
}

// BeforeAbort registers handler to run before an ABORT frame is written.
func (hooks *Hooks) BeforeAbort(handler FrameHandler) *Hooks {
	return hooks.register(slotBeforeAbort, handler)
}

// OnSend registers handler to run once a SEND frame has been completely written.
func (hooks *Hooks) OnSend(handler FrameHandler) *Hooks {
	return hooks.register(slotOnSend, handler)
}

// OnSubscribe registers handler to run once a SUBSCRIBE frame has been completely written.
func (hooks *Hooks) OnSubscribe(handler FrameHandler) *Hooks {
	return hooks.register(slotOnSubscribe, handler)
}

// OnUnsubscribe registers handler to run once an UNSUBSCRIBE frame has been completely written.
func (hooks *Hooks) OnUnsubscribe(handler FrameHandler) *Hooks {
	return hooks.register(slotOnUnsubscribe, handler)
}

// OnBegin registers handler to run once a BEGIN frame has been completely written.
func (hooks *Hooks) OnBegin(handler FrameHandler) *Hooks {
	return hooks.register(slotOnBegin, handler)
}

// OnCommit registers handler to run once a COMMIT frame has been completely written.
func (hooks *Hooks) OnCommit(handler FrameHandler) *Hooks {
	return hooks.register(slotOnCommit, handler)
}

// OnAbort registers handler to run once an ABORT frame has been completely written.
func (hooks *Hooks) OnAbort(handler FrameHandler) *Hooks {
	return hooks.register(slotOnAbort, handler)
}

// OnFailoverConnected registers handler for reconnect-success events.
func (hooks *Hooks) OnFailoverConnected(handler ConnectedHandler) *Hooks {
	if hooks == nil || handler == nil {
		return hooks
	}
	hooks.lock.Lock()
	hooks.connected = append(hooks.connected, handler)
	hooks.lock.Unlock()
	return hooks
}

// TriggerBeforeTransmit fires the before hooks matching frame.Command.
// Commands without a slot are ignored.
func (hooks *Hooks) TriggerBeforeTransmit(frame *Frame) {
	if hooks == nil || frame == nil {
		return
	}
	if slot, ok := beforeSlot(frame.Command); ok {
		hooks.fire(slot, frame)
	}
}

// TriggerTransmitted fires the after hooks matching frame.Command. Call it
// only once the frame has been completely written to the connection.
func (hooks *Hooks) TriggerTransmitted(frame *Frame) {
	if hooks == nil || frame == nil {
		return
	}
	if slot, ok := afterSlot(frame.Command); ok {
		hooks.fire(slot, frame)
	}
}

// TriggerFailoverConnected fires the reconnect-success hooks with the newly
// connected client.
func (hooks *Hooks) TriggerFailoverConnected(client Transmitter) {
	if hooks == nil {
		return
	}
	hooks.lock.RLock()
	handlers := append([]ConnectedHandler(nil), hooks.connected...)
	logger := hooks.logger
	hooks.lock.RUnlock()

	for _, handler := range handlers {
		func() {
			defer recoverHandler(logger, "on_failover_connected", nil)
			handler(hooks, client)
		}()
	}
}

func (hooks *Hooks) fire(slot hookSlot, frame *Frame) {
	hooks.lock.RLock()
	handlers := append([]FrameHandler(nil), hooks.frame[slot]...)
	logger := hooks.logger
	hooks.lock.RUnlock()

	for _, handler := range handlers {
		func() {
			defer recoverHandler(logger, slotNames[slot], frame)
			handler(frame)
		}()
	}
}

func recoverHandler(logger log.Logger, slot string, frame *Frame) {
	recovered := recover()
	if recovered == nil {
		return
	}
	fields := []log.Field{
		log.String("hook", slot),
		log.String("panic", fmt.Sprint(recovered)),
	}
	if frame != nil {
		fields = append(fields, log.Command(frame.Command))
	}
	logger.Error("hook handler panicked", fields...)
}
