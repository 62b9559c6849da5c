// Package testutil holds deterministic fakes for stomp tests.
package testutil

import (
	"errors"
	"sync"

	"github.com/simlegate/onstomp/stomp"
)

// ErrTransmitFailed is returned by a Transmitter after its failure budget.
var ErrTransmitFailed = errors.New("testutil: transmit failed")

// Transmitter records transmitted frames and fires hooks around each one the
// way a socket-backed client does.
type Transmitter struct {
	lock      sync.Mutex
	hooks     *stomp.Hooks
	frames    []*stomp.Frame
	failAfter int
	attempts  int
	confirm   bool
}

// NewTransmitter returns a transmitter firing hooks. When confirm is false
// only the before hooks fire, modelling a connection that drops before any
// write completes.
func NewTransmitter(hooks *stomp.Hooks, confirm bool) *Transmitter {
	return &Transmitter{hooks: hooks, confirm: confirm, failAfter: -1}
}

// FailAfter makes every transmit after the first n fail.
func (transmitter *Transmitter) FailAfter(n int) *Transmitter {
	transmitter.lock.Lock()
	transmitter.failAfter = n
	transmitter.lock.Unlock()
	return transmitter
}

func (transmitter *Transmitter) Transmit(frame *stomp.Frame) error {
	transmitter.hooks.TriggerBeforeTransmit(frame)

	transmitter.lock.Lock()
	attempt := transmitter.attempts
	transmitter.attempts++
	if transmitter.failAfter >= 0 && attempt >= transmitter.failAfter {
		transmitter.lock.Unlock()
		return ErrTransmitFailed
	}
	transmitter.frames = append(transmitter.frames, frame)
	confirm := transmitter.confirm
	transmitter.lock.Unlock()

	if confirm {
		transmitter.hooks.TriggerTransmitted(frame)
	}
	return nil
}

// Frames returns the frames transmitted so far.
func (transmitter *Transmitter) Frames() []*stomp.Frame {
	transmitter.lock.Lock()
	defer transmitter.lock.Unlock()
	return append([]*stomp.Frame(nil), transmitter.frames...)
}

// Commands returns the command of each transmitted frame.
func (transmitter *Transmitter) Commands() []string {
	frames := transmitter.Frames()
	commands := make([]string, 0, len(frames))
	for _, frame := range frames {
		commands = append(commands, frame.Command)
	}
	return commands
}
