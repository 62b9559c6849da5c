// Package replay assigns sequence ids to frames held for replay.
package replay

import "sync/atomic"

// Sequencer hands out strictly increasing sequence ids. Zero is never issued
// so it can mean "no sequence".
type Sequencer struct {
	next atomic.Uint64
}

func NewSequencer(start uint64) *Sequencer {
	if start == 0 {
		start = 1
	}
	sequencer := &Sequencer{}
	sequencer.next.Store(start)
	return sequencer
}

func (sequencer *Sequencer) Next() uint64 {
	if sequencer == nil {
		return 0
	}
	return sequencer.next.Add(1) - 1
}

