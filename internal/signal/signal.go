// Package signal carries asynchronous control events from the signal
// source (hotkeys, stdin) into the phase state machine. The channel
// keeps at most the latest signal of each kind; the control loop polls
// it only at transition boundaries, so a signal is never observed in a
// partial state.
package signal

import "sync"

// Kind identifies a control signal.
type Kind int

const (
	// None means no signal is pending.
	None Kind = iota
	// AdvancePhase moves the session from the capture phase to enhancement.
	AdvancePhase
	// Stop ends the session gracefully after the current tick.
	Stop
	// ForceClarify forces a clarification question on the next analyzed step.
	ForceClarify
	// Abort terminates immediately from any state, after a best-effort flush.
	Abort
)

// String returns the signal name for logging.
func (k Kind) String() string {
	switch k {
	case AdvancePhase:
		return "advance"
	case Stop:
		return "stop"
	case ForceClarify:
		return "clarify"
	case Abort:
		return "abort"
	default:
		return "none"
	}
}

// Channel is a bounded signal mailbox. Send never blocks: a second
// signal of a pending kind is a no-op, a different kind is queued
// alongside. Poll consumes in precedence order with Abort always first.
type Channel struct {
	mu      sync.Mutex
	pending map[Kind]bool
}

// NewChannel creates an empty signal channel.
func NewChannel() *Channel {
	return &Channel{pending: make(map[Kind]bool)}
}

// Send marks a signal pending. Duplicate sends of an already-pending
// kind are absorbed.
func (c *Channel) Send(k Kind) {
	if k == None {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[k] = true
}

// pollOrder fixes consumption precedence: Abort preempts everything,
// Stop beats a queued phase advance, clarification is last.
var pollOrder = []Kind{Abort, Stop, AdvancePhase, ForceClarify}

// Poll consumes and returns the highest-precedence pending signal,
// or None if the channel is empty.
func (c *Channel) Poll() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range pollOrder {
		if c.pending[k] {
			delete(c.pending, k)
			return k
		}
	}
	return None
}

// Take consumes the given kind if it is pending, reporting whether it
// was. Lets a transition boundary consume only the kinds it owns.
func (c *Channel) Take(k Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[k] {
		delete(c.pending, k)
		return true
	}
	return false
}

// Peek reports the highest-precedence pending signal without consuming it.
func (c *Channel) Peek() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range pollOrder {
		if c.pending[k] {
			return k
		}
	}
	return None
}

// Drain discards all pending signals. Used when the session terminates.
func (c *Channel) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[Kind]bool)
}
