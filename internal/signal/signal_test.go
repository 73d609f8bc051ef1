package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPollEmptyChannel(t *testing.T) {
	c := NewChannel()
	assert.Equal(t, None, c.Poll())
	assert.Equal(t, None, c.Peek())
}

func TestPollConsumesSignal(t *testing.T) {
	c := NewChannel()
	c.Send(Stop)

	assert.Equal(t, Stop, c.Poll())
	assert.Equal(t, None, c.Poll())
}

func TestDuplicateSendIsNoOp(t *testing.T) {
	c := NewChannel()
	c.Send(AdvancePhase)
	c.Send(AdvancePhase)
	c.Send(AdvancePhase)

	assert.Equal(t, AdvancePhase, c.Poll())
	assert.Equal(t, None, c.Poll())
}

func TestPrecedenceOrder(t *testing.T) {
	c := NewChannel()
	c.Send(ForceClarify)
	c.Send(AdvancePhase)
	c.Send(Stop)
	c.Send(Abort)

	// Abort first, then Stop, then AdvancePhase, then ForceClarify.
	assert.Equal(t, Abort, c.Poll())
	assert.Equal(t, Stop, c.Poll())
	assert.Equal(t, AdvancePhase, c.Poll())
	assert.Equal(t, ForceClarify, c.Poll())
	assert.Equal(t, None, c.Poll())
}

func TestAbortOvertakesQueuedAdvance(t *testing.T) {
	c := NewChannel()
	c.Send(AdvancePhase)
	c.Send(Abort)

	assert.Equal(t, Abort, c.Poll())
}

func TestPeekDoesNotConsume(t *testing.T) {
	c := NewChannel()
	c.Send(Stop)

	assert.Equal(t, Stop, c.Peek())
	assert.Equal(t, Stop, c.Poll())
}

func TestTakeConsumesOnlyRequestedKind(t *testing.T) {
	c := NewChannel()
	c.Send(AdvancePhase)
	c.Send(ForceClarify)

	assert.False(t, c.Take(Stop))
	assert.True(t, c.Take(ForceClarify))
	assert.False(t, c.Take(ForceClarify))

	// AdvancePhase is still pending.
	assert.Equal(t, AdvancePhase, c.Poll())
}

func TestDrain(t *testing.T) {
	c := NewChannel()
	c.Send(Abort)
	c.Send(Stop)
	c.Drain()

	assert.Equal(t, None, c.Poll())
}

func TestSendNoneIsIgnored(t *testing.T) {
	c := NewChannel()
	c.Send(None)
	assert.Equal(t, None, c.Poll())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "abort", Abort.String())
	assert.Equal(t, "advance", AdvancePhase.String())
	assert.Equal(t, "stop", Stop.String())
	assert.Equal(t, "clarify", ForceClarify.String())
	assert.Equal(t, "none", None.String())
}
