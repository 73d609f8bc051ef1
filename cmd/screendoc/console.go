package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"screendoc/internal/logging"
	"screendoc/internal/signal"
)

// console is the line-oriented human interface for a recording run. A
// single reader goroutine owns stdin: while no question is pending,
// lines are interpreted as control words and become signals; while the
// state machine waits in Ask, the next line is the answer.
type console struct {
	signals *signal.Channel
	in      io.Reader
	out     io.Writer

	mu      sync.Mutex
	pending chan string // non-nil while an Ask is waiting
}

func newConsole(signals *signal.Channel, in io.Reader, out io.Writer) *console {
	return &console{signals: signals, in: in, out: out}
}

// run reads stdin until EOF or ctx cancellation. It only ever writes to
// the signal channel or to a pending Ask; all session state stays with
// the control loop.
func (c *console) run(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())

		c.mu.Lock()
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()
		if pending != nil {
			pending <- line
			continue
		}

		switch strings.ToLower(line) {
		case "":
		case "next", "done":
			c.signals.Send(signal.AdvancePhase)
			logging.Signal("advance requested from console")
		case "stop":
			c.signals.Send(signal.Stop)
			logging.Signal("stop requested from console")
		case "why":
			c.signals.Send(signal.ForceClarify)
			logging.Signal("clarification forced from console")
		case "abort":
			c.signals.Send(signal.Abort)
			logging.Signal("abort requested from console")
		default:
			fmt.Fprintln(c.out, "commands: next (enhance), stop, why (clarify), abort")
		}
	}
}

// Ask prints the question and blocks until the reader goroutine hands
// over the next line, or ctx expires (abandonment).
func (c *console) Ask(ctx context.Context, question string) (string, error) {
	answerCh := make(chan string, 1)
	c.mu.Lock()
	c.pending = answerCh
	c.mu.Unlock()

	fmt.Fprintf(c.out, "\n[?] %s\n> ", question)

	select {
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == answerCh {
			c.pending = nil
		}
		c.mu.Unlock()
		return "", ctx.Err()
	case answer := <-answerCh:
		return answer, nil
	}
}
