// Package capture produces the screen artifacts the analysis loop
// documents. The state machine only sees the Capturer interface; the
// shipped implementation drives a Chromium page through go-rod.
package capture

import (
	"context"
	"fmt"

	"screendoc/internal/types"
)

// Error marks a transient capture failure. The state machine skips the
// tick and retries on the next one; it is never fatal to the session.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Capturer grabs one capture of the current screen state.
type Capturer interface {
	Capture(ctx context.Context) (types.CaptureRef, error)
	Close() error
}
