package common

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/ternarybob/arbor"
)

// SafeGoWithContext starts fn on its own goroutine with panic recovery.
// A recovered panic is logged and the goroutine exits; the service keeps
// running. fn is skipped when ctx is already cancelled.
func SafeGoWithContext(ctx context.Context, logger arbor.ILogger, name string, fn func()) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := string(debug.Stack())
			if logger != nil {
				logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", stack).
					Msg("Recovered goroutine panic")
				return
			}
			fmt.Fprintf(os.Stderr, "panic in goroutine %s: %v\n%s\n", name, r, stack)
		}()

		if ctx.Err() != nil {
			return
		}
		fn()
	}()
}
