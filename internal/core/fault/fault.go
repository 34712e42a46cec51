// Package fault is the process-level last line of defence. Anything that
// reaches it unclassified is logged and the process exits so an external
// supervisor can restart it from a clean state.
package fault

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/vietddude/botkeeper/internal/core/classify"
	"github.com/vietddude/botkeeper/internal/metrics"
)

// exit terminates the process. Replaced in tests.
var exit = os.Exit

// SetExit replaces the exit function and returns a func restoring the
// previous one. For tests of code running inside the boundary.
func SetExit(fn func(code int)) (restore func()) {
	orig := exit
	exit = fn
	return func() { exit = orig }
}

// Escalate hands an error to the fault boundary. Ignorable protocol noise is
// dropped; anything else is logged at error severity and the process exits.
func Escalate(err error) {
	if err == nil {
		return
	}
	class := classify.ClassifyError(err)
	if class == classify.Ignorable {
		metrics.ClassifiedErrors.WithLabelValues("process", class.String()).Inc()
		slog.Debug("Ignored protocol noise at fault boundary", "error", err)
		return
	}

	metrics.ClassifiedErrors.WithLabelValues("process", classify.Fatal.String()).Inc()
	slog.Error("CRITICAL uncaught fault, exiting", "error", err, "stack", string(debug.Stack()))
	exit(1)
}

// Guard recovers a panic in the current goroutine and escalates it.
// Use as `defer fault.Guard()`.
func Guard() {
	if r := recover(); r != nil {
		Escalate(panicError(r))
	}
}

// Go runs fn on a new goroutine inside the fault boundary.
func Go(fn func()) {
	go func() {
		defer Guard()
		fn()
	}()
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return errors.New(fmt.Sprint("panic: ", r))
}
