package fault

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (r *exitRecorder) Codes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int{}, r.codes...)
}

func captureExit(t *testing.T) *exitRecorder {
	t.Helper()
	rec := &exitRecorder{}
	orig := exit
	exit = func(code int) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.codes = append(rec.codes, code)
	}
	t.Cleanup(func() { exit = orig })
	return rec
}

func TestEscalate_IgnorableDoesNotExit(t *testing.T) {
	codes := captureExit(t)

	Escalate(errors.New("PartialReadError: Unexpected buffer end"))
	Escalate(fmt.Errorf("frame: %w", io.ErrUnexpectedEOF))
	Escalate(nil)

	assert.Empty(t, codes.Codes())
}

func TestEscalate_UnclassifiedExits(t *testing.T) {
	codes := captureExit(t)

	Escalate(errors.New("nil map write in registry"))

	require.Equal(t, []int{1}, codes.Codes())
}

func TestGuard_RecoversPanic(t *testing.T) {
	codes := captureExit(t)

	func() {
		defer Guard()
		panic("unexpected state")
	}()
	func() {
		defer Guard()
		panic(errors.New("Chunk size is 4 but only 2 was read"))
	}()

	require.Equal(t, []int{1}, codes.Codes())
}

func TestGo_RunsInsideBoundary(t *testing.T) {
	codes := captureExit(t)
	done := make(chan struct{})

	Go(func() {
		defer close(done)
		panic("boom")
	})
	<-done

	require.Eventually(t, func() bool { return len(codes.Codes()) == 1 }, time.Second, 5*time.Millisecond)
}
