// Package testutil provides helpers shared by package tests.
//
// Calling t.Fatal or t.FailNow from a goroutine other than the test's own
// only exits that goroutine. Helpers here collect failures from workers and
// report them on the test goroutine instead.
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestHelper runs worker goroutines and collects their errors.
//
//	h := testutil.NewTestHelper(t)
//	for i := 0; i < 4; i++ {
//	    h.Go(func() {
//	        if err := s.Append(m); err != nil {
//	            h.Errorf("append: %v", err)
//	        }
//	    })
//	}
//	h.Wait()
type TestHelper struct {
	t      testing.TB
	wg     sync.WaitGroup
	mu     sync.Mutex
	errors []error
}

// NewTestHelper creates a helper bound to t.
func NewTestHelper(t testing.TB) *TestHelper {
	return &TestHelper{t: t}
}

// Go runs fn on a new goroutine tracked by Wait.
func (h *TestHelper) Go(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}

// Errorf records a failure. Safe from any goroutine.
func (h *TestHelper) Errorf(format string, args ...any) {
	h.Error(fmt.Errorf(format, args...))
}

// Error records err if it is non-nil. Safe from any goroutine.
func (h *TestHelper) Error(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	h.errors = append(h.errors, err)
	h.mu.Unlock()
}

// Wait blocks until every goroutine started with Go returns, then fails
// the test if any error was recorded.
func (h *TestHelper) Wait() {
	h.t.Helper()
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, err := range h.errors {
		h.t.Errorf("goroutine error: %v", err)
	}
	if len(h.errors) > 0 {
		h.t.FailNow()
	}
}

// WaitTimeout is Wait that fails the test if the goroutines are still
// running after d.
func (h *TestHelper) WaitTimeout(d time.Duration) {
	h.t.Helper()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d):
		h.t.Fatalf("goroutines still running after %v", d)
	}
	h.Wait()
}
