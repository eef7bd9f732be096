package testutil

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// recorder captures failures without failing the enclosing test.
type recorder struct {
	testing.TB
	errs   int
	failed bool
}

func (r *recorder) Helper() {}
func (r *recorder) Errorf(string, ...any) { r.errs++ }
func (r *recorder) FailNow() { r.failed = true }
func (r *recorder) Fatalf(string, ...any) { r.failed = true }

func TestHelperCollectsErrors(t *testing.T) {
	rec := &recorder{}
	h := NewTestHelper(rec)

	for i := 0; i < 5; i++ {
		i := i // per-iteration copy (pre-Go 1.22 loop semantics)
		h.Go(func() {
			if i%2 == 0 {
				h.Errorf("worker %d failed", i)
			}
			h.Error(nil)
		})
	}
	h.Wait()

	if rec.errs != 3 {
		t.Errorf("expected 3 reported errors, got %d", rec.errs)
	}
	if !rec.failed {
		t.Error("expected FailNow")
	}
}

func TestHelperPasses(t *testing.T) {
	h := NewTestHelper(t)

	var n atomic.Int64
	for i := 0; i < 8; i++ {
		h.Go(func() { n.Add(1) })
	}
	h.WaitTimeout(time.Second)

	if n.Load() != 8 {
		t.Errorf("expected 8 runs, got %d", n.Load())
	}
}

func TestHelperError(t *testing.T) {
	rec := &recorder{}
	h := NewTestHelper(rec)
	h.Go(func() { h.Error(errors.New("boom")) })
	h.Wait()

	if rec.errs != 1 {
		t.Errorf("expected 1 reported error, got %d", rec.errs)
	}
}
