package buffer

import (
	"sync"

	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
)

// initialSlots is the slot count allocated before the first grow.
const initialSlots = 64

// RingBuffer is a thread-safe circular buffer of metrics. Storage grows on
// demand up to capacity; once full, the oldest entry is overwritten. It
// backs stores that do not need a file.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []metric.Metric
	head     int // Next write position
	tail     int // Oldest data position
	count    int // Current number of elements
	capacity int
	closed   bool
}

// New creates a new RingBuffer holding at most capacity metrics.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &RingBuffer{
		data:     make([]metric.Metric, min(capacity, initialSlots)),
		capacity: capacity,
	}
}

func (rb *RingBuffer) pushUnlocked(m metric.Metric) {
	if rb.count == len(rb.data) {
		if len(rb.data) < rb.capacity {
			rb.grow()
		} else {
			rb.data[rb.tail] = metric.Metric{}
			rb.tail = (rb.tail + 1) % len(rb.data)
			rb.count--
		}
	}

	rb.data[rb.head] = m
	rb.head = (rb.head + 1) % len(rb.data)
	rb.count++
}

// grow doubles the slot count, bounded by capacity, and lays the entries
// out oldest first.
func (rb *RingBuffer) grow() {
	data := make([]metric.Metric, min(2*len(rb.data), rb.capacity))
	for i := 0; i < rb.count; i++ {
		data[i] = rb.data[(rb.tail+i)%len(rb.data)]
	}
	rb.data = data
	rb.tail = 0
	rb.head = rb.count % len(data)
}

// Tail returns the newest n metrics ordered oldest to newest.
// n <= 0 returns everything.
func (rb *RingBuffer) Tail(n int) []metric.Metric {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return nil
	}

	count := rb.count
	if n > 0 && n < count {
		count = n
	}

	result := make([]metric.Metric, count)
	start := rb.tail + rb.count - count
	for i := 0; i < count; i++ {
		result[i] = rb.data[(start+i)%len(rb.data)]
	}
	return result
}

// Len returns the current number of metrics in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}

func (rb *RingBuffer) clearUnlocked() {
	rb.data = make([]metric.Metric, min(rb.capacity, initialSlots))
	rb.head = 0
	rb.tail = 0
	rb.count = 0
}

// =============================================================================
// Store backend
// =============================================================================

// Append adds m, overwriting the oldest entry when full.
func (rb *RingBuffer) Append(m metric.Metric) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return errors.ErrStoreClosed
	}
	rb.pushUnlocked(m)
	return nil
}

// ReadAll returns every metric, oldest first.
func (rb *RingBuffer) ReadAll() ([]metric.Metric, error) {
	rb.mu.RLock()
	closed := rb.closed
	rb.mu.RUnlock()

	if closed {
		return nil, errors.ErrStoreClosed
	}
	return rb.Tail(0), nil
}

// Rewrite replaces the contents with entries in one step. Readers see
// either the old or the new contents.
func (rb *RingBuffer) Rewrite(entries []metric.Metric) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return errors.ErrStoreClosed
	}

	rb.clearUnlocked()
	for _, m := range entries {
		rb.pushUnlocked(m)
	}
	return nil
}

// Remove clears the buffer and rejects further use.
func (rb *RingBuffer) Remove() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.clearUnlocked()
	rb.closed = true
	return nil
}
