package reporter

import (
	"sync"

	"github.com/torosent/crankprom/internal/sample"
)

// Buffer is an unbounded FIFO of samples awaiting publication. Append and Drain may be
// called from different goroutines.
type Buffer struct {
	mu      sync.Mutex
	samples []sample.AggregatedSample
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append queues s. It never blocks on a drain in progress beyond the swap itself.
func (b *Buffer) Append(s sample.AggregatedSample) {
	b.mu.Lock()
	b.samples = append(b.samples, s)
	b.mu.Unlock()
}

// Drain takes every queued sample in arrival order and leaves the buffer empty.
// Samples appended after the swap belong to the next drain.
func (b *Buffer) Drain() []sample.AggregatedSample {
	b.mu.Lock()
	out := b.samples
	b.samples = nil
	b.mu.Unlock()
	return out
}

// Len reports the number of queued samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}
