package pipeline

import (
	"fmt"
	"sync"
)

// Feed is an ordered, unbounded progress-line queue between the pipeline
// worker and a presentation adapter. The pipeline is the only producer and
// one adapter is the only consumer. Delivery is best-effort: lines are
// buffered until drained, and a consumer must drain once more after the
// worker finishes to pick up trailing lines.
type Feed struct {
	mu     sync.Mutex
	lines  []string
	next   int
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{}
}

// Publish appends one line. Publishing to a closed feed is a no-op.
func (f *Feed) Publish(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.lines = append(f.lines, line)
}

// Publishf appends one formatted line.
func (f *Feed) Publishf(format string, args ...any) {
	f.Publish(fmt.Sprintf(format, args...))
}

// Drain returns all lines published since the previous Drain, in order.
func (f *Feed) Drain() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.lines) {
		return nil
	}
	out := make([]string, len(f.lines)-f.next)
	copy(out, f.lines[f.next:])
	f.next = len(f.lines)
	return out
}

// Tail returns up to n of the most recently published lines regardless of
// drain position. Used by adapters that render a bounded trailing window.
func (f *Feed) Tail(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 || len(f.lines) == 0 {
		return nil
	}
	start := len(f.lines) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, len(f.lines)-start)
	copy(out, f.lines[start:])
	return out
}

// Close marks the feed finished. Lines already published remain drainable.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// Closed reports whether the producer has finished.
func (f *Feed) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
