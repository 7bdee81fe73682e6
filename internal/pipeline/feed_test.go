package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedDrainOrdered(t *testing.T) {
	f := NewFeed()
	f.Publish("one")
	f.Publishf("two %d", 2)
	f.Publish("three")

	assert.Equal(t, []string{"one", "two 2", "three"}, f.Drain())
	assert.Nil(t, f.Drain(), "second drain with nothing new returns nil")

	f.Publish("four")
	assert.Equal(t, []string{"four"}, f.Drain())
}

func TestFeedTail(t *testing.T) {
	f := NewFeed()
	for i := 0; i < 10; i++ {
		f.Publishf("line %d", i)
	}

	assert.Equal(t, []string{"line 8", "line 9"}, f.Tail(2))
	assert.Len(t, f.Tail(50), 10)
	assert.Nil(t, f.Tail(0))

	// Tail does not consume: Drain still sees everything.
	assert.Len(t, f.Drain(), 10)
	// But Tail still sees history after a drain.
	assert.Equal(t, []string{"line 9"}, f.Tail(1))
}

func TestFeedClose(t *testing.T) {
	f := NewFeed()
	f.Publish("before")
	assert.False(t, f.Closed())

	f.Close()
	assert.True(t, f.Closed())

	f.Publish("after")
	assert.Equal(t, []string{"before"}, f.Drain(), "publish after close is dropped")
}

func TestFeedFinalDrain(t *testing.T) {
	f := NewFeed()
	var consumed []string
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			f.Publishf("line %d", i)
		}
		f.Close()
	}()

	// Consumer polls until the producer closes, then drains one final time.
	for !f.Closed() {
		consumed = append(consumed, f.Drain()...)
	}
	<-done
	consumed = append(consumed, f.Drain()...)

	assert.Len(t, consumed, 100)
	for i, line := range consumed {
		assert.Equal(t, fmt.Sprintf("line %d", i), line)
	}
}
