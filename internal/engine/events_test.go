package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	a, cancelA := b.Subscribe()
	defer cancelA()
	c, cancelC := b.Subscribe()
	defer cancelC()

	b.Publish()
	for _, ch := range []<-chan struct{}{a, c} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the signal")
		}
	}
}

func TestBroadcasterCoalescesSignals(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	// Publishing repeatedly without draining must not block.
	for i := 0; i < 10; i++ {
		b.Publish()
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("signals should coalesce into at most one pending")
	default:
	}
}

func TestBroadcasterCancelIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open, "cancel must close the channel")
	b.Publish() // must not panic with no subscribers
}
