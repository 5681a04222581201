package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	n := New()

	ch := n.Subscribe()
	require.NotNil(t, ch)

	n.mu.RLock()
	assert.Len(t, n.listeners, 1)
	n.mu.RUnlock()

	n.Unsubscribe(ch)

	n.mu.RLock()
	assert.Len(t, n.listeners, 0)
	n.mu.RUnlock()

	// Channel is closed after unsubscribe.
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcastReachesAllListeners(t *testing.T) {
	n := New()

	a := n.Subscribe()
	b := n.Subscribe()
	defer n.Unsubscribe(a)
	defer n.Unsubscribe(b)

	n.Broadcast()

	for _, ch := range []chan struct{}{a, b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("listener did not receive ping")
		}
	}
}

func TestBroadcastDoesNotBlockOnFullChannel(t *testing.T) {
	n := New()

	ch := n.Subscribe()
	defer n.Unsubscribe(ch)

	// Fill the buffered channel, then broadcast twice more.
	n.Broadcast()
	n.Broadcast()
	n.Broadcast()

	// Exactly one ping is buffered.
	<-ch
	select {
	case <-ch:
		t.Fatal("expected a single buffered ping")
	default:
	}
}
