package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/catalogd/internal/testutil"
)

func TestBroadcast_SubscribeGetsCurrentValue(t *testing.T) {
	t.Parallel()

	b := NewBroadcast(1)
	b.Publish(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)
	assert.Equal(t, 2, testutil.Receive(t, ch))
	testutil.NoReceive(t, ch, 20*time.Millisecond)
}

func TestBroadcast_Conflates(t *testing.T) {
	t.Parallel()

	b := NewBroadcast(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)
	for i := 1; i <= 100; i++ {
		b.Publish(i)
	}

	assert.Equal(t, 100, testutil.Receive(t, ch))
	testutil.NoReceive(t, ch, 20*time.Millisecond)
}

func TestBroadcast_MonotonicUnderConcurrentPublish(t *testing.T) {
	t.Parallel()

	b := NewBroadcast(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)

	const last = 2000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= last; i++ {
			b.Publish(i)
		}
	}()

	prev := -1
	for prev != last {
		v := testutil.Receive(t, ch)
		assert.Greater(t, v, prev, "values never go backwards")
		prev = v
	}
	wg.Wait()
}

func TestBroadcast_CancelClosesChannel(t *testing.T) {
	t.Parallel()

	b := NewBroadcast("a")
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx)
	cancel()

	testutil.Closed(t, ch)
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	b.Publish("b")
	assert.Equal(t, "b", b.Value())
}

func TestBroadcast_Close(t *testing.T) {
	t.Parallel()

	b := NewBroadcast(1)
	ch := b.Subscribe(context.Background())
	b.Close()
	testutil.Closed(t, ch)

	testutil.Closed(t, b.Subscribe(context.Background()))
	b.Publish(5)
	assert.Equal(t, 1, b.Value())
}

func TestBroadcast_CloseReleasesSubscriptions(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBroadcast(1)
	for range 3 {
		b.Subscribe(ctx)
	}
	b.Close()

	released := make(chan struct{})
	go func() {
		b.watchers.Wait()
		close(released)
	}()
	testutil.Closed(t, released)
}
