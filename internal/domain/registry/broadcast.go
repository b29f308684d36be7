package registry

import (
	"context"
	"sync"
)

// Broadcast is a conflated latest-value stream. Each subscriber owns a
// one-slot channel; publishing replaces whatever the subscriber has not read
// yet, so a slow reader skips intermediate values but always ends on the
// latest one.
type Broadcast[T any] struct {
	mu     sync.Mutex
	value  T
	subs   map[chan T]struct{}
	closed bool
	done   chan struct{}
	// watchers counts live Subscribe goroutines.
	watchers sync.WaitGroup
}

// NewBroadcast creates a stream holding initial.
func NewBroadcast[T any](initial T) *Broadcast[T] {
	return &Broadcast[T]{
		value: initial,
		subs:  make(map[chan T]struct{}),
		done:  make(chan struct{}),
	}
}

// Value returns the latest published value.
func (b *Broadcast[T]) Value() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Publish replaces the latest value and offers it to every subscriber.
func (b *Broadcast[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.value = v
	for ch := range b.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel that first yields the current value and then
// every later value. The channel is closed when ctx is done or the stream is
// closed.
func (b *Broadcast[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	ch <- b.value
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	b.watchers.Add(1)
	go func() {
		defer b.watchers.Done()
		select {
		case <-ctx.Done():
			b.unsubscribe(ch)
		case <-b.done:
		}
	}()

	return ch
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcast[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Broadcast[T]) unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// offer replaces the pending value of ch. Callers hold b.mu, so ch has no
// other writer.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
