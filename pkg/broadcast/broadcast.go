// Package broadcast provides fan-out channels used to orchestrate graceful
// shutdown of the pipeline's long-running loops.
package broadcast

import (
	"errors"
	"sync"
	"time"
)

// BroadcastChannel fans a published value out to every subscriber.
type BroadcastChannel[T any] struct {
	mu        sync.RWMutex
	listeners []chan T
}

func NewBroadcastChannel[T any]() *BroadcastChannel[T] {
	return &BroadcastChannel[T]{
		listeners: make([]chan T, 0),
	}
}

func (b *BroadcastChannel[T]) Subscribe() chan T {
	ch := make(chan T)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners = append(b.listeners, ch)
	return ch
}

func (b *BroadcastChannel[T]) Publish(value T) {
	go func() {
		b.mu.RLock()
		defer b.mu.RUnlock()

		for _, listener := range b.listeners {
			listener <- value
		}
	}()
}

// ErrorWaitChannel signals shutdown to its subscribers and collects an error
// from each of them, bounded by a timeout. Subscribers receive a reply
// channel and must send their shutdown result on it.
type ErrorWaitChannel struct {
	bc *BroadcastChannel[chan error]
}

func NewErrorWaitChannel() *ErrorWaitChannel {
	return &ErrorWaitChannel{
		bc: NewBroadcastChannel[chan error](),
	}
}

func (e *ErrorWaitChannel) Subscribe() chan chan error {
	return e.bc.Subscribe()
}

// Await publishes the shutdown signal and waits for every subscriber to
// respond, up to the timeout. Responses received before the deadline are
// joined into a single error; a timeout is not treated as a failure.
func (e *ErrorWaitChannel) Await(timeout time.Duration) error {
	replyCh := make(chan error)

	e.bc.mu.RLock()
	defer e.bc.mu.RUnlock()

	if len(e.bc.listeners) == 0 {
		return nil
	}

	go func() {
		for _, listener := range e.bc.listeners {
			listener <- replyCh
		}
	}()

	timer := time.After(timeout)
	errs := make([]error, 0, len(e.bc.listeners))
	received := 0
	for {
		select {
		case err := <-replyCh:
			errs = append(errs, err)
			received++
			if received == len(e.bc.listeners) {
				return errors.Join(errs...)
			}
		case <-timer:
			return errors.Join(errs...)
		}
	}
}
