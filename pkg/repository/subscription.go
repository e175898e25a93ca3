package repository

import (
	"context"
	"sync"
)

// Subscription is a live insert channel. Done is closed when the channel ends, either by
// Unsubscribe or by a channel error reported through Err.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// NewSubscription creates a Subscription whose Unsubscribe calls cancel. The owner must
// call Close exactly when its delivery loop has exited.
func NewSubscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Close marks the subscription finished. A nil err means a clean shutdown.
func (x *Subscription) Close(err error) {
	x.once.Do(func() {
		x.mu.Lock()
		x.err = err
		x.mu.Unlock()
		close(x.done)
	})
}

// Unsubscribe releases the channel and waits for the delivery loop to exit. It must not
// be called from inside the subscription's own handler.
func (x *Subscription) Unsubscribe() {
	x.cancel()
	<-x.done
}

func (x *Subscription) Done() <-chan struct{} {
	return x.done
}

// Err returns the channel error that ended the subscription, or nil.
func (x *Subscription) Err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}
