package dgram

import (
	"context"
	"sync"
)

// Future is a completion token for an asynchronous channel operation. It is
// completed once, on the channel's loop goroutine, and may be awaited from
// any goroutine.
type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func failedFuture(err error) *Future {
	f := NewFuture()
	f.setFailure(err)
	return f
}

// Done is closed once the operation completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the failure cause, or nil while pending or after success.
func (f *Future) Err() error {
	if !f.IsDone() {
		return nil
	}
	return f.err
}

// Await blocks until the operation completes or ctx is done.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) setSuccess() {
	f.once.Do(func() { close(f.done) })
}

// setFailure completes f with err and returns f.
func (f *Future) setFailure(err error) *Future {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
	return f
}
