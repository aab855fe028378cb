package chat

import (
	"context"
	"time"
)

// Executor runs reactions one at a time on the session's event loop.
// Post must be safe to call from any goroutine and must never be called from
// the loop itself when the implementation blocks.
type Executor interface {
	Post(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

// Post implements Executor.
func (f ExecutorFunc) Post(fn func()) { f(fn) }

// Loop is a channel-backed Executor for front ends without their own event
// loop.
type Loop struct {
	queue chan func()
	done  chan struct{}
}

// NewLoop creates a loop whose queue holds size pending reactions.
func NewLoop(size int) *Loop {
	if size < 1 {
		size = 1
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Post implements Executor. Reactions posted after Run returned are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// Run executes posted reactions in order until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			fn()
		}
	}
}

// Clock schedules callbacks. Scheduled callbacks cannot be cancelled.
type Clock interface {
	AfterFunc(d time.Duration, fn func())
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// RealClock is the wall-clock Clock.
var RealClock Clock = realClock{}
