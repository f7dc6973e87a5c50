// Package loop provides the single logical thread models and collections live on.
//
// Adapter calls are the only blocking work: a Scheduler runs them off the loop
// and brings their completion back to it, so event callbacks never run in
// parallel and need no locks.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrStopped = errors.New("loop stopped")

type Scheduler interface {
	// Go runs work off the loop and then done on the loop with work's error.
	Go(work func() error, done func(err error))
}

type task struct {
	run func()
	// stopped replaces run when the loop stops before getting to it
	stopped func()
}

type Loop struct {
	mutex    sync.Mutex
	queue    []task
	late     sync.Mutex // serializes stopped callbacks once the loop is gone
	wake     chan struct{}
	closed   chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	running  bool
}

func New() *Loop {
	return &Loop{
		wake:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Run executes queued functions one at a time until Stop is called or ctx is
// done. Pending functions are discarded on exit, except completions queued by
// Go which receive ErrStopped instead.
func (l *Loop) Run(ctx context.Context) error {
	l.mutex.Lock()
	if l.running {
		l.mutex.Unlock()
		return fmt.Errorf("loop already running")
	}
	l.running = true
	l.mutex.Unlock()

	defer close(l.finished)
	defer l.flush()

	for {
		for {
			f := l.next()
			if f == nil {
				break
			}
			f()
		}

		select {
		case <-l.wake:
		case <-l.closed:
			return nil
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		}
	}
}

func (l *Loop) next() func() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	select {
	case <-l.closed:
		return nil
	default:
	}

	if len(l.queue) == 0 {
		return nil
	}
	t := l.queue[0]
	l.queue[0] = task{}
	l.queue = l.queue[1:]
	return t.run
}

// flush drops whatever is still queued, telling Go completions about it.
func (l *Loop) flush() {
	l.mutex.Lock()
	pending := l.queue
	l.queue = nil
	l.mutex.Unlock()

	l.late.Lock()
	defer l.late.Unlock()
	for _, t := range pending {
		if t.stopped != nil {
			t.stopped()
		}
	}
}

// Post enqueues f and returns immediately, it never blocks so it is safe to
// call from the loop itself.
func (l *Loop) Post(f func()) error {
	return l.enqueue(task{run: f})
}

func (l *Loop) enqueue(t task) error {
	l.mutex.Lock()
	select {
	case <-l.closed:
		l.mutex.Unlock()
		return ErrStopped
	default:
	}
	l.queue = append(l.queue, t)
	l.mutex.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs f on the loop and waits for it. A panic inside f is re-raised in
// the caller goroutine. Calling Do from the loop deadlocks.
func (l *Loop) Do(f func()) error {
	done := make(chan any, 1)
	err := l.Post(func() {
		defer func() {
			done <- recover()
		}()
		f()
	})
	if err != nil {
		return err
	}

	select {
	case p := <-done:
		if p != nil {
			panic(p)
		}
		return nil
	case <-l.finished:
		return ErrStopped
	}
}

// Go runs work in its own goroutine and done on the loop. If the loop stops
// first, done still runs exactly once with ErrStopped, after the loop has
// finished and never in parallel with another such call.
func (l *Loop) Go(work func() error, done func(err error)) {
	go func() {
		err := work()
		t := task{
			run:     func() { done(err) },
			stopped: func() { done(ErrStopped) },
		}
		if l.enqueue(t) != nil {
			l.abandon(t.stopped)
		}
	}()
}

func (l *Loop) abandon(stopped func()) {
	l.mutex.Lock()
	running := l.running
	l.mutex.Unlock()
	if running {
		<-l.finished
	}

	l.late.Lock()
	defer l.late.Unlock()
	stopped()
}

func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.closed)
	})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.finished
}
