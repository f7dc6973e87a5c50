package loop

import (
	"fmt"
)

// Inline runs work and done right away on the calling goroutine. Handy for
// tools and tests that do not need a real loop.
type Inline struct{}

func (Inline) Go(work func() error, done func(err error)) {
	done(work())
}

type pending struct {
	work func() error
	done func(err error)
}

// Manual keeps every operation pending until the owner decides to resolve it,
// which makes the order in which adapter responses arrive controllable.
type Manual struct {
	pending []pending
}

func (m *Manual) Go(work func() error, done func(err error)) {
	m.pending = append(m.pending, pending{work: work, done: done})
}

func (m *Manual) Pending() int {
	return len(m.pending)
}

// Step resolves the i-th pending operation (0 is the oldest).
func (m *Manual) Step(i int) error {
	if i < 0 || i >= len(m.pending) {
		return fmt.Errorf("no pending operation %d, there are %d", i, len(m.pending))
	}
	p := m.pending[i]
	m.pending = append(m.pending[:i], m.pending[i+1:]...)
	p.done(p.work())
	return nil
}

// Drain resolves pending operations in order, including the ones scheduled
// while draining.
func (m *Manual) Drain() {
	for len(m.pending) > 0 {
		m.Step(0)
	}
}
