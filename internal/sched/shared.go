package sched

import "fmt"

// Shared guards a value used by several tasks with the immediate priority
// ceiling protocol. The ceiling is the highest priority among the declared
// users; while one of them holds the lock no other user can run, so a
// read-modify-write is atomic with respect to all of them.
type Shared[T any] struct {
	core    *Core
	name    string
	ceiling int
	locked  bool
	value   T
}

// NewShared wraps value for the given users.
func NewShared[T any](c *Core, name string, value T, users ...*Task) *Shared[T] {
	ceiling := MinPriority
	for _, u := range users {
		if u.Priority > ceiling {
			ceiling = u.Priority
		}
	}
	return &Shared[T]{core: c, name: name, ceiling: ceiling, value: value}
}

// Name returns the resource name.
func (s *Shared[T]) Name() string { return s.name }

// Ceiling returns the priority the core runs at while the lock is held.
func (s *Shared[T]) Ceiling() int { return s.ceiling }

// Locked reports whether a user currently holds the lock.
func (s *Shared[T]) Locked() bool { return s.locked }

// Lock runs fn with exclusive access to the value. The caller must run at or
// below the ceiling and must not already hold the lock.
func (s *Shared[T]) Lock(fn func(v *T)) error {
	c := s.core
	if p := c.Priority(); p > s.ceiling {
		return fmt.Errorf("lock %s at priority %d above ceiling %d: %w", s.name, p, s.ceiling, ErrCeiling)
	}
	if s.locked {
		return fmt.Errorf("lock %s: %w", s.name, ErrLocked)
	}

	c.Step()
	prev := c.raise(s.ceiling)
	s.locked = true
	c.emit(StatusLock, c.Current(), 0)
	defer func() {
		s.locked = false
		c.emit(StatusUnlock, c.Current(), 0)
		c.restore(prev)
	}()

	fn(&s.value)
	return nil
}

// Override runs fn on the value without taking the lock. Only code running
// strictly above the ceiling may do so: nothing it can preempt mid-update is
// able to run until it returns.
func (s *Shared[T]) Override(fn func(v *T)) error {
	if p := s.core.Priority(); p <= s.ceiling {
		return fmt.Errorf("override %s at priority %d within ceiling %d: %w", s.name, p, s.ceiling, ErrCeiling)
	}
	fn(&s.value)
	return nil
}
