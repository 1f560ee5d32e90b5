package driver

import (
	"sync"
)

// Future is a native unit of asynchronous work.
//
// Done is closed once the value is available. Value must not be called before
// Done is closed.
type Future[T any] interface {
	Done() <-chan struct{}
	Value() T
}

// Outcome is the value a fallible future yields.
type Outcome[T any] struct {
	Value T
	Err   error
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type resolved[T any] struct {
	v T
}

func (r resolved[T]) Done() <-chan struct{} { return closedCh }
func (r resolved[T]) Value() T              { return r.v }

// Resolved returns a future that is already complete with v.
func Resolved[T any](v T) Future[T] {
	return resolved[T]{v: v}
}

// Succeed returns a completed fallible future holding v.
func Succeed[T any](v T) Future[Outcome[T]] {
	return resolved[Outcome[T]]{v: Outcome[T]{Value: v}}
}

// Fail returns a completed fallible future holding err.
func Fail[T any](err error) Future[Outcome[T]] {
	return resolved[Outcome[T]]{v: Outcome[T]{Err: err}}
}

// Completer is a future resolved by host code.
type Completer[T any] struct {
	done chan struct{}
	val  T
	once sync.Once
}

// NewCompleter creates an unresolved future.
func NewCompleter[T any]() *Completer[T] {
	return &Completer[T]{done: make(chan struct{})}
}

// Complete resolves the future. Only the first call has an effect; it reports
// whether this call resolved it.
func (c *Completer[T]) Complete(v T) bool {
	ok := false
	c.once.Do(func() {
		c.val = v
		close(c.done)
		ok = true
	})
	return ok
}

func (c *Completer[T]) Done() <-chan struct{} {
	return c.done
}

func (c *Completer[T]) Value() T {
	return c.val
}
