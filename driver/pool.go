package driver

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wippyai/opcore/errors"
)

// DefaultPoolSize bounds concurrent native work when no size is given.
const DefaultPoolSize = 64

// Pool runs native work on goroutines, bounding how many run at once.
// Spawning never blocks the caller; queued work waits for a free slot.
type Pool struct {
	sem      *semaphore.Weighted
	logger   *zap.Logger
	size     int64
	running  atomic.Int64
	spawned  atomic.Int64
	finished atomic.Int64
}

// NewPool creates a pool that runs at most size functions concurrently.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
		logger: Logger(),
	}
}

// SetLogger replaces the pool logger.
func (p *Pool) SetLogger(l *zap.Logger) {
	if l != nil {
		p.logger = l
	}
}

// Size returns the concurrency bound.
func (p *Pool) Size() int {
	return int(p.size)
}

// Running returns how many functions currently hold a slot.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Queued returns how many spawned functions have not finished.
func (p *Pool) Queued() int {
	return int(p.spawned.Load() - p.finished.Load())
}

// Spawn runs fn on the pool and returns a fallible future for its result.
// If ctx ends before a slot frees up, fn is not run and the outcome holds ctx.Err().
// A panic in fn is reported as the outcome error.
func Spawn[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) Future[Outcome[T]] {
	c := NewCompleter[Outcome[T]]()
	p.spawned.Add(1)
	go func() {
		defer p.finished.Add(1)
		if err := p.sem.Acquire(ctx, 1); err != nil {
			c.Complete(Outcome[T]{Err: err})
			return
		}
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.sem.Release(1)
		}()
		c.Complete(runGuarded(p.logger, ctx, fn))
	}()
	return c
}

// SpawnValue runs an infallible fn on the pool. A panic in fn is logged and the
// future resolves to the zero value of T.
func SpawnValue[T any](p *Pool, fn func() T) Future[T] {
	c := NewCompleter[T]()
	p.spawned.Add(1)
	go func() {
		defer p.finished.Add(1)
		_ = p.sem.Acquire(context.Background(), 1)
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.sem.Release(1)
		}()
		out := runGuarded(p.logger, context.Background(), func(context.Context) (T, error) {
			return fn(), nil
		})
		c.Complete(out.Value)
	}()
	return c
}

func runGuarded[T any](l *zap.Logger, ctx context.Context, fn func(context.Context) (T, error)) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("native operation panicked", zap.Any("panic", r), zap.Stack("stack"))
			out = Outcome[T]{Err: errors.Panic(errors.PhasePoll, "native operation", r)}
		}
	}()
	v, err := fn(ctx)
	return Outcome[T]{Value: v, Err: err}
}
