package registry

import (
	"context"

	"github.com/wippyai/opcore/driver"
)

// Op is an op registration consumed by WithOp.
type Op struct {
	dispatch DispatchFunc
	name     string
	policy   driver.Policy
}

// Name returns the op name.
func (o Op) Name() string { return o.name }

// Policy returns the op scheduling policy.
func (o Op) Policy() driver.Policy { return o.policy }

// Async registers an op whose native work cannot fail.
// start creates the future for one call; mapFn converts its value (nil passes through).
func Async[T any](name string, policy driver.Policy, start func(ctx context.Context, args any) driver.Future[T], mapFn func(T) (any, error)) Op {
	return Op{
		name:   name,
		policy: policy,
		dispatch: func(ctx context.Context, d *driver.Driver, sub driver.Submission, args any) (driver.Result, bool) {
			return driver.Submit(d, sub, start(ctx, args), mapFn)
		},
	}
}

// AsyncFallible registers an op whose native work may fail.
// errFn converts failures for the guest (nil wraps them in an operation error).
func AsyncFallible[T any](name string, policy driver.Policy, start func(ctx context.Context, args any) driver.Future[driver.Outcome[T]], mapFn func(T) (any, error), errFn func(error) any) Op {
	return Op{
		name:   name,
		policy: policy,
		dispatch: func(ctx context.Context, d *driver.Driver, sub driver.Submission, args any) (driver.Result, bool) {
			return driver.SubmitFallible(d, sub, start(ctx, args), mapFn, errFn)
		},
	}
}

// Sync registers an op that completes during the call. It runs with the Eager
// policy and is always delivered inline.
func Sync[T any](name string, fn func(ctx context.Context, args any) (T, error), mapFn func(T) (any, error), errFn func(error) any) Op {
	return Op{
		name:   name,
		policy: driver.Eager,
		dispatch: func(ctx context.Context, d *driver.Driver, sub driver.Submission, args any) (driver.Result, bool) {
			v, err := fn(ctx, args)
			fut := driver.Succeed(v)
			if err != nil {
				fut = driver.Fail[T](err)
			}
			return driver.SubmitFallible(d, sub, fut, mapFn, errFn)
		},
	}
}
