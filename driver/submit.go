package driver

import (
	"github.com/wippyai/opcore/errors"
)

// Submit registers an infallible future.
//
// With the Eager policy an already complete future is mapped and returned inline
// with true, and nothing is registered. Otherwise the future is registered and
// Submit returns false; the result surfaces later through PollReady.
//
// mapFn converts the native value for the guest binding; nil passes it through.
// A mapFn failure is delivered as Result.MapErr.
func Submit[T any](d *Driver, sub Submission, fut Future[T], mapFn func(T) (any, error)) (Result, bool) {
	return d.submit(sub, fut.Done(), func() Result {
		return mapValue(sub, fut.Value(), mapFn)
	})
}

// SubmitFallible registers a future that may fail. Contract as Submit.
//
// Operation failures go through errFn and are delivered with Result.Failed set;
// they never fail the driver. A nil errFn wraps the failure in an operation
// *errors.Error.
func SubmitFallible[T any](d *Driver, sub Submission, fut Future[Outcome[T]], mapFn func(T) (any, error), errFn func(error) any) (Result, bool) {
	return d.submit(sub, fut.Done(), func() Result {
		out := fut.Value()
		if out.Err != nil {
			return mapFailure(sub, out.Err, errFn)
		}
		return mapValue(sub, out.Value, mapFn)
	})
}

func mapValue[T any](sub Submission, v T, mapFn func(T) (any, error)) (res Result) {
	if mapFn == nil {
		return Result{Value: v}
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result{MapErr: errors.Mapping(uint32(sub.Op), uint32(sub.ID),
				errors.Panic(errors.PhaseMap, "result mapper", r))}
		}
	}()
	mapped, err := mapFn(v)
	if err != nil {
		return Result{MapErr: errors.Mapping(uint32(sub.Op), uint32(sub.ID), err)}
	}
	return Result{Value: mapped}
}

func mapFailure(sub Submission, opErr error, errFn func(error) any) (res Result) {
	if errFn == nil {
		return Result{Value: errors.Operation(uint32(sub.Op), uint32(sub.ID), opErr), Failed: true}
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result{MapErr: errors.Mapping(uint32(sub.Op), uint32(sub.ID),
				errors.Panic(errors.PhaseMap, "error mapper", r))}
		}
	}()
	return Result{Value: errFn(opErr), Failed: true}
}
