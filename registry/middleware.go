package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/errors"
)

// PanicRecoveryMiddleware converts a panic while starting an op into an inline
// failed result instead of crashing the host loop.
func PanicRecoveryMiddleware() Middleware {
	return func(op Info, next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, d *driver.Driver, sub driver.Submission, args any) (res driver.Result, inline bool) {
			defer func() {
				if r := recover(); r != nil {
					// duplicate invocation ids are invariant violations, not op failures
					if e, ok := r.(*errors.Error); ok && e.Kind == errors.KindDuplicateInvocation {
						panic(r)
					}
					res = driver.Result{Value: errors.Panic(errors.PhaseSubmit, op.Name, r), Failed: true}
					inline = true
				}
			}()
			return next(ctx, d, sub, args)
		}
	}
}

// LoggingMiddleware logs every dispatch at debug level.
func LoggingMiddleware(l *zap.Logger) Middleware {
	if l == nil {
		l = zap.NewNop()
	}
	return func(op Info, next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, d *driver.Driver, sub driver.Submission, args any) (driver.Result, bool) {
			start := time.Now()
			res, inline := next(ctx, d, sub, args)
			l.Debug("op dispatched",
				zap.String("op", op.Name),
				zap.Uint32("invocation", uint32(sub.ID)),
				zap.Stringer("policy", sub.Policy),
				zap.Bool("inline", inline),
				zap.Duration("elapsed", time.Since(start)))
			return res, inline
		}
	}
}
