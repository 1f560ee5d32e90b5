// Package registry builds the fixed op table a realm dispatches guest calls through.
//
// A Table is immutable once built: op ids are assigned in registration order and
// no op can be added or removed afterwards. Each Descriptor carries the op's
// scheduling policy and a dispatch function that creates the native future and
// submits it to the driver. The dispatch function captures the op's static
// result type, so the type-erased result is only recovered at completion time.
//
//	table, err := registry.New(
//	    registry.WithMiddleware(registry.PanicRecoveryMiddleware()),
//	    registry.WithOp(registry.Async("op_sleep", driver.Lazy, sleep, nil)),
//	    registry.WithOp(registry.Sync("op_now", now, nil)),
//	)
//
// Middleware wraps every dispatch function (first added wraps outermost) and is
// the per-call instrumentation hook.
package registry
