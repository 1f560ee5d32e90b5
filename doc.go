// Package opcore runs native host operations on behalf of sandboxed guest code
// and delivers their results back into the guest's single-threaded continuation
// model.
//
// # Architecture Overview
//
//	opcore/
//	├── driver/      Operation driver: pending records, scheduling policies, native pool
//	├── registry/    Finalized op table: descriptors, op constructors, middleware
//	├── realm/       Execution contexts: ref/unref sets, rejections, ordered teardown
//	├── runtime/     Context set and host loop
//	├── wasmbind/    Host module exposing a realm to wazero guests
//	├── resource/    Engine slot table owned by each realm
//	├── errors/      Structured error types
//	└── cmd/opctl/   Synthetic workload runner and live monitor
//
// # Quick Start
//
//	table := registry.MustNew(registry.WithOp(
//	    registry.Async("read", driver.Lazy, startRead, nil),
//	))
//
//	rt, err := runtime.New(runtime.WithMainTable(table))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	main := rt.MainRealm()
//	main.SetResolver(resolvePromise)
//	main.Call(ctx, 0, promiseID, "config.yaml")
//
//	if err := rt.RunEventLoop(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Scheduling Policies
//
//	Eager     deliver inline when the future is already complete
//	Lazy      always deliver through the host loop
//	Deferred  always deliver through the host loop
//
// When several completions are ready at once, eager ones are delivered first,
// then deferred, then lazy; completion order breaks ties within a policy.
//
// # Errors
//
// Operation failures reach the guest as failed results produced by the op's
// error mapper. Failures to convert a result are mapping errors, kept apart
// from operation failures. Using a realm after teardown and submitting an
// invocation id that is still pending are lifecycle violations and panic.
package opcore
