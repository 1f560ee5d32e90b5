// Package runtime is the host loop. It owns the operation driver, the native
// pool, and the set of live realms, and routes each completion to the realm
// that submitted it.
//
// # Quick Start
//
//	rt, err := runtime.New(runtime.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	main := rt.MainRealm()
//	main.SetResolver(func(c driver.Completion) {
//	    fmt.Println(c.ID, c.Result.Value)
//	})
//	main.Call(ctx, readOp, 1, "path")
//
//	if err := rt.RunEventLoop(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Realms
//
// The main realm is created by New and lives until Close. Other realms come
// from NewRealm, which hands back the only external holder. Releasing it tears
// the realm down; completions still in flight for it are discarded when they
// arrive.
//
// # Loop
//
// Each PollOnce drains unhandled rejections, waits for one completion, then
// delivers everything else already ready without waiting again. RunEventLoop
// repeats that until no realm has a referenced pending invocation.
//
// # Thread Safety
//
// Realm creation, lookup and Stats are safe for concurrent use. The loop
// methods are meant to be driven by a single goroutine.
package runtime
