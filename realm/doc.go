// Package realm manages guest execution contexts.
//
// A Realm is one guest global scope and its bookkeeping: the invocations it has
// pending in the driver, which of those are unreferenced, its queue of unhandled
// promise rejections, the op table it dispatches through, the callbacks the guest
// binding registered on it, and its engine slots.
//
// # Lifecycle
//
//	Active -> Destroying -> Destroyed
//
// A realm starts with two internal holders: the context set and its own handle.
// External code takes more with Acquire. When the last external Ref is released
// the realm tears itself down, unless it is the main realm, which lives until
// Close.
//
// Teardown runs in a fixed order:
//
//  1. callbacks (resolver, rejection reporter, named callbacks)
//  2. the op table
//  3. engine slots
//  4. the realm identity (pending invocations become orphans)
//
// Callbacks go first because they are the usual way a realm ends up referenced
// from its own state.
//
// Every operation on a realm that is no longer Active panics with a lifecycle
// *errors.Error.
package realm
