// Package wasmbind exposes a realm to WebAssembly guests running on wazero.
//
// Bind instantiates a host module, named after the realm by default, with these
// exports:
//
//	op_call(op i32, promise i32, arg i64) -> i32
//	op_ref(promise i32)
//	op_unref(promise i32)
//	op_reject(promise i32, reason i64)
//
// op_call returns one of the Status values. Inline results go straight to the
// realm resolver; pending ones arrive later through the host loop.
//
// Attach connects a guest instance that exports
//
//	op_resolve(promise i32, status i32, value i64)
//
// as the realm resolver, so every result reaches the guest the same way.
//
// The host module is kept in a realm engine slot and closed when the realm is
// torn down.
package wasmbind
