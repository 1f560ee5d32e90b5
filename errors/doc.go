// Package errors provides structured error types for the opcore library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the operation and invocation it concerns, a realm name when
// one is involved, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMap, errors.KindMapping).
//		Op(7).
//		Invocation(3).
//		Detail("result is not a string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Mapping(7, 3, cause)
//	err := errors.Lifecycle(errors.PhaseDeliver, "main", "realm destroyed")
//
// Lifecycle errors signal a violated ownership invariant. The core panics with them
// rather than returning them.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
