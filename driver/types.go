package driver

import (
	"github.com/google/uuid"
)

// OpID identifies a kind of native operation. Assigned once when the op table is
// finalized; many invocations share one OpID.
type OpID uint32

// InvocationID identifies one guest call (the guest's promise id).
type InvocationID uint32

// Owner is the delivery key of the realm that submitted an invocation.
type Owner = uuid.UUID

// Policy selects how a submission is scheduled.
type Policy uint8

const (
	Lazy Policy = iota
	Eager
	Deferred
)

func (p Policy) String() string {
	switch p {
	case Eager:
		return "eager"
	case Lazy:
		return "lazy"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// rank orders ready completions; lower is delivered first.
func (p Policy) rank() int {
	switch p {
	case Eager:
		return 0
	case Deferred:
		return 1
	default:
		return 2
	}
}

// Submission tags a unit of native work.
type Submission struct {
	Owner  Owner
	ID     InvocationID
	Op     OpID
	Policy Policy
}

// Result is a mapped operation result.
//
// Failed reports that the operation itself failed; Value then holds the output
// of the error mapper. MapErr reports that the runtime could not convert the
// result; Value is nil in that case.
type Result struct {
	Value  any
	MapErr error
	Failed bool
}

// OK reports whether the operation succeeded and its result was mapped.
func (r Result) OK() bool {
	return !r.Failed && r.MapErr == nil
}

// Completion is one delivered result.
type Completion struct {
	Result Result
	Owner  Owner
	ID     InvocationID
	Op     OpID
	Policy Policy
}

// PendingStat describes one undelivered submission.
type PendingStat struct {
	Owner  Owner
	ID     InvocationID
	Op     OpID
	Policy Policy
}
