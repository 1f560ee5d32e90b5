package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseSubmit    Phase = "submit"    // op submission
	PhasePoll      Phase = "poll"      // driver polling
	PhaseMap       Phase = "map"       // native result to guest form
	PhaseDeliver   Phase = "deliver"   // routing a completion to its realm
	PhaseTeardown  Phase = "teardown"  // realm destruction
	PhaseRegistry  Phase = "registry"  // op table construction
	PhaseBinding   Phase = "binding"   // guest engine binding
	PhaseRejection Phase = "rejection" // unhandled rejection reporting
)

// Kind categorizes the error
type Kind string

const (
	KindMapping             Kind = "mapping"
	KindOperation           Kind = "operation"
	KindLifecycle           Kind = "lifecycle"
	KindDuplicateInvocation Kind = "duplicate_invocation"
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
	KindRegistration        Kind = "registration"
	KindUncaughtRejection   Kind = "uncaught_rejection"
	KindShutdown            Kind = "shutdown"
	KindPanic               Kind = "panic"
)

// Error is the structured error type used throughout opcore
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	Realm      string
	Detail     string
	Op         uint32
	Invocation uint32
	hasOp      bool
	hasInv     bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Realm != "" {
		b.WriteString(" in realm ")
		b.WriteString(e.Realm)
	}

	if e.hasOp || e.hasInv {
		b.WriteString(" (")
		if e.hasOp {
			b.WriteString("op ")
			b.WriteString(strconv.FormatUint(uint64(e.Op), 10))
		}
		if e.hasOp && e.hasInv {
			b.WriteString(", ")
		}
		if e.hasInv {
			b.WriteString("invocation ")
			b.WriteString(strconv.FormatUint(uint64(e.Invocation), 10))
		}
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation id
func (b *Builder) Op(id uint32) *Builder {
	b.err.Op = id
	b.err.hasOp = true
	return b
}

// Invocation sets the invocation (promise) id
func (b *Builder) Invocation(id uint32) *Builder {
	b.err.Invocation = id
	b.err.hasInv = true
	return b
}

// Realm sets the realm name
func (b *Builder) Realm(name string) *Builder {
	b.err.Realm = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Mapping creates an error for a result the runtime could not convert.
func Mapping(op, invocation uint32, cause error) *Error {
	return New(PhaseMap, KindMapping).
		Op(op).
		Invocation(invocation).
		Detail("map result").
		Cause(cause).
		Build()
}

// Operation wraps a failure produced by the native operation itself.
func Operation(op, invocation uint32, cause error) *Error {
	return New(PhaseMap, KindOperation).
		Op(op).
		Invocation(invocation).
		Cause(cause).
		Build()
}

// Lifecycle creates an error for an operation attempted on a realm that no longer
// accepts it.
func Lifecycle(phase Phase, realm, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLifecycle,
		Realm:  realm,
		Detail: detail,
	}
}

// DuplicateInvocation creates an error for an invocation id submitted while a
// previous submission with the same id is still pending.
func DuplicateInvocation(op, invocation uint32) *Error {
	return New(PhaseSubmit, KindDuplicateInvocation).
		Op(op).
		Invocation(invocation).
		Detail("invocation id already pending").
		Build()
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// UnknownOp creates an error for an op id outside the realm's dispatch table.
func UnknownOp(realm string, op uint32, tableLen int) *Error {
	return New(PhaseSubmit, KindNotFound).
		Realm(realm).
		Op(op).
		Detail("op id out of range (table length %d)", tableLen).
		Value(op).
		Build()
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register op %q", name),
		Cause:  cause,
	}
}

// UncaughtRejection creates the report raised when an unhandled promise rejection
// is drained from a realm.
func UncaughtRejection(realm string, reason any) *Error {
	e := &Error{
		Phase:  PhaseRejection,
		Kind:   KindUncaughtRejection,
		Realm:  realm,
		Detail: fmt.Sprintf("uncaught (in promise) %v", reason),
		Value:  reason,
	}
	if err, ok := reason.(error); ok {
		e.Cause = err
	}
	return e
}

// Panic converts a recovered panic value into an error.
func Panic(phase Phase, name string, r any) *Error {
	e := &Error{
		Phase:  phase,
		Kind:   KindPanic,
		Detail: fmt.Sprintf("%s panicked: %v", name, r),
		Value:  r,
	}
	if err, ok := r.(error); ok {
		e.Cause = err
	}
	return e
}

// Shutdown creates an error reported when work is attempted after driver shutdown.
func Shutdown(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindShutdown,
		Detail: "driver shut down",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
