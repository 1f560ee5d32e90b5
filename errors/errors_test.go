package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: New(PhaseMap, KindMapping).
				Realm("worker-1").
				Op(7).
				Invocation(3).
				Detail("cannot convert").
				Build(),
			contains: []string{"[map]", "mapping", "realm worker-1", "op 7", "invocation 3", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhasePoll,
				Kind:  KindShutdown,
			},
			contains: []string{"[poll]", "shutdown"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseTeardown,
				Kind:   KindLifecycle,
				Detail: "slot close failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[teardown]", "lifecycle", "slot close failed", "caused by", "underlying error"},
		},
		{
			name:     "invocation only",
			err:      New(PhaseDeliver, KindNotFound).Invocation(9).Build(),
			contains: []string{"(invocation 9)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseSubmit,
		Kind:  KindOperation,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := Mapping(1, 2, errors.New("bad"))

	if !err.Is(&Error{Phase: PhaseMap, Kind: KindMapping}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseDeliver, Kind: KindMapping}) {
		t.Error("Is should not match different phase")
	}

	// mapping and operation failures share a phase but must stay distinguishable
	if err.Is(&Error{Phase: PhaseMap, Kind: KindOperation}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseMap, Kind: KindMapping}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseSubmit, KindDuplicateInvocation).
		Realm("main").
		Op(4).
		Invocation(11).
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "free", "pending").
		Build()

	if err.Phase != PhaseSubmit {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseSubmit)
	}
	if err.Kind != KindDuplicateInvocation {
		t.Errorf("Kind = %v, want %v", err.Kind, KindDuplicateInvocation)
	}
	if err.Realm != "main" {
		t.Errorf("Realm = %v, want main", err.Realm)
	}
	if err.Op != 4 || err.Invocation != 11 {
		t.Errorf("Op=%d Invocation=%d, want 4 and 11", err.Op, err.Invocation)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected free, got pending" {
		t.Errorf("Detail = %v, want 'expected free, got pending'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Mapping", func(t *testing.T) {
		err := Mapping(7, 1, errors.New("not a string"))
		if err.Kind != KindMapping || err.Phase != PhaseMap {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("Operation", func(t *testing.T) {
		cause := errors.New("eof")
		err := Operation(7, 1, cause)
		if err.Kind != KindOperation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOperation)
		}
		if !errors.Is(err, cause) {
			t.Error("operation error should unwrap to its cause")
		}
	})

	t.Run("Lifecycle", func(t *testing.T) {
		err := Lifecycle(PhaseDeliver, "aux", "realm destroyed")
		if err.Kind != KindLifecycle || err.Realm != "aux" {
			t.Errorf("got kind %v realm %q", err.Kind, err.Realm)
		}
	})

	t.Run("DuplicateInvocation", func(t *testing.T) {
		err := DuplicateInvocation(3, 5)
		if err.Kind != KindDuplicateInvocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindDuplicateInvocation)
		}
	})

	t.Run("UnknownOp", func(t *testing.T) {
		err := UnknownOp("main", 12, 4)
		if err.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
		}
		if !strings.Contains(err.Detail, "4") {
			t.Errorf("Detail = %v, should contain table length", err.Detail)
		}
	})

	t.Run("UncaughtRejection", func(t *testing.T) {
		reason := errors.New("boom")
		err := UncaughtRejection("main", reason)
		if err.Kind != KindUncaughtRejection {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUncaughtRejection)
		}
		if !errors.Is(err, reason) {
			t.Error("error reasons should be kept as the cause")
		}
		if !strings.Contains(err.Error(), "uncaught (in promise)") {
			t.Errorf("message %q", err.Error())
		}
	})

	t.Run("UncaughtRejection non-error reason", func(t *testing.T) {
		err := UncaughtRejection("main", "plain string")
		if err.Cause != nil {
			t.Errorf("Cause = %v, want nil", err.Cause)
		}
		if err.Value != "plain string" {
			t.Errorf("Value = %v", err.Value)
		}
	})

	t.Run("Panic", func(t *testing.T) {
		err := Panic(PhaseSubmit, "read", "kaboom")
		if err.Kind != KindPanic {
			t.Errorf("Kind = %v, want %v", err.Kind, KindPanic)
		}
	})

	t.Run("Registration", func(t *testing.T) {
		err := Registration("op_read", errors.New("duplicate"))
		if err.Phase != PhaseRegistry || err.Kind != KindRegistration {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})
}
