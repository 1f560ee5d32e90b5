package registry

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/errors"
)

func echo(_ context.Context, args any) driver.Future[any] {
	return driver.Resolved(args)
}

func TestNew_AssignsIDsInOrder(t *testing.T) {
	table, err := New(
		WithOp(Async("op_a", driver.Lazy, echo, nil)),
		WithOp(Async("op_b", driver.Deferred, echo, nil), Async("op_c", driver.Eager, echo, nil)),
	)
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	for i, name := range []string{"op_a", "op_b", "op_c"} {
		d, ok := table.Lookup(name)
		require.True(t, ok)
		assert.Equal(t, driver.OpID(i), d.ID)
		got, ok := table.Get(d.ID)
		require.True(t, ok)
		assert.Equal(t, name, got.Name)
	}

	d, _ := table.Lookup("op_b")
	assert.Equal(t, driver.Deferred, d.Policy)

	_, ok := table.Get(3)
	assert.False(t, ok)
	_, ok = table.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"op_a", "op_b", "op_c"}, table.Names())
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"empty name", []Option{WithOp(Async("", driver.Lazy, echo, nil))}},
		{"duplicate", []Option{WithOp(Async("x", driver.Lazy, echo, nil), Async("x", driver.Eager, echo, nil))}},
		{"zero op", []Option{WithOp(Op{name: "bare"})}},
		{"nil middleware", []Option{WithMiddleware(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			require.Error(t, err)
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, errors.PhaseRegistry, e.Phase)
		})
	}

	assert.Panics(t, func() { MustNew(WithOp(Async("", driver.Lazy, echo, nil))) })
}

func TestDescriptors_IsCopy(t *testing.T) {
	table := MustNew(WithOp(Async("op_a", driver.Lazy, echo, nil)))
	ds := table.Descriptors()
	ds[0].Name = "mutated"
	d, _ := table.Get(0)
	assert.Equal(t, "op_a", d.Name)
}

func TestNilTable(t *testing.T) {
	var table *Table
	assert.Equal(t, 0, table.Len())
	_, ok := table.Get(0)
	assert.False(t, ok)
	assert.Nil(t, table.Names())
}

func TestSync_AlwaysInline(t *testing.T) {
	table := MustNew(WithOp(
		Sync("op_add", func(_ context.Context, args any) (int, error) {
			v := args.([2]int)
			return v[0] + v[1], nil
		}, nil, nil),
		Sync("op_fail", func(context.Context, any) (int, error) {
			return 0, stderrors.New("nope")
		}, nil, func(err error) any { return "E:" + err.Error() }),
	))
	d := driver.New()
	owner := uuid.New()

	add, _ := table.Lookup("op_add")
	assert.Equal(t, driver.Eager, add.Policy)
	res, inline := add.Dispatch(context.Background(), d, driver.Submission{Owner: owner, ID: 1, Op: add.ID, Policy: add.Policy}, [2]int{2, 3})
	require.True(t, inline)
	assert.Equal(t, 5, res.Value)

	fail, _ := table.Lookup("op_fail")
	res, inline = fail.Dispatch(context.Background(), d, driver.Submission{Owner: owner, ID: 2, Op: fail.ID, Policy: fail.Policy}, nil)
	require.True(t, inline)
	assert.True(t, res.Failed)
	assert.Equal(t, "E:nope", res.Value)
	assert.Equal(t, 0, d.Len())
}

func TestAsyncFallible_Delivers(t *testing.T) {
	boom := stderrors.New("boom")
	table := MustNew(WithOp(AsyncFallible("op_read", driver.Lazy,
		func(context.Context, any) driver.Future[driver.Outcome[[]byte]] {
			return driver.Fail[[]byte](boom)
		}, nil, nil)))
	d := driver.New()
	desc, _ := table.Lookup("op_read")

	_, inline := desc.Dispatch(context.Background(), d, driver.Submission{Owner: uuid.New(), ID: 1, Op: desc.ID, Policy: desc.Policy}, nil)
	require.False(t, inline)

	c, err := d.PollReady(context.Background())
	require.NoError(t, err)
	assert.True(t, c.Result.Failed)
	assert.ErrorIs(t, c.Result.Value.(error), boom)
}

func TestMiddleware_Order(t *testing.T) {
	var calls []string
	mw := func(tag string) Middleware {
		return func(op Info, next DispatchFunc) DispatchFunc {
			return func(ctx context.Context, d *driver.Driver, sub driver.Submission, args any) (driver.Result, bool) {
				calls = append(calls, tag+":"+op.Name)
				return next(ctx, d, sub, args)
			}
		}
	}
	table := MustNew(
		WithMiddleware(mw("first"), mw("second")),
		WithOp(Sync("op_x", func(context.Context, any) (int, error) { return 1, nil }, nil, nil)),
	)
	desc, _ := table.Get(0)
	desc.Dispatch(context.Background(), driver.New(), driver.Submission{Owner: uuid.New(), ID: 1, Policy: desc.Policy}, nil)
	assert.Equal(t, []string{"first:op_x", "second:op_x"}, calls)
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	table := MustNew(
		WithMiddleware(PanicRecoveryMiddleware()),
		WithOp(Async("op_bad", driver.Lazy, func(context.Context, any) driver.Future[int] {
			panic("start failed")
		}, nil)),
	)
	desc, _ := table.Get(0)
	d := driver.New()
	res, inline := desc.Dispatch(context.Background(), d, driver.Submission{Owner: uuid.New(), ID: 1, Policy: desc.Policy}, nil)
	require.True(t, inline)
	assert.True(t, res.Failed)
	assert.ErrorIs(t, res.Value.(error), &errors.Error{Phase: errors.PhaseSubmit, Kind: errors.KindPanic})
	assert.Equal(t, 0, d.Len())
}

func TestPanicRecoveryMiddleware_KeepsInvariantPanics(t *testing.T) {
	table := MustNew(
		WithMiddleware(PanicRecoveryMiddleware()),
		WithOp(Async("op_wait", driver.Lazy, func(context.Context, any) driver.Future[int] {
			return driver.NewCompleter[int]()
		}, nil)),
	)
	desc, _ := table.Get(0)
	d := driver.New()
	sub := driver.Submission{Owner: uuid.New(), ID: 1, Policy: desc.Policy}
	desc.Dispatch(context.Background(), d, sub, nil)
	assert.Panics(t, func() { desc.Dispatch(context.Background(), d, sub, nil) })
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	table := MustNew(
		WithMiddleware(LoggingMiddleware(zap.New(core))),
		WithOp(Sync("op_now", func(context.Context, any) (int, error) { return 1, nil }, nil, nil)),
	)
	desc, _ := table.Get(0)
	desc.Dispatch(context.Background(), driver.New(), driver.Submission{Owner: uuid.New(), ID: 4, Policy: desc.Policy}, nil)

	entries := logs.FilterMessage("op dispatched").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "op_now", fields["op"])
	assert.Equal(t, true, fields["inline"])
}
