package driver

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/opcore/errors"
)

func sub(owner Owner, id InvocationID, op OpID, p Policy) Submission {
	return Submission{Owner: owner, ID: id, Op: op, Policy: p}
}

func pollCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func readyLen(d *Driver) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ready)
}

func TestDriver_LazyScenario(t *testing.T) {
	d := New()
	owner := uuid.New()

	for i := 1; i <= 3; i++ {
		_, inline := Submit(d, sub(owner, InvocationID(i), 7, Lazy), Resolved(fmt.Sprint(i)), nil)
		require.False(t, inline, "lazy submission must not resolve inline")
	}
	require.Equal(t, 3, d.Len())

	seen := make(map[InvocationID]string)
	ctx := pollCtx(t)
	for want := 2; want >= 0; want-- {
		c, err := d.PollReady(ctx)
		require.NoError(t, err)
		require.Equal(t, OpID(7), c.Op)
		require.Equal(t, owner, c.Owner)
		_, dup := seen[c.ID]
		require.False(t, dup, "invocation %d delivered twice", c.ID)
		seen[c.ID] = c.Result.Value.(string)
		require.Equal(t, want, d.Len())
	}

	assert.Equal(t, map[InvocationID]string{1: "1", 2: "2", 3: "3"}, seen)
	assert.Empty(t, d.Stats())
}

func TestDriver_EagerFastPath(t *testing.T) {
	d := New()
	owner := uuid.New()

	res, inline := Submit(d, sub(owner, 1, 3, Eager), Resolved(41), func(v int) (any, error) {
		return v + 1, nil
	})
	require.True(t, inline)
	assert.Equal(t, 42, res.Value)
	assert.True(t, res.OK())
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.Stats())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.PollReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDriver_EagerNotReadyFallsBack(t *testing.T) {
	d := New()
	owner := uuid.New()
	c := NewCompleter[string]()

	_, inline := Submit(d, sub(owner, 9, 1, Eager), c, nil)
	require.False(t, inline)
	require.Equal(t, 1, d.Len())

	c.Complete("late")
	got, err := d.PollReady(pollCtx(t))
	require.NoError(t, err)
	assert.Equal(t, InvocationID(9), got.ID)
	assert.Equal(t, Eager, got.Policy)
	assert.Equal(t, "late", got.Result.Value)
}

func TestDriver_NonInline(t *testing.T) {
	for _, p := range []Policy{Lazy, Deferred} {
		t.Run(p.String(), func(t *testing.T) {
			d := New()
			_, inline := Submit(d, sub(uuid.New(), 1, 1, p), Resolved("done"), nil)
			require.False(t, inline)
			require.Equal(t, 1, d.Len())

			c, err := d.PollReady(pollCtx(t))
			require.NoError(t, err)
			assert.Equal(t, "done", c.Result.Value)
		})
	}
}

func TestDriver_TieBreak(t *testing.T) {
	d := New()
	owner := uuid.New()

	lazy := NewCompleter[string]()
	deferred := NewCompleter[string]()
	eager := NewCompleter[string]()

	Submit(d, sub(owner, 1, 1, Lazy), lazy, nil)
	Submit(d, sub(owner, 2, 1, Deferred), deferred, nil)
	Submit(d, sub(owner, 3, 1, Eager), eager, nil)

	// completion order is the reverse of the delivery order we expect
	lazy.Complete("lazy")
	require.Eventually(t, func() bool { return readyLen(d) == 1 }, time.Second, time.Millisecond)
	deferred.Complete("deferred")
	require.Eventually(t, func() bool { return readyLen(d) == 2 }, time.Second, time.Millisecond)
	eager.Complete("eager")
	require.Eventually(t, func() bool { return readyLen(d) == 3 }, time.Second, time.Millisecond)

	var order []InvocationID
	for i := 0; i < 3; i++ {
		c, ok := d.TryPollReady()
		require.True(t, ok)
		order = append(order, c.ID)
	}
	assert.Equal(t, []InvocationID{3, 2, 1}, order)
}

func TestDriver_CompletionOrderWithinClass(t *testing.T) {
	d := New()
	owner := uuid.New()
	first := NewCompleter[int]()
	second := NewCompleter[int]()

	Submit(d, sub(owner, 1, 1, Lazy), first, nil)
	Submit(d, sub(owner, 2, 1, Lazy), second, nil)

	second.Complete(2)
	require.Eventually(t, func() bool { return readyLen(d) == 1 }, time.Second, time.Millisecond)
	first.Complete(1)
	require.Eventually(t, func() bool { return readyLen(d) == 2 }, time.Second, time.Millisecond)

	c, ok := d.TryPollReady()
	require.True(t, ok)
	assert.Equal(t, InvocationID(2), c.ID)
}

func TestDriver_ExactlyOnceConcurrent(t *testing.T) {
	const n = 500
	d := New()
	pool := NewPool(8)
	owner := uuid.New()

	delivered := make(map[InvocationID]int)
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		i := i
		fut := SpawnValue(pool, func() int {
			time.Sleep(time.Duration(i%5) * time.Millisecond)
			return i
		})
		if res, inline := Submit(d, sub(owner, InvocationID(i), OpID(i%4), Policy(i%3)), fut, nil); inline {
			require.Equal(t, i, res.Value)
			delivered[InvocationID(i)]++
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				c, err := d.PollReady(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				delivered[c.ID]++
				mu.Unlock()
			}
		}()
	}

	require.Eventually(t, func() bool { return d.Len() == 0 }, 5*time.Second, time.Millisecond)
	cancel()
	wg.Wait()

	require.Len(t, delivered, n)
	for id, count := range delivered {
		assert.Equal(t, 1, count, "invocation %d", id)
	}
	assert.Empty(t, d.Stats())
	assert.Eventually(t, func() bool { return pool.Queued() == 0 }, time.Second, time.Millisecond)
}

func TestDriver_DuplicateInvocationPanics(t *testing.T) {
	d := New()
	owner := uuid.New()
	Submit(d, sub(owner, 1, 1, Lazy), NewCompleter[int](), nil)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*errors.Error)
		require.True(t, ok, "panic value %T", r)
		assert.Equal(t, errors.KindDuplicateInvocation, err.Kind)
	}()
	Submit(d, sub(owner, 1, 2, Lazy), NewCompleter[int](), nil)
}

func TestDriver_SameInvocationDifferentOwners(t *testing.T) {
	d := New()
	Submit(d, sub(uuid.New(), 1, 1, Lazy), Resolved(1), nil)
	Submit(d, sub(uuid.New(), 1, 1, Lazy), Resolved(2), nil)
	assert.Equal(t, 2, d.Len())
}

func TestDriver_InvocationReusableAfterDelivery(t *testing.T) {
	d := New()
	owner := uuid.New()
	Submit(d, sub(owner, 5, 1, Lazy), Resolved("a"), nil)
	_, err := d.PollReady(pollCtx(t))
	require.NoError(t, err)

	require.NotPanics(t, func() {
		Submit(d, sub(owner, 5, 1, Lazy), Resolved("b"), nil)
	})
	c, err := d.PollReady(pollCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "b", c.Result.Value)
}

func TestDriver_Stats(t *testing.T) {
	d := New()
	owner := uuid.New()
	Submit(d, sub(owner, 2, 10, Lazy), NewCompleter[int](), nil)
	Submit(d, sub(owner, 1, 11, Deferred), NewCompleter[int](), nil)
	Submit(d, sub(owner, 3, 12, Eager), NewCompleter[int](), nil)

	all := d.Stats()
	require.Len(t, all, 3)
	assert.Equal(t, InvocationID(1), all[0].ID)
	assert.Equal(t, OpID(11), all[0].Op)

	filtered := d.Stats(10, 12)
	require.Len(t, filtered, 1)
	assert.Equal(t, InvocationID(1), filtered[0].ID)

	// snapshot is non-consuming
	assert.Equal(t, 3, d.Len())
}

func TestDriver_StatsDuringPoll(t *testing.T) {
	d := New()
	owner := uuid.New()
	c := NewCompleter[int]()
	Submit(d, sub(owner, 1, 1, Lazy), c, nil)

	done := make(chan Completion, 1)
	go func() {
		got, err := d.PollReady(context.Background())
		if err == nil {
			done <- got
		}
	}()

	for i := 0; i < 100; i++ {
		require.Len(t, d.Stats(), 1)
	}
	c.Complete(7)

	select {
	case got := <-done:
		assert.Equal(t, 7, got.Result.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not resolve")
	}
	assert.Empty(t, d.Stats())
}

func TestDriver_ShutdownFinality(t *testing.T) {
	d := New()
	owner := uuid.New()
	Submit(d, sub(owner, 1, 1, Lazy), Resolved(1), nil)
	require.Eventually(t, func() bool { return readyLen(d) == 1 }, time.Second, time.Millisecond)

	d.Shutdown()
	d.Shutdown()
	assert.True(t, d.IsShutdown())
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.Stats())

	_, inline := Submit(d, sub(owner, 2, 1, Eager), Resolved(2), nil)
	assert.False(t, inline, "eager submission after shutdown must not deliver")
	Submit(d, sub(owner, 3, 1, Lazy), Resolved(3), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.PollReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := d.TryPollReady()
	assert.False(t, ok)
}

func TestDriver_PollBlocksAfterShutdown(t *testing.T) {
	d := New()
	c := NewCompleter[int]()
	Submit(d, sub(uuid.New(), 1, 1, Lazy), c, nil)

	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, err := d.PollReady(ctx)
		errCh <- err
	}()

	d.Shutdown()
	c.Complete(1)

	select {
	case err := <-errCh:
		t.Fatalf("poll resolved after shutdown: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestDriver_FallibleMapping(t *testing.T) {
	owner := uuid.New()
	boom := stderrors.New("boom")

	t.Run("operation error mapped", func(t *testing.T) {
		d := New()
		res, inline := SubmitFallible(d, sub(owner, 1, 2, Eager), Fail[int](boom), nil, func(err error) any {
			return "mapped: " + err.Error()
		})
		require.True(t, inline)
		assert.True(t, res.Failed)
		assert.NoError(t, res.MapErr)
		assert.Equal(t, "mapped: boom", res.Value)
	})

	t.Run("operation error default mapper", func(t *testing.T) {
		d := New()
		res, _ := SubmitFallible[int](d, sub(owner, 1, 2, Eager), Fail[int](boom), nil, nil)
		require.True(t, res.Failed)
		err, ok := res.Value.(*errors.Error)
		require.True(t, ok)
		assert.Equal(t, errors.KindOperation, err.Kind)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("mapping error is distinct", func(t *testing.T) {
		d := New()
		SubmitFallible(d, sub(owner, 1, 2, Lazy), Succeed(3), func(int) (any, error) {
			return nil, stderrors.New("cannot convert")
		}, nil)
		c, err := d.PollReady(pollCtx(t))
		require.NoError(t, err)
		assert.False(t, c.Result.Failed)
		require.Error(t, c.Result.MapErr)
		assert.ErrorIs(t, c.Result.MapErr, &errors.Error{Phase: errors.PhaseMap, Kind: errors.KindMapping})
	})

	t.Run("mapper panic becomes mapping error", func(t *testing.T) {
		d := New()
		res, inline := Submit(d, sub(owner, 1, 2, Eager), Resolved(1), func(int) (any, error) {
			panic("bad mapper")
		})
		require.True(t, inline)
		require.Error(t, res.MapErr)
		assert.False(t, res.OK())
	})
}

func TestDriver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	d := New(WithMetrics(m))
	owner := uuid.New()

	Submit(d, sub(owner, 1, 1, Eager), Resolved(1), nil)
	Submit(d, sub(owner, 2, 1, Lazy), Resolved(2), nil)
	SubmitFallible(d, sub(owner, 3, 1, Lazy), Fail[int](stderrors.New("x")), nil, nil)
	Submit(d, sub(owner, 4, 1, Lazy), NewCompleter[int](), nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inline))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.submitted.WithLabelValues("lazy")))

	ctx := pollCtx(t)
	for i := 0; i < 2; i++ {
		_, err := d.PollReady(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.delivered.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.delivered.WithLabelValues("failed")))

	d.Shutdown()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discarded))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pending))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
