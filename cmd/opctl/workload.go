package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/realm"
	"github.com/wippyai/opcore/registry"
	"github.com/wippyai/opcore/runtime"
)

// Op ids follow registration order in newWorkload.
const (
	opSleep driver.OpID = iota
	opDigest
	opClock
	opTimer
)

var errInjected = fmt.Errorf("injected failure")

type workloadConfig struct {
	Ops      int
	Realms   int
	PoolSize int
	MaxDelay time.Duration
	FailRate float64
}

func (c workloadConfig) validate() error {
	switch {
	case c.Ops <= 0:
		return errors.InvalidInput(errors.PhaseSubmit, "ops must be positive")
	case c.Realms < 0:
		return errors.InvalidInput(errors.PhaseSubmit, "realms cannot be negative")
	case c.PoolSize <= 0:
		return errors.InvalidInput(errors.PhaseSubmit, "pool-size must be positive")
	case c.MaxDelay < 0:
		return errors.InvalidInput(errors.PhaseSubmit, "max-delay cannot be negative")
	case c.FailRate < 0 || c.FailRate > 1:
		return errors.InvalidInput(errors.PhaseSubmit, "fail-rate must be within [0, 1]")
	}
	return nil
}

type workload struct {
	pool      *driver.Pool
	table     *registry.Table
	logger    *zap.Logger
	cfg       workloadConfig
	submitted atomic.Int64
	inline    atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	done      atomic.Bool
}

// Report summarizes a finished run.
type Report struct {
	Elapsed   time.Duration
	Realms    int
	Submitted int64
	Inline    int64
	Succeeded int64
	Failed    int64
	Orphaned  uint64
	Unref     int
	Leaked    int
}

func newWorkload(cfg workloadConfig, pool *driver.Pool, logger *zap.Logger) *workload {
	w := &workload{cfg: cfg, pool: pool, logger: logger}

	mw := []registry.Middleware{registry.PanicRecoveryMiddleware()}
	if logger.Core().Enabled(zap.DebugLevel) {
		mw = append(mw, registry.LoggingMiddleware(logger.Named("ops")))
	}

	w.table = registry.MustNew(
		registry.WithMiddleware(mw...),
		registry.WithOp(
			registry.AsyncFallible("sleep", driver.Lazy, w.sleep, nil, nil),
			registry.Async("digest", driver.Deferred, w.digest, nil),
			registry.Sync("clock", func(context.Context, any) (int64, error) {
				return time.Now().UnixNano(), nil
			}, nil, nil),
			registry.Async("timer", driver.Lazy, w.timer, nil),
		),
	)
	return w
}

func (w *workload) delay() time.Duration {
	if w.cfg.MaxDelay <= 0 {
		return 0
	}
	return rand.N(w.cfg.MaxDelay)
}

func (w *workload) sleep(ctx context.Context, _ any) driver.Future[driver.Outcome[time.Duration]] {
	d := w.delay()
	fail := rand.Float64() < w.cfg.FailRate
	return driver.Spawn(w.pool, ctx, func(ctx context.Context) (time.Duration, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		if fail {
			return 0, errInjected
		}
		return d, nil
	})
}

func (w *workload) digest(_ context.Context, args any) driver.Future[string] {
	d := w.delay()
	return driver.SpawnValue(w.pool, func() string {
		time.Sleep(d)
		sum := sha256.Sum256([]byte(fmt.Sprint(args)))
		return hex.EncodeToString(sum[:8])
	})
}

// timer outlives the run. It is unreferenced, so it never keeps the loop alive.
func (w *workload) timer(_ context.Context, _ any) driver.Future[struct{}] {
	c := driver.NewCompleter[struct{}]()
	time.AfterFunc(10*w.cfg.MaxDelay+time.Second, func() { c.Complete(struct{}{}) })
	return c
}

func (w *workload) record(c driver.Completion) {
	if c.Result.OK() {
		w.succeeded.Add(1)
		return
	}
	w.failed.Add(1)
	w.logger.Debug("operation failed",
		zap.Uint32("op", uint32(c.Op)),
		zap.Uint32("invocation", uint32(c.ID)),
		zap.Any("value", c.Result.Value),
		zap.NamedError("map_error", c.Result.MapErr))
}

// Run submits the workload across the main realm and cfg.Realms workers, then
// runs the host loop until nothing referenced is pending.
func (w *workload) Run(ctx context.Context, rt *runtime.Runtime) (Report, error) {
	start := time.Now()

	realms := []*realm.Realm{rt.MainRealm()}
	for i := 0; i < w.cfg.Realms; i++ {
		ref, err := rt.NewRealm(fmt.Sprintf("worker-%d", i+1), w.table)
		if err != nil {
			return Report{}, err
		}
		defer ref.Release()
		realms = append(realms, ref.Realm())
	}

	next := make([]driver.InvocationID, len(realms))
	call := func(i int, op driver.OpID, args any) driver.InvocationID {
		r := realms[i]
		next[i]++
		id := next[i]
		w.submitted.Add(1)
		res, inline := r.Call(ctx, op, id, args)
		if inline {
			w.inline.Add(1)
			w.record(driver.Completion{Owner: r.ID(), ID: id, Op: op, Result: res})
		}
		return id
	}

	for i, r := range realms {
		r.SetResolver(w.record)
		id := call(i, opTimer, nil)
		r.Unref(id)
	}

	kinds := []driver.OpID{opSleep, opDigest, opClock, opSleep}
	for n := 0; n < w.cfg.Ops; n++ {
		call(n%len(realms), kinds[n%len(kinds)], n)
	}
	w.logger.Info("workload submitted",
		zap.Int64("ops", w.submitted.Load()),
		zap.Int("realms", len(realms)),
		zap.Int("pending", rt.Driver().Len()))

	if err := rt.RunEventLoop(ctx); err != nil {
		return Report{}, err
	}
	w.done.Store(true)

	return Report{
		Elapsed:   time.Since(start),
		Realms:    len(realms),
		Submitted: w.submitted.Load(),
		Inline:    w.inline.Load(),
		Succeeded: w.succeeded.Load(),
		Failed:    w.failed.Load(),
		Orphaned:  rt.Summary().Orphaned,
		Unref:     len(rt.Stats()) - len(rt.Stats(opTimer)),
		Leaked:    len(rt.Stats(opTimer)),
	}, nil
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "realms:     %d\n", r.Realms)
	fmt.Fprintf(&b, "submitted:  %d (%d inline)\n", r.Submitted, r.Inline)
	fmt.Fprintf(&b, "succeeded:  %d\n", r.Succeeded)
	fmt.Fprintf(&b, "failed:     %d\n", r.Failed)
	fmt.Fprintf(&b, "orphaned:   %d\n", r.Orphaned)
	fmt.Fprintf(&b, "unref:      %d still pending\n", r.Unref)
	fmt.Fprintf(&b, "leaked:     %d\n", r.Leaked)
	fmt.Fprintf(&b, "elapsed:    %s\n", r.Elapsed.Round(time.Millisecond))
	return b.String()
}
