package runtime

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/realm"
)

const (
	spanDeliver = "opcore.deliver"

	attrRealm      = "opcore.realm"
	attrOp         = "opcore.op"
	attrInvocation = "opcore.invocation"
	attrPolicy     = "opcore.policy"
	attrOrphaned   = "opcore.orphaned"
)

// PollOnce runs one loop iteration: drain rejections, wait for a completion,
// then deliver everything else that is already ready.
func (rt *Runtime) PollOnce(ctx context.Context) error {
	if err := rt.drainRejections(); err != nil {
		return err
	}

	c, err := rt.driver.PollReady(ctx)
	if err != nil {
		return err
	}
	rt.route(ctx, c)

	for {
		c, ok := rt.driver.TryPollReady()
		if !ok {
			return nil
		}
		rt.route(ctx, c)
	}
}

// RunEventLoop polls until no realm has a referenced pending invocation.
// It stops early on ctx cancellation or the first reported rejection.
func (rt *Runtime) RunEventLoop(ctx context.Context) error {
	for rt.hasReferencedPending() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rt.PollOnce(ctx); err != nil {
			return err
		}
	}
	return rt.drainRejections()
}

func (rt *Runtime) hasReferencedPending() bool {
	if rt.driver.IsShutdown() {
		return false
	}
	for _, r := range rt.Realms() {
		if r.HasReferencedPending() {
			return true
		}
	}
	return false
}

func (rt *Runtime) drainRejections() error {
	for _, r := range rt.Realms() {
		if r.State() != realm.Active {
			continue
		}
		for r.PendingRejections() > 0 && !r.SessionsBlocking() {
			if err := r.CheckPendingRejections(); err != nil {
				return err
			}
		}
	}
	return nil
}

// route delivers c to its realm, or discards it if the realm is gone.
func (rt *Runtime) route(ctx context.Context, c driver.Completion) {
	_, span := rt.tracer.Start(ctx, spanDeliver, trace.WithAttributes(
		attribute.Int64(attrOp, int64(c.Op)),
		attribute.Int64(attrInvocation, int64(c.ID)),
		attribute.String(attrPolicy, c.Policy.String()),
	))
	defer span.End()

	r, ok := rt.Realm(c.Owner)
	if !ok || !rt.deliver(r, c) {
		rt.orphaned.Add(1)
		rt.metrics.observeOrphan()
		span.SetAttributes(attribute.Bool(attrOrphaned, true))
		rt.logger.Debug("orphaned completion discarded",
			zap.Stringer("owner", c.Owner),
			zap.Uint32("invocation", uint32(c.ID)))
		return
	}

	rt.routed.Add(1)
	rt.metrics.observeRouted()
	span.SetAttributes(attribute.String(attrRealm, r.Name()), attribute.Bool(attrOrphaned, false))
	switch {
	case c.Result.MapErr != nil:
		span.RecordError(c.Result.MapErr)
		span.SetStatus(codes.Error, c.Result.MapErr.Error())
	case c.Result.Failed:
		span.SetStatus(codes.Error, "operation failed")
	default:
		span.SetStatus(codes.Ok, "")
	}
}

// deliver reports false when r was torn down before the completion reached it.
func (rt *Runtime) deliver(r *realm.Realm, c driver.Completion) (ok bool) {
	if r.State() != realm.Active {
		return false
	}
	defer func() {
		if p := recover(); p != nil {
			e, isErr := p.(*errors.Error)
			if isErr && e.Kind == errors.KindLifecycle && r.State() != realm.Active {
				ok = false
				return
			}
			panic(p)
		}
	}()
	r.Deliver(c)
	return true
}
