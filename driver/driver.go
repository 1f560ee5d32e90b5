package driver

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/opcore/errors"
)

type key struct {
	owner Owner
	id    InvocationID
}

// pendingOp is one submitted operation owned by the driver.
// finish reads the future value and maps it; it only runs once done is closed.
type pendingOp struct {
	done   <-chan struct{}
	finish func() Result
	sub    Submission
}

// Driver multiplexes pending operations and hands out completions one at a time.
type Driver struct {
	pending map[key]*pendingOp
	signal  chan struct{} // buffered, size 1; coalesces readiness notifications
	stop    chan struct{} // closed by Shutdown
	logger  *zap.Logger
	metrics *Metrics
	ready   []*pendingOp // completed, in completion order
	mu      sync.Mutex
	closed  bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// New creates an empty driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		pending: make(map[key]*pendingOp),
		ready:   make([]*pendingOp, 0, 16),
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		logger:  Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// submit registers op unless it can be delivered inline. The returned Result is
// only meaningful when the bool is true.
func (d *Driver) submit(sub Submission, done <-chan struct{}, finish func() Result) (Result, bool) {
	k := key{owner: sub.Owner, id: sub.ID}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.metrics.observeDiscarded(1)
		d.logger.Debug("submission after shutdown discarded",
			zap.Uint32("op", uint32(sub.Op)),
			zap.Uint32("invocation", uint32(sub.ID)))
		return Result{}, false
	}
	if _, exists := d.pending[k]; exists {
		d.mu.Unlock()
		panic(errors.DuplicateInvocation(uint32(sub.Op), uint32(sub.ID)))
	}

	d.metrics.observeSubmit(sub.Policy)

	if sub.Policy == Eager {
		select {
		case <-done:
			d.mu.Unlock()
			d.metrics.observeInline()
			return finish(), true
		default:
		}
	}

	op := &pendingOp{sub: sub, done: done, finish: finish}
	d.pending[k] = op
	d.metrics.setPending(len(d.pending))
	d.mu.Unlock()

	go d.watch(op)
	return Result{}, false
}

// watch moves op to the ready queue once its future completes.
func (d *Driver) watch(op *pendingOp) {
	select {
	case <-op.done:
	case <-d.stop:
		return
	}

	d.mu.Lock()
	if d.closed || d.pending[key{owner: op.sub.Owner, id: op.sub.ID}] != op {
		d.mu.Unlock()
		return
	}
	d.ready = append(d.ready, op)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// PollReady blocks until one pending operation has completed and returns it,
// removing it from the driver. It returns ctx.Err() when ctx ends first.
// After Shutdown it never returns a completion.
func (d *Driver) PollReady(ctx context.Context) (Completion, error) {
	for {
		if c, ok := d.TryPollReady(); ok {
			return c, nil
		}
		select {
		case <-d.signal:
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}
}

// TryPollReady returns one completion if any is ready, without blocking.
func (d *Driver) TryPollReady() (Completion, bool) {
	d.mu.Lock()
	if d.closed || len(d.ready) == 0 {
		d.mu.Unlock()
		return Completion{}, false
	}

	best := 0
	for i := 1; i < len(d.ready); i++ {
		if d.ready[i].sub.Policy.rank() < d.ready[best].sub.Policy.rank() {
			best = i
		}
	}
	op := d.ready[best]
	copy(d.ready[best:], d.ready[best+1:])
	d.ready[len(d.ready)-1] = nil
	d.ready = d.ready[:len(d.ready)-1]
	delete(d.pending, key{owner: op.sub.Owner, id: op.sub.ID})
	d.metrics.setPending(len(d.pending))
	more := len(d.ready) > 0
	d.mu.Unlock()

	if more {
		select {
		case d.signal <- struct{}{}:
		default:
		}
	}

	res := op.finish()
	d.metrics.observeDelivered(res)
	return Completion{
		Owner:  op.sub.Owner,
		ID:     op.sub.ID,
		Op:     op.sub.Op,
		Policy: op.sub.Policy,
		Result: res,
	}, true
}

// Len returns the number of submitted operations not yet delivered.
func (d *Driver) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stats returns a snapshot of everything still pending, skipping the excluded
// op ids. Entries are sorted by owner, then invocation id.
func (d *Driver) Stats(excluded ...OpID) []PendingStat {
	skip := make(map[OpID]struct{}, len(excluded))
	for _, op := range excluded {
		skip[op] = struct{}{}
	}

	d.mu.Lock()
	stats := make([]PendingStat, 0, len(d.pending))
	for _, op := range d.pending {
		if _, ok := skip[op.sub.Op]; ok {
			continue
		}
		stats = append(stats, PendingStat{
			Owner:  op.sub.Owner,
			ID:     op.sub.ID,
			Op:     op.sub.Op,
			Policy: op.sub.Policy,
		})
	}
	d.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		if c := bytes.Compare(stats[i].Owner[:], stats[j].Owner[:]); c != 0 {
			return c < 0
		}
		return stats[i].ID < stats[j].ID
	})
	return stats
}

// Shutdown drops every pending operation and stops delivery for good.
// It is safe to call more than once.
func (d *Driver) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	dropped := len(d.pending)
	d.pending = make(map[key]*pendingOp)
	d.ready = nil
	close(d.stop)
	d.metrics.setPending(0)
	d.mu.Unlock()

	d.metrics.observeDiscarded(dropped)
	d.logger.Debug("driver shut down", zap.Int("dropped", dropped))
}

// IsShutdown reports whether Shutdown has been called.
func (d *Driver) IsShutdown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
