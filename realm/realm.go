package realm

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/registry"
	"github.com/wippyai/opcore/resource"
)

// State is a realm lifecycle state.
type State int32

const (
	Active State = iota
	Destroying
	Destroyed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Destroying:
		return "destroying"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// internalHolders counts the context set and the realm's own handle.
const internalHolders = 2

// Rejection is an unhandled promise rejection recorded by the guest.
type Rejection struct {
	Promise any
	Reason  any
}

// Resolver resolves the guest promise matching a delivered completion.
type Resolver func(c driver.Completion)

// Reporter reports a drained rejection. A non-nil error is the uncaught
// exception surfaced to the host loop.
type Reporter func(r *Realm, rej Rejection) error

// Config describes a realm to create.
type Config struct {
	Driver *driver.Driver
	Table  *registry.Table
	Logger *zap.Logger
	// Reporter defaults to reporting every rejection as an uncaught error.
	Reporter Reporter
	// OnDestroy runs as the last teardown step; the context set uses it to
	// forget the realm.
	OnDestroy func(*Realm)
	Name      string
	ID        driver.Owner
	Main      bool
}

// Realm is one guest execution context.
type Realm struct {
	driver     *driver.Driver
	table      *registry.Table
	slots      *resource.SlotTable
	logger     *zap.Logger
	onDestroy  func(*Realm)
	resolver   Resolver
	reporter   Reporter
	pending    map[driver.InvocationID]struct{}
	unref      map[driver.InvocationID]struct{}
	callbacks  map[string]any
	name       string
	rejections []Rejection
	opCount    int
	mu         sync.Mutex
	id         driver.Owner
	state      atomic.Int32
	holders    atomic.Int32
	blocking   atomic.Bool
	main       bool
}

// New creates an Active realm holding only its two internal references.
func New(cfg Config) *Realm {
	if cfg.Driver == nil {
		panic(errors.InvalidInput(errors.PhaseSubmit, "realm requires a driver"))
	}
	l := cfg.Logger
	if l == nil {
		l = Logger()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = ReportUncaught
	}

	r := &Realm{
		id:        cfg.ID,
		name:      cfg.Name,
		main:      cfg.Main,
		driver:    cfg.Driver,
		table:     cfg.Table,
		opCount:   cfg.Table.Len(),
		slots:     resource.NewTable(),
		logger:    l.With(zap.String("realm", cfg.Name)),
		onDestroy: cfg.OnDestroy,
		reporter:  reporter,
		pending:   make(map[driver.InvocationID]struct{}),
		unref:     make(map[driver.InvocationID]struct{}),
		callbacks: make(map[string]any),
	}
	r.holders.Store(internalHolders)
	return r
}

// ReportUncaught is the default Reporter.
func ReportUncaught(r *Realm, rej Rejection) error {
	return errors.UncaughtRejection(r.Name(), rej.Reason)
}

// ID returns the realm identity, which is also its delivery key.
func (r *Realm) ID() driver.Owner { return r.id }

// Name returns the realm name.
func (r *Realm) Name() string { return r.name }

// IsMain reports whether this is the main realm.
func (r *Realm) IsMain() bool { return r.main }

// State returns the lifecycle state.
func (r *Realm) State() State { return State(r.state.Load()) }

// OpCount returns the size of the op table. It is fixed at creation.
func (r *Realm) OpCount() int { return r.opCount }

func (r *Realm) mustBeActive(phase errors.Phase) {
	if s := r.State(); s != Active {
		panic(errors.Lifecycle(phase, r.name, "realm is "+s.String()))
	}
}

// Table returns the op table.
func (r *Realm) Table() *registry.Table {
	r.mustBeActive(errors.PhaseSubmit)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table
}

// Slots returns the realm's engine slots.
func (r *Realm) Slots() *resource.SlotTable {
	r.mustBeActive(errors.PhaseBinding)
	return r.slots
}

// Call dispatches one guest call through the op table.
//
// It returns the inline result and true when the call completed during dispatch;
// otherwise the invocation is pending and will be delivered through the host loop.
// An op id outside the table completes inline as a failed result. Once the
// driver is shut down a non-inline call is discarded and left untracked.
func (r *Realm) Call(ctx context.Context, op driver.OpID, id driver.InvocationID, args any) (driver.Result, bool) {
	c, inline, known := r.Invoke(ctx, op, id, args)
	if !known {
		return driver.Result{Value: errors.UnknownOp(r.name, uint32(op), r.opCount), Failed: true}, true
	}
	return c.Result, inline
}

// Invoke is Call for guest bindings that resolve inline results themselves.
// An inline completion carries the op's policy. known is false when op is
// outside the table; nothing is dispatched then.
func (r *Realm) Invoke(ctx context.Context, op driver.OpID, id driver.InvocationID, args any) (c driver.Completion, inline, known bool) {
	r.mustBeActive(errors.PhaseSubmit)

	r.mu.Lock()
	desc, ok := r.table.Get(op)
	if !ok {
		r.mu.Unlock()
		return driver.Completion{}, false, false
	}
	if _, dup := r.pending[id]; dup {
		r.mu.Unlock()
		panic(errors.DuplicateInvocation(uint32(op), uint32(id)))
	}
	// registered before dispatch so a fast delivery cannot race the bookkeeping
	r.pending[id] = struct{}{}
	r.mu.Unlock()

	sub := driver.Submission{Owner: r.id, ID: id, Op: op, Policy: desc.Policy}
	res, inline := r.dispatch(ctx, desc, sub, args)

	// a shut down driver discards the submission, so nothing will be delivered
	if inline || r.driver.IsShutdown() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}
	c = driver.Completion{Owner: r.id, ID: id, Op: op, Policy: desc.Policy, Result: res}
	return c, inline, true
}

func (r *Realm) dispatch(ctx context.Context, desc registry.Descriptor, sub driver.Submission, args any) (res driver.Result, inline bool) {
	completed := false
	defer func() {
		if !completed {
			// dispatch panicked; nothing was registered for this id
			r.mu.Lock()
			delete(r.pending, sub.ID)
			r.mu.Unlock()
		}
	}()
	res, inline = desc.Dispatch(ctx, r.driver, sub, args)
	completed = true
	return res, inline
}

// Deliver hands a completion from the host loop to this realm. The invocation
// leaves the pending and unreferenced sets and the resolver is called.
func (r *Realm) Deliver(c driver.Completion) {
	r.mustBeActive(errors.PhaseDeliver)
	if c.Owner != r.id {
		panic(errors.Lifecycle(errors.PhaseDeliver, r.name, "completion belongs to another realm"))
	}

	r.mu.Lock()
	_, known := r.pending[c.ID]
	delete(r.pending, c.ID)
	delete(r.unref, c.ID)
	resolve := r.resolver
	r.mu.Unlock()

	if !known {
		r.logger.Warn("delivery for invocation not pending in realm",
			zap.Uint32("invocation", uint32(c.ID)),
			zap.Uint32("op", uint32(c.Op)))
	}
	if resolve != nil {
		resolve(c)
	}
}

// Resolve hands c to the resolver without touching pending bookkeeping. Guest
// bindings use it for results completed inline.
func (r *Realm) Resolve(c driver.Completion) {
	r.mustBeActive(errors.PhaseDeliver)
	r.mu.Lock()
	resolve := r.resolver
	r.mu.Unlock()
	if resolve != nil {
		resolve(c)
	}
}

// SetResolver installs the guest binding's promise resolver.
func (r *Realm) SetResolver(fn Resolver) {
	r.mustBeActive(errors.PhaseBinding)
	r.mu.Lock()
	r.resolver = fn
	r.mu.Unlock()
}

// Unref marks a pending invocation as not keeping the host loop alive.
// Returns false if id is not pending.
func (r *Realm) Unref(id driver.InvocationID) bool {
	r.mustBeActive(errors.PhaseSubmit)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; !ok {
		return false
	}
	r.unref[id] = struct{}{}
	return true
}

// Ref undoes Unref. Returns false if id was not unreferenced.
func (r *Realm) Ref(id driver.InvocationID) bool {
	r.mustBeActive(errors.PhaseSubmit)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.unref[id]; !ok {
		return false
	}
	delete(r.unref, id)
	return true
}

// HasPending reports whether any invocation is pending.
func (r *Realm) HasPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending) > 0
}

// HasReferencedPending reports whether a pending invocation keeps the host loop alive.
func (r *Realm) HasReferencedPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending) > len(r.unref)
}

// PendingIDs returns pending invocation ids in ascending order.
func (r *Realm) PendingIDs() []driver.InvocationID {
	r.mu.Lock()
	ids := make([]driver.InvocationID, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// UnrefIDs returns unreferenced invocation ids in ascending order.
func (r *Realm) UnrefIDs() []driver.InvocationID {
	r.mu.Lock()
	ids := make([]driver.InvocationID, 0, len(r.unref))
	for id := range r.unref {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetCallback stores a callback owned by the realm. A nil fn removes it.
func (r *Realm) SetCallback(name string, fn any) {
	r.mustBeActive(errors.PhaseBinding)
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.callbacks, name)
		return
	}
	r.callbacks[name] = fn
}

// Callback returns a stored callback.
func (r *Realm) Callback(name string) (any, bool) {
	r.mustBeActive(errors.PhaseBinding)
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.callbacks[name]
	return fn, ok
}
