package runtime

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/realm"
	"github.com/wippyai/opcore/registry"
	"github.com/wippyai/opcore/resource"
)

const tracerName = "github.com/wippyai/opcore/runtime"

// Runtime is the context set plus the host loop.
type Runtime struct {
	driver    *driver.Driver
	pool      *driver.Pool
	tracer    trace.Tracer
	logger    *zap.Logger
	metrics   *metrics
	reporter  realm.Reporter
	main      *realm.Realm
	realms    map[driver.Owner]*realm.Realm
	mu        sync.RWMutex
	routed    atomic.Uint64
	orphaned  atomic.Uint64
	slots     atomic.Int64
	closeOnce sync.Once
	closed    atomic.Bool
}

// Summary is a point-in-time view of the runtime.
type Summary struct {
	Realms   int
	Pending  int
	Routed   uint64
	Orphaned uint64
	Slots    int64
	Running  int
	Queued   int
}

// New creates a runtime with its main realm.
func New(opts ...Option) (*Runtime, error) {
	cfg := config{logger: Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	dopts := []driver.Option{driver.WithLogger(cfg.logger.Named("driver"))}
	var m *metrics
	if cfg.registry != nil {
		dm, err := driver.NewMetrics(cfg.registry)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseRegistry, errors.KindRegistration, err, "register driver metrics")
		}
		dopts = append(dopts, driver.WithMetrics(dm))
		if m, err = newMetrics(cfg.registry); err != nil {
			return nil, errors.Wrap(errors.PhaseRegistry, errors.KindRegistration, err, "register runtime metrics")
		}
	}

	tp := cfg.tracing
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	pool := cfg.pool
	if pool == nil {
		pool = driver.NewPool(cfg.poolSize)
		pool.SetLogger(cfg.logger.Named("pool"))
	}

	rt := &Runtime{
		driver:   driver.New(dopts...),
		pool:     pool,
		tracer:   tp.Tracer(tracerName),
		logger:   cfg.logger,
		metrics:  m,
		reporter: cfg.reporter,
		realms:   make(map[driver.Owner]*realm.Realm),
	}
	rt.main = rt.create(MainRealmName, cfg.mainTable, true)
	return rt, nil
}

// MustNew is like New but panics on error.
func MustNew(opts ...Option) *Runtime {
	rt, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return rt
}

func (rt *Runtime) create(name string, table *registry.Table, main bool) *realm.Realm {
	r := realm.New(realm.Config{
		ID:        uuid.New(),
		Name:      name,
		Main:      main,
		Driver:    rt.driver,
		Table:     table,
		Logger:    rt.logger.Named("realm"),
		Reporter:  rt.reporter,
		OnDestroy: rt.forget,
	})

	r.Slots().Subscribe(rt.slotObserver(r.Name()))

	rt.mu.Lock()
	rt.realms[r.ID()] = r
	n := len(rt.realms)
	rt.mu.Unlock()
	rt.metrics.setRealms(n)

	rt.logger.Debug("realm created",
		zap.String("realm", name),
		zap.Stringer("id", r.ID()),
		zap.Int("ops", r.OpCount()))
	return r
}

func (rt *Runtime) forget(r *realm.Realm) {
	rt.mu.Lock()
	delete(rt.realms, r.ID())
	n := len(rt.realms)
	rt.mu.Unlock()
	rt.metrics.setRealms(n)
	rt.logger.Debug("realm destroyed", zap.String("realm", r.Name()), zap.Stringer("id", r.ID()))
}

// slotObserver tracks engine slots of one realm. Drops during teardown step 3
// arrive here before the realm is forgotten.
func (rt *Runtime) slotObserver(name string) resource.Observer {
	return resource.ObserverFunc(func(e resource.Event) {
		switch e.Type {
		case resource.EventCreated:
			rt.slots.Add(1)
			rt.metrics.addSlots(1)
		case resource.EventDropped:
			rt.slots.Add(-1)
			rt.metrics.addSlots(-1)
			rt.logger.Debug("engine slot dropped",
				zap.String("realm", name),
				zap.Uint32("handle", uint32(e.Handle)),
				zap.Uint32("kind", uint32(e.Kind)))
		}
	})
}

// Driver returns the operation driver shared by every realm.
func (rt *Runtime) Driver() *driver.Driver { return rt.driver }

// Pool returns the native pool ops should spawn their work on.
func (rt *Runtime) Pool() *driver.Pool { return rt.pool }

// MainRealm returns the main realm.
func (rt *Runtime) MainRealm() *realm.Realm { return rt.main }

// NewRealm creates a realm and returns its only external holder.
func (rt *Runtime) NewRealm(name string, table *registry.Table) (*realm.Ref, error) {
	if rt.closed.Load() {
		return nil, errors.Lifecycle(errors.PhaseSubmit, name, "runtime closed")
	}
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseSubmit, "realm name cannot be empty")
	}
	return rt.create(name, table, false).Acquire(), nil
}

// Realm looks up a live realm by identity.
func (rt *Runtime) Realm(id driver.Owner) (*realm.Realm, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	r, ok := rt.realms[id]
	return r, ok
}

// Realms returns the live realms, main first, then by name.
func (rt *Runtime) Realms() []*realm.Realm {
	rt.mu.RLock()
	out := make([]*realm.Realm, 0, len(rt.realms))
	for _, r := range rt.realms {
		out = append(out, r)
	}
	rt.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsMain() != out[j].IsMain() {
			return out[i].IsMain()
		}
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

// Stats lists undelivered submissions, skipping the excluded ops.
func (rt *Runtime) Stats(excluded ...driver.OpID) []driver.PendingStat {
	return rt.driver.Stats(excluded...)
}

// Summary returns counters for monitoring.
func (rt *Runtime) Summary() Summary {
	rt.mu.RLock()
	n := len(rt.realms)
	rt.mu.RUnlock()
	return Summary{
		Realms:   n,
		Pending:  rt.driver.Len(),
		Routed:   rt.routed.Load(),
		Orphaned: rt.orphaned.Load(),
		Slots:    rt.slots.Load(),
		Running:  rt.pool.Running(),
		Queued:   rt.pool.Queued(),
	}
}

// Close shuts the driver down and destroys every realm, main last.
// Pending results are dropped. Later calls return nil.
func (rt *Runtime) Close() error {
	var errs error
	rt.closeOnce.Do(func() {
		rt.closed.Store(true)
		rt.driver.Shutdown()

		for _, r := range rt.Realms() {
			if r.IsMain() {
				continue
			}
			errs = multierr.Append(errs, r.Close())
		}
		errs = multierr.Append(errs, rt.main.Close())
		rt.logger.Debug("runtime closed", zap.Error(errs))
	})
	return errs
}
