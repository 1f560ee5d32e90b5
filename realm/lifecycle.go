package realm

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/opcore/errors"
)

// Ref is a strong external holder of a realm.
type Ref struct {
	realm *Realm
	once  sync.Once
}

// Acquire takes a new external holder.
func (r *Realm) Acquire() *Ref {
	r.mustBeActive(errors.PhaseBinding)
	r.holders.Add(1)
	return &Ref{realm: r}
}

// Holders returns the current holder count, internal holders included.
func (r *Realm) Holders() int {
	return int(r.holders.Load())
}

// Realm returns the held realm.
func (ref *Ref) Realm() *Realm {
	return ref.realm
}

// Release drops the holder. Releasing the last external holder of a non-main
// realm tears it down. Extra calls are no-ops.
func (ref *Ref) Release() {
	ref.once.Do(func() {
		r := ref.realm
		n := r.holders.Add(-1)
		if n > internalHolders || r.main {
			return
		}
		if err := r.teardown(); err != nil {
			r.logger.Warn("realm teardown released with errors", zap.Error(err))
		}
	})
}

// Close tears the realm down regardless of holders. The runtime uses it at
// shutdown and for the main realm. Closing a destroyed realm is a no-op.
func (r *Realm) Close() error {
	return r.teardown()
}

// teardown runs the ordered release. Only the first caller does the work.
func (r *Realm) teardown() error {
	if !r.state.CompareAndSwap(int32(Active), int32(Destroying)) {
		return nil
	}
	r.logger.Debug("realm teardown started", zap.Bool("main", r.main))

	// 1. callbacks; these can hold the realm itself
	r.mu.Lock()
	n := len(r.callbacks)
	r.callbacks = nil
	r.resolver = nil
	r.reporter = nil
	r.mu.Unlock()
	r.logger.Debug("realm teardown step", zap.String("step", "callbacks"), zap.Int("released", n))

	// 2. op table
	r.mu.Lock()
	r.table = nil
	r.mu.Unlock()
	r.logger.Debug("realm teardown step", zap.String("step", "table"))

	// 3. engine slots
	var errs error
	if err := r.slots.Close(); err != nil {
		errs = multierr.Append(errs, errors.Wrap(errors.PhaseTeardown, errors.KindLifecycle, err, "close engine slots"))
	}
	r.logger.Debug("realm teardown step", zap.String("step", "slots"))

	// 4. identity; anything still pending is orphaned
	r.mu.Lock()
	orphaned := len(r.pending)
	r.pending = nil
	r.unref = nil
	r.rejections = nil
	onDestroy := r.onDestroy
	r.onDestroy = nil
	r.mu.Unlock()
	if onDestroy != nil {
		onDestroy(r)
	}
	r.state.Store(int32(Destroyed))
	r.logger.Debug("realm teardown step", zap.String("step", "identity"), zap.Int("orphaned", orphaned))

	return errs
}
