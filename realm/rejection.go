package realm

import (
	"go.uber.org/zap"

	"github.com/wippyai/opcore/errors"
)

// QueueRejection records an unhandled promise rejection.
func (r *Realm) QueueRejection(promise, reason any) {
	r.mustBeActive(errors.PhaseRejection)
	r.mu.Lock()
	r.rejections = append(r.rejections, Rejection{Promise: promise, Reason: reason})
	r.mu.Unlock()
}

// PendingRejections returns the queue length.
func (r *Realm) PendingRejections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rejections)
}

// SetSessionsBlocking is set by the inspector while a session holds execution
// paused. Rejections are not drained while it is set.
func (r *Realm) SetSessionsBlocking(blocking bool) {
	r.blocking.Store(blocking)
}

// SessionsBlocking reports whether rejection draining is deferred.
func (r *Realm) SessionsBlocking() bool {
	return r.blocking.Load()
}

// CheckPendingRejections pops the oldest unhandled rejection and reports it once.
// The reporter's error is returned: it is the uncaught-in-promise exception.
// Nothing is drained while an inspector session is blocking.
func (r *Realm) CheckPendingRejections() error {
	r.mustBeActive(errors.PhaseRejection)
	if r.blocking.Load() {
		return nil
	}

	r.mu.Lock()
	if len(r.rejections) == 0 {
		r.mu.Unlock()
		return nil
	}
	rej := r.rejections[0]
	r.rejections[0] = Rejection{}
	r.rejections = r.rejections[1:]
	if len(r.rejections) == 0 {
		r.rejections = nil
	}
	report := r.reporter
	r.mu.Unlock()

	if report == nil {
		return nil
	}
	err := report(r, rej)
	if err != nil {
		r.logger.Debug("unhandled rejection reported", zap.Error(err))
	}
	return err
}
