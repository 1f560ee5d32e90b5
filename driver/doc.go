// Package driver multiplexes native asynchronous operations submitted on behalf of
// guest code and reports their completions one at a time.
//
// The driver is the only component that watches native futures. Guest bindings
// submit work with Submit or SubmitFallible and receive either an inline result
// (Eager policy, future already complete) or nothing, in which case the result
// surfaces later through PollReady.
//
// # Scheduling Policies
//
//	Eager     poll once at submission; deliver inline when already complete
//	Lazy      never inline; delivered through PollReady
//	Deferred  never inline; surfaced ahead of Lazy when both are ready
//
// Among completions that are ready when PollReady runs, Eager submissions that
// could not complete inline come first, then Deferred, then Lazy. Within a class
// the completion order is kept.
//
// # Delivery
//
// Every submission is delivered at most once and, unless Shutdown is called,
// exactly once. Results are mapped at delivery time, not at submission time:
//
//	d := driver.New()
//	sub := driver.Submission{Owner: owner, ID: 1, Op: 7, Policy: driver.Lazy}
//	if _, inline := driver.Submit(d, sub, driver.Resolved("1"), nil); !inline {
//	    c, err := d.PollReady(ctx) // c.ID == 1, c.Result.Value == "1"
//	}
//
// # Shutdown
//
// Shutdown is idempotent and irreversible. Pending records are dropped, watchers
// stop, and PollReady never resolves again. Native work that is already running
// is not aborted; its output is discarded.
//
// # Thread Safety
//
// Driver and Pool are safe for concurrent use. Stats can be called while another
// goroutine is blocked in PollReady.
package driver
