// Package dispatch splits an artifact into numbered units and submits one task
// per unit to a TaskQueue.
//
// A Dispatcher owns the lifecycle of every Session it creates. Submission
// failures are retried with bounded exponential backoff; exhausting the
// attempt ceiling for any unit marks the session failed and stops further
// submissions. The resulting Session exposes the closed set of sequence
// numbers the collector must wait for.
//
// Example:
//
//	d := dispatch.New(queue, dispatch.DefaultConfig(), dispatch.WithLogger(logger))
//	session, err := d.Dispatch(ctx, units, types.Directive{Operation: "invert"})
//	if err != nil {
//	    return err // wraps types.ErrSubmissionFailure
//	}
//	pending := session.Pending()
package dispatch
