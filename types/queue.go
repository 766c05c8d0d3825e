package types

import "context"

// TaskQueue accepts unit-processing jobs.
//
// Delivery to workers is at-least-once and unordered. Submit must be safe to
// call again for the same task after an ambiguous failure such as an ack timeout.
type TaskQueue interface {
	// Submit enqueues one unit task.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - task: Task to enqueue
	//
	// Returns:
	//   - error: Submission error (nil when the queue acknowledged the task)
	Submit(ctx context.Context, task UnitTask) error
}
