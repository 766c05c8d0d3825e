package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	DispatchMetrics
	CollectorMetrics
	ReorderMetrics
	ProgressMetrics
	WorkerMetrics
}

// DispatchMetrics defines metrics for session dispatch operations.
type DispatchMetrics interface {
	// RecordSubmission records a single task submission attempt.
	//
	// Parameters:
	//   - success: true if the queue acknowledged the task
	//   - duration: Time taken in seconds
	RecordSubmission(success bool, duration float64)

	// RecordSubmitRetry records a submission retry after a failed attempt.
	RecordSubmitRetry()

	// RecordSessionTransition records a session state change.
	//
	// Parameters:
	//   - from: Previous state
	//   - to: New state
	RecordSessionTransition(from, to SessionState)
}

// CollectorMetrics defines metrics for result collection.
type CollectorMetrics interface {
	// SetActiveWatchers sets the number of units currently being polled (gauge metric).
	SetActiveWatchers(count int)

	// RecordStorePoll records a single store lookup.
	//
	// Parameters:
	//   - success: false when the store returned an error
	//   - duration: Time taken in seconds
	RecordStorePoll(success bool, duration float64)

	// RecordUnitResolved records a resolved unit.
	//
	// Parameters:
	//   - outcome: "success" or "failure"
	//   - waited: Time from watch start to resolution in seconds
	RecordUnitResolved(outcome string, waited float64)

	// RecordDegradedMetadata records a unit whose metadata could not be parsed.
	RecordDegradedMetadata()
}

// ReorderMetrics defines metrics for the reorder buffer.
type ReorderMetrics interface {
	// SetReorderBuffered sets the number of results held back awaiting earlier units (gauge metric).
	SetReorderBuffered(count int)

	// RecordDuplicateResult records a discarded duplicate arrival.
	RecordDuplicateResult()

	// RecordMissingUnit records a gap reported when a session is finalized.
	RecordMissingUnit()
}

// ProgressMetrics defines metrics for progress aggregation and publishing.
type ProgressMetrics interface {
	// RecordProcessingDuration records a worker-reported processing duration.
	//
	// Parameters:
	//   - operation: Operation name from the unit's metadata
	//   - duration: Processing time in seconds
	RecordProcessingDuration(operation string, duration float64)

	// RecordSinkPublish records a progress sink publish attempt.
	RecordSinkPublish(success bool)
}

// WorkerMetrics defines metrics for the reference worker runtime.
//
// These metrics are recorded by individual workers, not by the pipeline.
type WorkerMetrics interface {
	// RecordHeartbeat records a heartbeat event from an individual worker.
	//
	// Parameters:
	//   - workerID: The ID of the worker publishing the heartbeat
	//   - success: true if heartbeat was successfully published, false otherwise
	RecordHeartbeat(workerID string, success bool)

	// RecordUnitProcessed records a unit handled by a worker.
	//
	// Parameters:
	//   - operation: Operation applied
	//   - success: false when the operation failed
	RecordUnitProcessed(operation string, success bool)
}
