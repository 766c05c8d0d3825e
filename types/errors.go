package types

import "errors"

// Sentinel errors for the framepipe library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Pipeline, Dispatcher, Collector, etc.)
//   - Use consistent messages across similar error types

// Pipeline errors - Public API errors returned by the Pipeline.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrQueueRequired is returned when the task queue is nil.
	ErrQueueRequired = errors.New("task queue is required")

	// ErrStoreRequired is returned when the result store is nil.
	ErrStoreRequired = errors.New("result store is required")

	// ErrWriterRequired is returned when the output writer is nil.
	ErrWriterRequired = errors.New("output writer is required")

	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionAborted is returned when a session is stopped before every unit resolved.
	ErrSessionAborted = errors.New("session aborted")
)

// Dispatcher errors.
var (
	// ErrSubmissionFailure is returned when the task queue rejected a unit after all retries.
	// It is the only session-fatal error kind.
	ErrSubmissionFailure = errors.New("task submission failed")

	// ErrEmptyArtifact is returned when an artifact has no units.
	ErrEmptyArtifact = errors.New("artifact has no units")

	// ErrInvalidTransition is returned when a session state change is not allowed.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// Collector errors. These are carried by failed UnitResults, never returned.
var (
	// ErrUnitTimeout indicates a unit's store keys did not appear before its deadline.
	ErrUnitTimeout = errors.New("unit timed out")

	// ErrMalformedMetadata indicates a unit's metadata record could not be parsed.
	ErrMalformedMetadata = errors.New("malformed unit metadata")

	// ErrStoreUnavailable indicates a transient result store error.
	ErrStoreUnavailable = errors.New("result store unavailable")

	// ErrWorkerFailed indicates the worker recorded an error in the unit's metadata.
	ErrWorkerFailed = errors.New("worker reported failure")
)

// Reorder buffer errors.
var (
	// ErrUnitMissing indicates a unit never resolved before the session ended.
	ErrUnitMissing = errors.New("unit missing")
)

// Worker runtime errors.
var (
	// ErrUnknownOperation is returned when a directive names an unregistered operation.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrIDClaimFailed is returned when stable ID claiming fails.
	ErrIDClaimFailed = errors.New("failed to claim stable worker ID")

	// ErrAlreadyStarted is returned when Start is called on a running component.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when operations require a started component.
	ErrNotStarted = errors.New("not started")
)
