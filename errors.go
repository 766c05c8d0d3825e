package framepipe

import "github.com/arloliu/framepipe/types"

// Sentinel errors re-exported from the types package.
//
// Collector errors (ErrUnitTimeout, ErrMalformedMetadata, ErrStoreUnavailable,
// ErrWorkerFailed) and ErrUnitMissing are carried by failed UnitResults, never
// returned by Process. Only ErrSubmissionFailure ends a session early.
var (
	ErrInvalidConfig     = types.ErrInvalidConfig
	ErrQueueRequired     = types.ErrQueueRequired
	ErrStoreRequired     = types.ErrStoreRequired
	ErrWriterRequired    = types.ErrWriterRequired
	ErrSessionNotFound   = types.ErrSessionNotFound
	ErrSessionAborted    = types.ErrSessionAborted
	ErrSubmissionFailure = types.ErrSubmissionFailure
	ErrEmptyArtifact     = types.ErrEmptyArtifact
	ErrUnitTimeout       = types.ErrUnitTimeout
	ErrMalformedMetadata = types.ErrMalformedMetadata
	ErrStoreUnavailable  = types.ErrStoreUnavailable
	ErrWorkerFailed      = types.ErrWorkerFailed
	ErrUnitMissing       = types.ErrUnitMissing
)
