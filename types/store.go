package types

import "context"

// ResultStore is the read side of the shared result store.
//
// Each unit has two write-once keys: an artifact blob and a JSON metadata
// record. Readers only ever observe a key going from absent to present.
type ResultStore interface {
	// Lookup reports which of the unit's keys are present.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - sessionID: Session identifier
	//   - seq: Unit sequence number
	//
	// Returns:
	//   - StoreEntry: Presence flags and the raw metadata bytes when present
	//   - error: Transient store error, wrapping ErrStoreUnavailable
	Lookup(ctx context.Context, sessionID string, seq int) (StoreEntry, error)

	// ReadArtifact returns the artifact bytes for a unit.
	//
	// Returns:
	//   - []byte: Artifact content
	//   - error: ErrUnitMissing when the artifact is absent, or a store error
	ReadArtifact(ctx context.Context, sessionID string, seq int) ([]byte, error)
}

// ResultWriter is the worker side of the shared result store.
//
// Workers write the artifact first and the metadata second, so the presence
// of metadata implies a complete pair.
type ResultWriter interface {
	// PutArtifact stores the processed artifact for a unit.
	PutArtifact(ctx context.Context, sessionID string, seq int, data []byte) error

	// PutMetadata stores the metadata record for a unit.
	PutMetadata(ctx context.Context, sessionID string, seq int, md Metadata) error
}
