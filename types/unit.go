package types

import (
	"errors"
	"fmt"
	"time"
)

// UnknownValue is the placeholder used for metadata fields a worker did not report.
const UnknownValue = "unknown"

// Directive names the operation a worker applies to a unit, plus its parameters.
type Directive struct {
	Operation string            `json:"operation" yaml:"operation"`
	Params    map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// UnitTask is one unit of work submitted to the task queue.
//
// Tasks are created by the dispatcher and never mutated afterwards. Seq is
// zero-based and dense within a session.
type UnitTask struct {
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Payload   []byte    `json:"payload,omitempty"`
	Digest    uint64    `json:"digest"`
	Directive Directive `json:"directive"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the stable identity of the task, "<session>.<seq>".
func (t UnitTask) Key() string {
	return UnitKey(t.SessionID, t.Seq)
}

// UnitKey formats the stable identity of a unit within a session.
func UnitKey(sessionID string, seq int) string {
	return fmt.Sprintf("%s.%06d", sessionID, seq)
}

// Outcome is the terminal outcome of a unit.
type Outcome int

const (
	// OutcomeSuccess means the artifact and metadata were both found.
	OutcomeSuccess Outcome = iota

	// OutcomeFailure means the unit timed out, the worker reported an error, or the unit never resolved.
	OutcomeFailure
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Metadata is the JSON record a worker writes next to each artifact.
type Metadata struct {
	DurationMS float64 `json:"duration_ms"`
	WorkerID   string  `json:"worker_id"`
	Hostname   string  `json:"hostname,omitempty"`
	Operation  string  `json:"operation"`
	MemoryMB   float64 `json:"memory_mb"`
	Error      string  `json:"error,omitempty"`
}

// DefaultMetadata returns the record used when a worker's metadata cannot be parsed.
func DefaultMetadata() Metadata {
	return Metadata{
		WorkerID:  UnknownValue,
		Hostname:  UnknownValue,
		Operation: UnknownValue,
	}
}

// UnitResult is the resolved outcome of a single unit.
//
// A result is produced exactly once per pending unit by the collector, or
// synthesized by the reorder buffer for units that never resolved.
type UnitResult struct {
	SessionID   string
	Seq         int
	Outcome     Outcome
	ArtifactRef string
	Metadata    Metadata
	Err         error
	Degraded    bool
	Waited      time.Duration
	ResolvedAt  time.Time
}

// Succeeded reports whether the unit produced a usable artifact.
func (r UnitResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// TimedOut reports whether the unit failed because its deadline elapsed.
func (r UnitResult) TimedOut() bool {
	return errors.Is(r.Err, ErrUnitTimeout)
}

// Missing reports whether the unit never resolved before the session ended.
func (r UnitResult) Missing() bool {
	return errors.Is(r.Err, ErrUnitMissing)
}

// StoreEntry describes what the result store currently holds for one unit.
type StoreEntry struct {
	ArtifactPresent bool
	MetadataPresent bool
	Metadata        []byte
	ArtifactRef     string
}

// Ready reports whether both keys exist. An artifact without metadata is not ready.
func (e StoreEntry) Ready() bool {
	return e.ArtifactPresent && e.MetadataPresent
}

// OutputEntry is one slot of the ordered output handed to a Writer.
//
// Data holds the artifact for successful units, or the fallback value when
// Fallback is set.
type OutputEntry struct {
	Seq      int
	Data     []byte
	Fallback bool
	Missing  bool
	Result   UnitResult
}
