package framepipe

import "github.com/arloliu/framepipe/types"

// Re-export types from the internal types package.
//
// This file provides a stable public API for the library's core types and
// interfaces. It uses type aliases to re-export definitions from the `types`
// subpackage, so internal packages can depend on `types` without depending on
// the root `framepipe` package.
type (
	SessionState     = types.SessionState
	SessionInfo      = types.SessionInfo
	Directive        = types.Directive
	UnitTask         = types.UnitTask
	UnitResult       = types.UnitResult
	Outcome          = types.Outcome
	Metadata         = types.Metadata
	OutputEntry      = types.OutputEntry
	ProgressSnapshot = types.ProgressSnapshot
	Summary          = types.Summary
	FallbackFunc     = types.FallbackFunc
)

// Re-export interfaces from the internal types package for convenience.
type (
	UnitSource       = types.UnitSource
	TaskQueue        = types.TaskQueue
	ResultStore      = types.ResultStore
	ResultWriter     = types.ResultWriter
	ProgressSink     = types.ProgressSink
	Writer           = types.Writer
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export SessionState and Outcome constants from the internal types package.
const (
	SessionActive    = types.SessionActive
	SessionCompleted = types.SessionCompleted
	SessionFailed    = types.SessionFailed
	SessionAborted   = types.SessionAborted

	OutcomeSuccess = types.OutcomeSuccess
	OutcomeFailure = types.OutcomeFailure
)

// Progress field names written to a ProgressSink.
const (
	FieldStatus      = types.FieldStatus
	FieldTotalUnits  = types.FieldTotalUnits
	FieldProgressPct = types.FieldProgressPct
	FieldUnitsDone   = types.FieldUnitsDone
	FieldUnitsFailed = types.FieldUnitsFailed
	FieldThroughput  = types.FieldThroughput
	FieldETASeconds  = types.FieldETASeconds
)
