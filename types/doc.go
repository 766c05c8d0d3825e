// Package types provides core type definitions and interfaces for the framepipe library.
//
// This package contains shared types that are used across multiple packages in the
// framepipe library. By keeping these types in a separate package, we avoid import cycles
// between the main framepipe package and its internal implementations.
//
// Key types:
//   - SessionState: Session lifecycle state
//   - UnitTask: One unit of work submitted to the task queue
//   - UnitResult: Resolved outcome of a single unit
//   - ProgressSnapshot: Point-in-time progress of a session
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
