// Package source provides built-in unit source implementations.
//
// Unit sources split an artifact into the ordered units a session
// dispatches. The package includes:
//
//   - Static: Fixed list of units
//   - Chunked: Fixed-size chunks read from an io.Reader
//   - Dir: One unit per file in a directory, in name order
//
// Custom sources can be implemented by satisfying the types.UnitSource interface.
package source
