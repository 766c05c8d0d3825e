// Package progress turns the stream of unit results into live progress numbers.
//
// An Aggregator owns every counter of a session: completed and failed units,
// retries, and the latency sample used for percentiles. It is fed only from
// the result stream. After each update it hands a snapshot to a Publisher,
// which writes the snapshot's fields to a ProgressSink in the background,
// keeping only the latest snapshot when the sink is slow.
//
// Publishing is best-effort: sink errors are logged at debug level and
// counted, never returned.
package progress
