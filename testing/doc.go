// Package testing provides test utilities for the framepipe library.
//
// It offers an embedded JetStream server for integration tests and in-memory
// implementations of the pipeline's external collaborators, in the spirit of
// net/http/httptest.
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateJetStreamKV / CreateObjectStore: Bucket helpers
//   - MemoryStore: In-memory ResultStore and ResultWriter
//   - MemoryQueue: In-memory TaskQueue with failure injection
//   - MemorySink: In-memory ProgressSink recording every write
//   - RecordingWriter: Writer that keeps the ordered output
//
// Example usage:
//
//	import (
//	    "testing"
//	    fptest "github.com/arloliu/framepipe/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    store := fptest.NewMemoryStore()
//	    _, nc := fptest.StartEmbeddedNATS(t)
//	}
package testing
