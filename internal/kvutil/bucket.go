// Package kvutil provides create-or-open helpers for NATS JetStream resources.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// EnsureKVBucketWithRetry creates or opens a KV bucket with retry logic.
//
// Several processes (pipelines, workers, the CLI) may race to create the same
// bucket. Creation failing because the bucket exists falls through to opening
// it; other failures are retried with exponential backoff.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Last error after all attempts
//
// Example:
//
//	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket: "framepipe-progress",
//	    TTL:    time.Hour,
//	}, 3)
func EnsureKVBucketWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	return ensureWithRetry(ctx, "KV bucket "+config.Bucket, maxRetries,
		func() (jetstream.KeyValue, error) { return js.CreateKeyValue(ctx, config) },
		func() (jetstream.KeyValue, error) { return js.KeyValue(ctx, config.Bucket) },
	)
}

// EnsureObjectStoreWithRetry creates or opens an object store bucket with retry logic.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: Object store configuration
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.ObjectStore: The object store instance
//   - error: Last error after all attempts
func EnsureObjectStoreWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.ObjectStoreConfig,
	maxRetries int,
) (jetstream.ObjectStore, error) {
	return ensureWithRetry(ctx, "object store "+config.Bucket, maxRetries,
		func() (jetstream.ObjectStore, error) { return js.CreateObjectStore(ctx, config) },
		func() (jetstream.ObjectStore, error) { return js.ObjectStore(ctx, config.Bucket) },
	)
}

// EnsureStreamWithRetry creates or opens a stream with retry logic.
//
// An existing stream is opened as-is; its configuration is not updated.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: Stream configuration
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.Stream: The stream handle
//   - error: Last error after all attempts
func EnsureStreamWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.StreamConfig,
	maxRetries int,
) (jetstream.Stream, error) {
	return ensureWithRetry(ctx, "stream "+config.Name, maxRetries,
		func() (jetstream.Stream, error) { return js.CreateStream(ctx, config) },
		func() (jetstream.Stream, error) { return js.Stream(ctx, config.Name) },
	)
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, jetstream.ErrBucketExists) ||
		errors.Is(err, jetstream.ErrStreamNameAlreadyInUse)
}

func ensureWithRetry[T any](
	ctx context.Context,
	what string,
	maxRetries int,
	create func() (T, error),
	open func() (T, error),
) (T, error) {
	var zero T
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := create()
		if err == nil {
			return res, nil
		}

		if isAlreadyExists(err) {
			res, err = open()
			if err == nil {
				return res, nil
			}
			lastErr = fmt.Errorf("%s exists but failed to open: %w", what, err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return zero, fmt.Errorf("context cancelled while ensuring %s: %w", what, ctx.Err())
		}

		// Exponential backoff: 10ms, 20ms, 40ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return zero, fmt.Errorf("failed to create/open %s after %d attempts: %w", what, maxRetries, lastErr)
}
