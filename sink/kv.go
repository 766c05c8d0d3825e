package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/framepipe/internal/kvutil"
	"github.com/arloliu/framepipe/types"
)

// DefaultKVBucket is the progress bucket name used when none is configured.
const DefaultKVBucket = "framepipe-progress"

// KVConfig describes the progress bucket.
type KVConfig struct {
	// Bucket is the KV bucket name.
	Bucket string

	// TTL expires progress fields of finished sessions (0 = keep forever).
	TTL time.Duration
}

// KV is a ProgressSink backed by a JetStream key-value bucket.
type KV struct {
	kv jetstream.KeyValue
}

var _ types.ProgressSink = (*KV)(nil)

// NewKV wraps an existing bucket.
func NewKV(kv jetstream.KeyValue) *KV {
	return &KV{kv: kv}
}

// OpenKV creates or opens the progress bucket.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - cfg: Bucket name and TTL; an empty name selects DefaultKVBucket
//
// Returns:
//   - *KV: Sink bound to the bucket
//   - error: Bucket creation error
func OpenKV(ctx context.Context, js jetstream.JetStream, cfg KVConfig) (*KV, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultKVBucket
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "framepipe session progress",
		TTL:         cfg.TTL,
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("open progress bucket: %w", err)
	}

	return NewKV(kv), nil
}

// Key returns the bucket key of a progress field.
func Key(sessionID, field string) string {
	return sessionID + "." + field
}

// ParseKey splits a bucket key into session ID and field.
func ParseKey(key string) (sessionID, field string, ok bool) {
	idx := strings.LastIndexByte(key, '.')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}

	return key[:idx], key[idx+1:], true
}

// Set stores one progress field.
func (s *KV) Set(ctx context.Context, sessionID, field, value string) error {
	if _, err := s.kv.Put(ctx, Key(sessionID, field), []byte(value)); err != nil {
		return fmt.Errorf("put progress field %s: %w", field, err)
	}

	return nil
}

// Get returns one progress field.
//
// Returns:
//   - string: Field value
//   - bool: False when the field was never written or has expired
//   - error: Bucket error
func (s *KV) Get(ctx context.Context, sessionID, field string) (string, bool, error) {
	entry, err := s.kv.Get(ctx, Key(sessionID, field))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", false, nil
		}

		return "", false, err
	}

	return string(entry.Value()), true, nil
}

// Fields returns every progress field of a session.
func (s *KV) Fields(ctx context.Context, sessionID string) (map[string]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return map[string]string{}, nil
		}

		return nil, err
	}

	fields := make(map[string]string)
	for _, key := range keys {
		id, field, ok := ParseKey(key)
		if !ok || id != sessionID {
			continue
		}

		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}

			return nil, err
		}
		fields[field] = string(entry.Value())
	}

	return fields, nil
}

// Watch streams updates to every field of a session. An empty session ID
// watches all sessions.
func (s *KV) Watch(ctx context.Context, sessionID string) (jetstream.KeyWatcher, error) {
	if sessionID == "" {
		return s.kv.WatchAll(ctx)
	}

	return s.kv.Watch(ctx, sessionID+".*")
}
