package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/framepipe/internal/kvutil"
	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/internal/natsutil"
	"github.com/arloliu/framepipe/types"
)

// Default bucket names.
const (
	DefaultArtifactBucket = "framepipe-artifacts"
	DefaultMetadataBucket = "framepipe-metadata"
)

// JetStreamConfig names the buckets backing a JetStream store.
type JetStreamConfig struct {
	ArtifactBucket string
	MetadataBucket string

	// TTL expires unit results (0 = keep forever).
	TTL time.Duration
}

// Option configures a JetStream store.
type Option func(*JetStream)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(s *JetStream) {
		s.logger = logger
	}
}

// JetStream is a result store on a JetStream Object Store and KV bucket.
type JetStream struct {
	obj    jetstream.ObjectStore
	kv     jetstream.KeyValue
	logger types.Logger
}

var (
	_ types.ResultStore  = (*JetStream)(nil)
	_ types.ResultWriter = (*JetStream)(nil)
)

// NewJetStream wraps existing buckets.
func NewJetStream(obj jetstream.ObjectStore, kv jetstream.KeyValue, opts ...Option) *JetStream {
	s := &JetStream{obj: obj, kv: kv, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// OpenJetStream creates or opens both buckets.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - cfg: Bucket names (empty names select the defaults) and TTL
//   - opts: Optional configuration
//
// Returns:
//   - *JetStream: Store bound to the buckets
//   - error: Bucket creation error
func OpenJetStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig, opts ...Option) (*JetStream, error) {
	if cfg.ArtifactBucket == "" {
		cfg.ArtifactBucket = DefaultArtifactBucket
	}
	if cfg.MetadataBucket == "" {
		cfg.MetadataBucket = DefaultMetadataBucket
	}

	obj, err := kvutil.EnsureObjectStoreWithRetry(ctx, js, jetstream.ObjectStoreConfig{
		Bucket:      cfg.ArtifactBucket,
		Description: "framepipe unit artifacts",
		TTL:         cfg.TTL,
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("open artifact bucket: %w", err)
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.MetadataBucket,
		Description: "framepipe unit metadata",
		TTL:         cfg.TTL,
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("open metadata bucket: %w", err)
	}

	return NewJetStream(obj, kv, opts...), nil
}

// ObjectName returns the artifact object name of a unit.
func ObjectName(sessionID string, seq int) string {
	return fmt.Sprintf("%s/%06d", sessionID, seq)
}

// PutArtifact stores the artifact unless one already exists.
//
// Object Store puts are not conditional, so two workers racing on the same
// unit may both write. Units are derived deterministically, so either copy is
// a valid result.
func (s *JetStream) PutArtifact(ctx context.Context, sessionID string, seq int, data []byte) error {
	name := ObjectName(sessionID, seq)

	if _, err := s.obj.GetInfo(ctx, name); err == nil {
		s.logger.Debug("artifact already stored", "session_id", sessionID, "seq", seq)
		return nil
	} else if !errors.Is(err, jetstream.ErrObjectNotFound) {
		return classify("stat artifact", err)
	}

	if _, err := s.obj.PutBytes(ctx, name, data); err != nil {
		return classify("put artifact", err)
	}

	return nil
}

// PutMetadata stores the metadata record. The first write wins.
func (s *JetStream) PutMetadata(ctx context.Context, sessionID string, seq int, md types.Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if _, err := s.kv.Create(ctx, types.UnitKey(sessionID, seq), raw); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			s.logger.Debug("metadata already stored", "session_id", sessionID, "seq", seq)
			return nil
		}

		return classify("create metadata", err)
	}

	return nil
}

// Lookup reports which keys exist for a unit. Connectivity errors wrap
// ErrStoreUnavailable.
func (s *JetStream) Lookup(ctx context.Context, sessionID string, seq int) (types.StoreEntry, error) {
	entry := types.StoreEntry{ArtifactRef: ObjectName(sessionID, seq)}

	kvEntry, err := s.kv.Get(ctx, types.UnitKey(sessionID, seq))
	switch {
	case err == nil:
		entry.MetadataPresent = true
		entry.Metadata = kvEntry.Value()
	case !natsutil.IsNotFound(err):
		return types.StoreEntry{}, classify("get metadata", err)
	}

	_, err = s.obj.GetInfo(ctx, entry.ArtifactRef)
	switch {
	case err == nil:
		entry.ArtifactPresent = true
	case !natsutil.IsNotFound(err):
		return types.StoreEntry{}, classify("stat artifact", err)
	}

	return entry, nil
}

// ReadArtifact returns the artifact bytes of a unit.
func (s *JetStream) ReadArtifact(ctx context.Context, sessionID string, seq int) ([]byte, error) {
	data, err := s.obj.GetBytes(ctx, ObjectName(sessionID, seq))
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, fmt.Errorf("unit %d: %w", seq, types.ErrUnitMissing)
		}

		return nil, classify("get artifact", err)
	}

	return data, nil
}

// Purge deletes every artifact and metadata record of a session.
func (s *JetStream) Purge(ctx context.Context, sessionID string) error {
	objects, err := s.obj.List(ctx)
	if err != nil && !errors.Is(err, jetstream.ErrNoObjectsFound) {
		return classify("list artifacts", err)
	}
	for _, info := range objects {
		if !strings.HasPrefix(info.Name, sessionID+"/") {
			continue
		}
		if err := s.obj.Delete(ctx, info.Name); err != nil && !natsutil.IsNotFound(err) {
			return classify("delete artifact", err)
		}
	}

	keys, err := s.kv.Keys(ctx)
	if err != nil && !errors.Is(err, jetstream.ErrNoKeysFound) {
		return classify("list metadata", err)
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, sessionID+".") {
			continue
		}
		if err := s.kv.Purge(ctx, key); err != nil {
			return classify("purge metadata", err)
		}
	}

	s.logger.Info("purged session results", "session_id", sessionID)

	return nil
}

func classify(op string, err error) error {
	if natsutil.IsConnectivityError(err) {
		return fmt.Errorf("%s: %w: %w", op, types.ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
