package stableid

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	fptest "github.com/arloliu/framepipe/testing"
)

func newKV(t *testing.T, bucket string, ttl time.Duration) jetstream.KeyValue {
	t.Helper()

	_, nc := fptest.StartEmbeddedNATS(t)
	kv, err := fptest.NewJetStream(t, nc).CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     ttl,
		Storage: jetstream.MemoryStorage,
	})
	require.NoError(t, err)

	return kv
}

func TestClaimer_WithoutClaim(t *testing.T) {
	t.Parallel()

	c := NewClaimer(nil, "worker", 0, 9, time.Second, nil)
	require.Empty(t, c.WorkerID())
	require.ErrorIs(t, c.StartRenewal(), ErrNotClaimed)
	require.ErrorIs(t, c.Release(context.Background()), ErrNotClaimed)
}

func TestClaimer_SequentialClaims(t *testing.T) {
	ctx := t.Context()
	kv := newKV(t, "stableid-seq", time.Minute)

	a := NewClaimer(kv, "worker", 0, 1, time.Minute, fptest.NewTestLogger(t))
	b := NewClaimer(kv, "worker", 0, 1, time.Minute, nil)
	c := NewClaimer(kv, "worker", 0, 1, time.Minute, nil)

	idA, err := a.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, "worker-0", idA)

	idB, err := b.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, "worker-1", idB)

	_, err = c.Claim(ctx)
	require.ErrorIs(t, err, ErrNoAvailableID)

	require.NoError(t, a.Release(ctx))
	idC, err := c.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, "worker-0", idC)
}

func TestClaimer_RenewalKeepsLease(t *testing.T) {
	ctx := t.Context()
	ttl := 600 * time.Millisecond
	kv := newKV(t, "stableid-renew", ttl)

	a := NewClaimer(kv, "worker", 0, 0, ttl, nil)
	_, err := a.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, a.StartRenewal())

	time.Sleep(2 * ttl)

	b := NewClaimer(kv, "worker", 0, 0, ttl, nil)
	_, err = b.Claim(ctx)
	require.ErrorIs(t, err, ErrNoAvailableID)
	require.False(t, a.LeaseLost())

	require.NoError(t, a.Release(ctx))
	_, err = b.Claim(ctx)
	require.NoError(t, err)
}

func TestClaimer_DetectsLostLease(t *testing.T) {
	ctx := t.Context()
	kv := newKV(t, "stableid-lost", time.Minute)

	a := NewClaimer(kv, "worker", 0, 0, time.Minute, nil)
	_, err := a.Claim(ctx)
	require.NoError(t, err)

	_, err = kv.Put(ctx, "worker-0", []byte("someone else"))
	require.NoError(t, err)

	require.ErrorIs(t, a.renew(ctx), ErrLeaseLost)
	require.True(t, a.LeaseLost())
	require.NoError(t, a.Release(ctx))

	entry, err := kv.Get(ctx, "worker-0")
	require.NoError(t, err)
	require.Equal(t, []byte("someone else"), entry.Value())
}
