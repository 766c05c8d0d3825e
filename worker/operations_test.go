package worker

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"github.com/arloliu/framepipe/types"
)

func TestRegistry_BuiltIns(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, []string{OpChecksum, OpIdentity, OpInvert}, r.Names())

	_, err := r.Lookup("blur")
	require.ErrorIs(t, err, types.ErrUnknownOperation)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register(OpIdentity, invert)

	op, err := r.Lookup(OpIdentity)
	require.NoError(t, err)
	out, err := op(t.Context(), []byte{0x0F}, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0xF0}, out)
}

func TestOperations(t *testing.T) {
	payload := []byte{0x00, 0x0F, 0xFF}

	t.Run("identity copies", func(t *testing.T) {
		out, err := identity(t.Context(), payload, nil)
		require.NoError(t, err)
		require.Equal(t, payload, out)
		out[0] = 1
		require.Equal(t, byte(0), payload[0])
	})

	t.Run("invert", func(t *testing.T) {
		out, err := invert(t.Context(), payload, nil)
		require.NoError(t, err)
		require.Equal(t, []byte{0xFF, 0xF0, 0x00}, out)
	})

	t.Run("invert with mask", func(t *testing.T) {
		out, err := invert(t.Context(), payload, map[string]string{"mask": "1"})
		require.NoError(t, err)
		require.Equal(t, []byte{0x01, 0x0E, 0xFE}, out)
	})

	t.Run("invert rejects bad mask", func(t *testing.T) {
		_, err := invert(t.Context(), payload, map[string]string{"mask": "300"})
		require.Error(t, err)
	})

	t.Run("checksum", func(t *testing.T) {
		out, err := checksum(t.Context(), payload, nil)
		require.NoError(t, err)
		require.Len(t, out, 8)
		require.Equal(t, xxh3.Hash(payload), binary.BigEndian.Uint64(out))
	})
}

func TestSanitizeConsumerName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"framepipe-workers", "framepipe-workers"},
		{"a.b", "a_b"},
		{"x*y>z", "x_y_z"},
		{"with space", "with_space"},
		{"path/like\\name", "path_like_name"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, sanitizeConsumerName(tt.in))
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	require.Equal(t, DefaultConsumerName, cfg.ConsumerName)
	require.Equal(t, DefaultMaxDeliver, cfg.MaxDeliver)
	require.Equal(t, DefaultAckWait, cfg.AckWait)
	require.Equal(t, []string{"framepipe.units.default"}, cfg.subjects())
}
