package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/format"
)

var codecTypes = []format.CompressionType{
	format.CompressionNone,
	format.CompressionZstd,
	format.CompressionS2,
	format.CompressionLZ4,
}

// TestCodecRoundTrip verifies every built-in codec restores its input.
func TestCodecRoundTrip(t *testing.T) {
	// Repetitive payload so the real codecs actually shrink it.
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1024)

	for _, ct := range codecTypes {
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := GetCodec(ct)
			require.NoError(t, err)

			comp, err := codec.Compress(payload)
			require.NoError(t, err)
			if ct != format.CompressionNone {
				require.Less(t, len(comp), len(payload))
			}

			got, err := codec.Decompress(comp)
			require.NoError(t, err)
			require.Equal(t, payload, got)
		})
	}
}

// TestCodecEmptyInput verifies zero-byte payloads survive the round trip.
func TestCodecEmptyInput(t *testing.T) {
	for _, ct := range codecTypes {
		codec, err := GetCodec(ct)
		require.NoError(t, err)

		comp, err := codec.Compress(nil)
		require.NoError(t, err)

		got, err := codec.Decompress(comp)
		require.NoError(t, err)
		require.Empty(t, got)
	}
}

// TestCreateCodec verifies the factory rejects unknown types.
func TestCreateCodec(t *testing.T) {
	for _, ct := range codecTypes {
		codec, err := CreateCodec(ct, "block")
		require.NoError(t, err)
		require.NotNil(t, codec)
	}

	_, err := CreateCodec(format.CompressionType(0xFF), "block")
	require.Error(t, err)
}

// TestResolveOperator verifies operator-name resolution, including case
// insensitivity and the unknown-operator error.
func TestResolveOperator(t *testing.T) {
	for _, name := range OperatorNames() {
		ct, err := ResolveOperator(name)
		require.NoError(t, err)
		require.True(t, ct.Valid(), "operator %s", name)
	}

	ct, err := ResolveOperator("ZSTD")
	require.NoError(t, err)
	require.Equal(t, format.CompressionZstd, ct)

	_, err = ResolveOperator("mgard")
	require.ErrorIs(t, err, errs.ErrUnknownOperator)
}
