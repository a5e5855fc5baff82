package netshim

import (
	"context"
	"errors"
	"testing"

	"clobcore/internal/prng"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeDeliversAndCallsAction(t *testing.T) {
	s := New(Config{BaseLatencyMs: 0, JitterMs: 0, PacketLossRate: 0, Source: prng.New(1)})

	called := false
	out, err := Invoke(context.Background(), s, func() (int, error) {
		called = true
		return 42, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, out.Delivered)
	assert.Equal(t, 42, out.Result)
}

func TestInvokeAlwaysDropsAtFullLossRate(t *testing.T) {
	s := New(Config{PacketLossRate: 1, Source: prng.New(1)})

	called := false
	out, err := Invoke(context.Background(), s, func() (int, error) {
		called = true
		return 1, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.False(t, out.Delivered)
}

func TestInvokePropagatesActionError(t *testing.T) {
	s := New(Config{PacketLossRate: 0, Source: prng.New(1)})
	wantErr := errors.New("boom")

	out, err := Invoke(context.Background(), s, func() (int, error) {
		return 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.True(t, out.Delivered)
}

func TestSampleLatencyMsStaysNonNegative(t *testing.T) {
	s := New(Config{BaseLatencyMs: 1, JitterMs: 50, Source: prng.New(1)})
	for i := 0; i < 100; i++ {
		lat := s.sampleLatencyMs()
		assert.GreaterOrEqual(t, lat, 0.0)
	}
}
