package p2p

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// A nil *PeerLimiter always allows: Node's gossip/request-response paths
// call cfg.Limiter.Allow unconditionally behind a nil check on the field
// itself, but anything reached through an already-nil *PeerLimiter method
// value (the zero Config) must also be safe.
func TestNilPeerLimiterAlwaysAllows(t *testing.T) {
	var l *PeerLimiter
	allowed, err := l.Allow(context.Background(), "some-peer")
	require.NoError(t, err)
	require.True(t, allowed)
}

// NewPeerLimiter clamps non-positive rate/burst rather than producing a
// limiter that can never admit a message or that divides by zero.
func TestNewPeerLimiterClampsNonPositiveParameters(t *testing.T) {
	l := NewPeerLimiter(nil, 0, -1)
	require.Equal(t, float64(1), l.ratePerS)
	require.Equal(t, float64(1), l.burst)
}
