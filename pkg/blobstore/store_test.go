package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStorePutGetIdempotent(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ipfs://x/add-one.wasm", []byte("v1")))
	require.NoError(t, s.Put(ctx, "ipfs://x/add-one.wasm", []byte("v2")))

	b, ok, err := s.Get(ctx, "ipfs://x/add-one.wasm")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), b)

	has, err := s.Has(ctx, "ipfs://x/add-one.wasm")
	require.NoError(t, err)
	require.True(t, has)
}

func TestFileStoreMiss(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStorePutGetIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v1")))
	require.NoError(t, s.Put(ctx, "k", []byte("v2")))

	b, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), b)
}
