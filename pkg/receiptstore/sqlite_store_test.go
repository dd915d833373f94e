package receiptstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := StoredReceipt{
		InstructionFingerprint: "instr-1",
		ReceiptFingerprint:     "receipt-1",
		JSON:                   []byte(`{"out":{"ok":2}}`),
	}

	got1, err := s.Put(ctx, r)
	require.NoError(t, err)
	require.Equal(t, r.ReceiptFingerprint, got1.ReceiptFingerprint)

	conflicting := r
	conflicting.ReceiptFingerprint = "receipt-2"
	conflicting.JSON = []byte(`{"out":{"ok":999}}`)

	got2, err := s.Put(ctx, conflicting)
	require.NoError(t, err)
	require.Equal(t, "receipt-1", got2.ReceiptFingerprint, "conflicting put must return the originally stored receipt unchanged")

	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(len(r.JSON)), size, "conflicting put must not be counted again")
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutManyAndGetMany(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rs := []StoredReceipt{
		{InstructionFingerprint: "a", ReceiptFingerprint: "ra", JSON: []byte(`{}`)},
		{InstructionFingerprint: "b", ReceiptFingerprint: "rb", JSON: []byte(`{}`)},
	}
	require.NoError(t, s.PutMany(ctx, rs))

	got, err := s.GetMany(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "ra", got["a"].ReceiptFingerprint)
	require.Equal(t, "rb", got["b"].ReceiptFingerprint)

	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(len(rs[0].JSON)+len(rs[1].JSON)), size)
}
