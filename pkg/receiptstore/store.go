package receiptstore

import "context"

// Store is the durable fingerprint-to-receipt map. Per spec.md invariant
// 5, receipts are immutable once stored: Put and PutMany are
// insert-or-skip, never overwrite.
type Store interface {
	// Put inserts receipt keyed by its instruction fingerprint. On
	// conflict (a receipt already exists for that key): no-op, and the
	// previously stored receipt is returned unchanged.
	Put(ctx context.Context, r StoredReceipt) (StoredReceipt, error)

	// PutMany inserts many receipts in one transaction, each
	// independently insert-or-skip.
	PutMany(ctx context.Context, rs []StoredReceipt) error

	// Get looks up the receipt for instructionFingerprint, if any.
	Get(ctx context.Context, instructionFingerprint string) (StoredReceipt, bool, error)

	// GetMany looks up several fingerprints at once, returning only the
	// ones found.
	GetMany(ctx context.Context, instructionFingerprints []string) (map[string]StoredReceipt, error)

	// Size reports the total length, in bytes, of all stored receipt
	// payloads (not the size of the database file).
	Size(ctx context.Context) (int64, error)

	// Close releases the underlying database handle.
	Close() error
}

// StoredReceipt is the receipt payload as persisted: the canonical JSON
// encoding (receipt.go in pkg/workflow knows how to produce/parse this)
// plus the two columns the store indexes on.
type StoredReceipt struct {
	InstructionFingerprint string
	ReceiptFingerprint     string
	JSON                   []byte
}
