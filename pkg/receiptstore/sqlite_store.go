package receiptstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by modernc.org/sqlite (pure Go, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) a sqlite database at dsn and runs
// its migration. dsn is a modernc.org/sqlite DSN, e.g. "file:homestar.db"
// or ":memory:".
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, newError(ErrDbUnavailable, err.Error())
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS receipts (
		instruction_fingerprint TEXT PRIMARY KEY,
		receipt_fingerprint TEXT NOT NULL,
		payload JSON NOT NULL,
		stored_at DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return newError(ErrDbUnavailable, "migration failed: "+err.Error())
	}
	return nil
}

// Put inserts r, no-op on conflict, and always returns the row now on
// disk for instruction_fingerprint (the caller's r if newly inserted,
// the previously-stored receipt otherwise).
func (s *SQLiteStore) Put(ctx context.Context, r StoredReceipt) (StoredReceipt, error) {
	query := `
	INSERT INTO receipts (instruction_fingerprint, receipt_fingerprint, payload, stored_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(instruction_fingerprint) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, r.InstructionFingerprint, r.ReceiptFingerprint, string(r.JSON), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return StoredReceipt{}, newError(ErrDbUnavailable, "insert failed: "+err.Error())
	}

	existing, ok, err := s.Get(ctx, r.InstructionFingerprint)
	if err != nil {
		return StoredReceipt{}, err
	}
	if !ok {
		return StoredReceipt{}, newError(ErrDbUnavailable, "receipt vanished immediately after insert")
	}
	return existing, nil
}

// PutMany inserts rs in a single transaction, each row independently
// insert-or-skip.
func (s *SQLiteStore) PutMany(ctx context.Context, rs []StoredReceipt) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newError(ErrDbUnavailable, err.Error())
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO receipts (instruction_fingerprint, receipt_fingerprint, payload, stored_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(instruction_fingerprint) DO NOTHING`)
	if err != nil {
		return newError(ErrDbUnavailable, err.Error())
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range rs {
		if _, err := stmt.ExecContext(ctx, r.InstructionFingerprint, r.ReceiptFingerprint, string(r.JSON), now); err != nil {
			return newError(ErrDbUnavailable, "batch insert failed: "+err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return newError(ErrDbUnavailable, err.Error())
	}
	return nil
}

// Get looks up the receipt for instructionFingerprint.
func (s *SQLiteStore) Get(ctx context.Context, instructionFingerprint string) (StoredReceipt, bool, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT instruction_fingerprint, receipt_fingerprint, payload
	FROM receipts WHERE instruction_fingerprint = ?`, instructionFingerprint)

	var r StoredReceipt
	var payload string
	if err := row.Scan(&r.InstructionFingerprint, &r.ReceiptFingerprint, &payload); err != nil {
		if err == sql.ErrNoRows {
			return StoredReceipt{}, false, nil
		}
		return StoredReceipt{}, false, newError(ErrDbUnavailable, err.Error())
	}
	r.JSON = []byte(payload)
	return r, true, nil
}

// GetMany looks up several fingerprints in one query.
func (s *SQLiteStore) GetMany(ctx context.Context, fingerprints []string) (map[string]StoredReceipt, error) {
	out := make(map[string]StoredReceipt, len(fingerprints))
	if len(fingerprints) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(fingerprints))
	args := make([]interface{}, len(fingerprints))
	for i, fp := range fingerprints {
		placeholders[i] = "?"
		args[i] = fp
	}
	query := fmt.Sprintf(`
	SELECT instruction_fingerprint, receipt_fingerprint, payload
	FROM receipts WHERE instruction_fingerprint IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newError(ErrDbUnavailable, err.Error())
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r StoredReceipt
		var payload string
		if err := rows.Scan(&r.InstructionFingerprint, &r.ReceiptFingerprint, &payload); err != nil {
			return nil, newError(ErrMalformedRow, err.Error())
		}
		r.JSON = []byte(payload)
		out[r.InstructionFingerprint] = r
	}
	if err := rows.Err(); err != nil {
		return nil, newError(ErrDbUnavailable, err.Error())
	}
	return out, nil
}

// Size reports the total size, in bytes, of all stored receipt
// payloads (sum of the JSON column's length, not the on-disk file size,
// which also reflects index overhead and unreclaimed freed pages).
func (s *SQLiteStore) Size(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(LENGTH(payload)) FROM receipts`).Scan(&n); err != nil {
		return 0, newError(ErrDbUnavailable, err.Error())
	}
	return n.Int64, nil
}

// Close releases the sqlite handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
