package awmkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteEvidenceStore persists EvidenceRecords in a SQLite database, reusing
// this tree's original PRAGMA set (WAL, full sync, busy timeout) and
// schema-on-open pattern.
type SQLiteEvidenceStore struct{ db *sql.DB }

// OpenSQLiteEvidenceStore opens/creates the evidence database at dsn.
func OpenSQLiteEvidenceStore(dsn string) (*SQLiteEvidenceStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", p, err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS evidence (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  file_path    TEXT    NOT NULL,
  raw_message  BLOB    NOT NULL,
  identity     TEXT    NOT NULL,
  key_slot     INTEGER NOT NULL,
  created_at   INTEGER NOT NULL,
  snr_db       REAL,
  fingerprint  BLOB
);
CREATE INDEX IF NOT EXISTS evidence_identity_slot ON evidence(identity, key_slot);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteEvidenceStore{db: db}, nil
}

func (s *SQLiteEvidenceStore) Insert(r EvidenceRecord) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO evidence(file_path, raw_message, identity, key_slot, created_at, snr_db, fingerprint)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		r.FilePath, r.RawMessage[:], r.Identity, r.KeySlot, r.CreatedAt.Unix(), r.SNRDb, r.Fingerprint)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteEvidenceStore) List(limit int) ([]EvidenceRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, file_path, raw_message, identity, key_slot, created_at, snr_db, fingerprint
		 FROM evidence ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvidenceRows(rows)
}

func (s *SQLiteEvidenceStore) FindByIdentitySlot(identity string, slot int) ([]EvidenceRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, file_path, raw_message, identity, key_slot, created_at, snr_db, fingerprint
		 FROM evidence WHERE identity = ? AND key_slot = ? ORDER BY id DESC`, identity, slot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvidenceRows(rows)
}

func scanEvidenceRows(rows *sql.Rows) ([]EvidenceRecord, error) {
	var out []EvidenceRecord
	for rows.Next() {
		var r EvidenceRecord
		var raw []byte
		var createdAt int64
		var snr sql.NullFloat64
		var fp []byte
		if err := rows.Scan(&r.ID, &r.FilePath, &raw, &r.Identity, &r.KeySlot, &createdAt, &snr, &fp); err != nil {
			return nil, err
		}
		if len(raw) != MessageLength {
			return nil, fmt.Errorf("evidence %d: raw_message has %d bytes, want %d", r.ID, len(raw), MessageLength)
		}
		copy(r.RawMessage[:], raw)
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		if snr.Valid {
			v := snr.Float64
			r.SNRDb = &v
		}
		if len(fp) > 0 {
			r.Fingerprint = fp
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteEvidenceStore) RemoveByIDs(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM evidence WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteEvidenceStore) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM evidence`).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Close closes the underlying database handle.
func (s *SQLiteEvidenceStore) Close() error { return s.db.Close() }
