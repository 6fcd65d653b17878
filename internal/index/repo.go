package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/storage"
)

// Verification is one mirrored integrity check.
type Verification struct {
	EvidenceID   string    `json:"evidence_id"`
	Valid        bool      `json:"valid"`
	OriginalHash string    `json:"original_hash"`
	CurrentHash  string    `json:"current_hash"`
	Reason       string    `json:"reason"`
	CheckedAt    time.Time `json:"checked_at"`
}

// FindingHit is one finding search result.
type FindingHit struct {
	EvidenceID string `json:"evidence_id"`
	FindingID  string `json:"finding_id"`
	Tool       string `json:"tool"`
	Severity   string `json:"severity"`
	Snippet    string `json:"snippet"`
}

// AppendCustody mirrors a ledger entry. Re-appending the same entry is a
// no-op.
func (db *DB) AppendCustody(e models.CustodyEntry) error {
	_, err := db.conn.Exec(`
		INSERT OR IGNORE INTO custody (id, sequence, timestamp, evidence_id, action, user, location, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Sequence, e.Timestamp.UTC(), e.EvidenceID, e.Action, e.User, e.Location, e.PrevHash, e.Hash)
	if err != nil {
		return fmt.Errorf("index: append custody: %w", err)
	}
	return nil
}

// CustodyFor returns the mirrored entries of one evidence item, across every
// session that wrote to this database, oldest first.
func (db *DB) CustodyFor(evidenceID string) ([]models.CustodyEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, sequence, timestamp, evidence_id, action, user, location, prev_hash, hash
		FROM custody
		WHERE evidence_id = ?
		ORDER BY timestamp, sequence
	`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("index: custody for: %w", err)
	}
	defer rows.Close()

	var out []models.CustodyEntry
	for rows.Next() {
		var e models.CustodyEntry
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Timestamp, &e.EvidenceID, &e.Action, &e.User, &e.Location, &e.PrevHash, &e.Hash); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertEvidence inserts or replaces an evidence record and its findings,
// with their FTS entries, within a transaction.
func (db *DB) UpsertEvidence(r models.EvidenceRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO evidence (id, type, name, source, hash_md5, hash_sha256, acquisition_time,
		                      size, relevance_score, analysis_complete, payload_path, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type              = excluded.type,
			name              = excluded.name,
			source            = excluded.source,
			hash_md5          = excluded.hash_md5,
			hash_sha256       = excluded.hash_sha256,
			acquisition_time  = excluded.acquisition_time,
			size              = excluded.size,
			relevance_score   = excluded.relevance_score,
			analysis_complete = excluded.analysis_complete,
			payload_path      = excluded.payload_path,
			updated_at        = excluded.updated_at
	`, r.ID, string(r.Type), r.Name, r.Source, r.HashMD5, r.HashSHA256, r.AcquisitionTime.UTC(),
		r.Size, r.RelevanceScore, r.AnalysisComplete, r.Payload(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: upsert evidence: %w", err)
	}

	ftsDeleteEvidence(tx, r.ID)
	if _, err := tx.Exec(`DELETE FROM findings WHERE evidence_id = ?`, r.ID); err != nil {
		return fmt.Errorf("index: clear findings: %w", err)
	}
	if len(r.Findings) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO findings (id, evidence_id, tool, summary, severity, details, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare finding insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range r.Findings {
			details := ""
			if len(f.Details) > 0 {
				b, _ := json.Marshal(f.Details)
				details = string(b)
			}
			if _, err := stmt.Exec(f.ID, r.ID, f.Tool, f.Summary, string(f.Severity), details, f.RecordedAt.UTC()); err != nil {
				return fmt.Errorf("index: insert finding: %w", err)
			}
			if err := ftsUpsertFinding(tx, r.ID, f.ID, f.Tool, f.Summary, details); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// DeleteEvidence removes an evidence record, its findings and FTS entries.
// Custody and verification history are kept.
func (db *DB) DeleteEvidence(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteEvidence(tx, id)
	_, _ = tx.Exec(`DELETE FROM findings WHERE evidence_id = ?`, id)
	_, _ = tx.Exec(`DELETE FROM evidence WHERE id = ?`, id)

	return tx.Commit()
}

// EvidenceIDs returns every mirrored evidence ID.
func (db *DB) EvidenceIDs() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT id FROM evidence`)
	if err != nil {
		return nil, fmt.Errorf("index: evidence ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// RecordVerification appends a verification outcome.
func (db *DB) RecordVerification(v Verification) error {
	_, err := db.conn.Exec(`
		INSERT INTO verifications (evidence_id, valid, original_hash, current_hash, reason, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.EvidenceID, v.Valid, v.OriginalHash, v.CurrentHash, v.Reason, v.CheckedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: record verification: %w", err)
	}
	return nil
}

// LatestVerification returns the most recent outcome for evidenceID. The
// bool is false when the item was never verified.
func (db *DB) LatestVerification(evidenceID string) (Verification, bool, error) {
	var v Verification
	err := db.conn.QueryRow(`
		SELECT evidence_id, valid, original_hash, current_hash, reason, checked_at
		FROM verifications
		WHERE evidence_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, evidenceID).Scan(&v.EvidenceID, &v.Valid, &v.OriginalHash, &v.CurrentHash, &v.Reason, &v.CheckedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Verification{}, false, nil
	}
	if err != nil {
		return Verification{}, false, fmt.Errorf("index: latest verification: %w", err)
	}
	return v, true, nil
}

// UpsertPayload records the checksum of a payload file.
func (db *DB) UpsertPayload(p storage.PayloadInfo) error {
	_, err := db.conn.Exec(`
		INSERT INTO payloads (path, checksum, size, mod_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum = excluded.checksum,
			size     = excluded.size,
			mod_time = excluded.mod_time
	`, p.Path, p.Checksum, p.Size, p.ModTime.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert payload: %w", err)
	}
	return nil
}

// DeletePayload forgets a payload file.
func (db *DB) DeletePayload(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM payloads WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete payload: %w", err)
	}
	return nil
}

// PayloadChecksums returns path → checksum for every known payload.
func (db *DB) PayloadChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM payloads`)
	if err != nil {
		return nil, fmt.Errorf("index: payload checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
