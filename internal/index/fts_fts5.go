//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS findings_fts USING fts5(
			evidence_id UNINDEXED,
			finding_id UNINDEXED,
			tool,
			summary,
			details,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsertFinding(tx *sql.Tx, evidenceID, findingID, tool, summary, details string) error {
	_, err := tx.Exec(`INSERT INTO findings_fts (evidence_id, finding_id, tool, summary, details) VALUES (?, ?, ?, ?, ?)`,
		evidenceID, findingID, tool, summary, details)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDeleteEvidence(tx *sql.Tx, evidenceID string) {
	_, _ = tx.Exec(`DELETE FROM findings_fts WHERE evidence_id = ?`, evidenceID)
}

// SearchFindings performs an FTS5 full-text search over finding summaries
// and details.
func (db *DB) SearchFindings(query string, limit int) ([]FindingHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.evidence_id,
		       f.finding_id,
		       f.tool,
		       coalesce(x.severity, ''),
		       snippet(findings_fts, 3, '<b>', '</b>', '...', 32)
		FROM findings_fts f
		LEFT JOIN findings x ON x.id = f.finding_id
		WHERE findings_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []FindingHit
	for rows.Next() {
		var h FindingHit
		if err := rows.Scan(&h.EvidenceID, &h.FindingID, &h.Tool, &h.Severity, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
