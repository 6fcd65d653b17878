//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the findings table.
	return nil
}

func ftsUpsertFinding(_ *sql.Tx, _, _, _, _, _ string) error {
	return nil
}

func ftsDeleteEvidence(_ *sql.Tx, _ string) {}

// SearchFindings performs a LIKE-based search (fallback when FTS5 is not
// compiled in).
func (db *DB) SearchFindings(query string, limit int) ([]FindingHit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT evidence_id, id, tool, severity, substr(summary, 1, 200)
		FROM findings
		WHERE summary LIKE ? OR details LIKE ? OR tool LIKE ?
		ORDER BY recorded_at DESC, id
		LIMIT ?
	`, like, like, like, limit)
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
