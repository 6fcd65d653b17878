package index

import (
	"github.com/starford/casefile/internal/custody"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/storage"
)

// AuditIndex defines the audit-mirror operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type AuditIndex interface {
	AppendCustody(e models.CustodyEntry) error
	CustodyFor(evidenceID string) ([]models.CustodyEntry, error)
	UpsertEvidence(r models.EvidenceRecord) error
	DeleteEvidence(id string) error
	EvidenceIDs() (map[string]struct{}, error)
	RecordVerification(v Verification) error
	LatestVerification(evidenceID string) (Verification, bool, error)
	SearchFindings(query string, limit int) ([]FindingHit, error)
	UpsertPayload(p storage.PayloadInfo) error
	DeletePayload(path string) error
	PayloadChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies AuditIndex and custody.Sink at compile time.
var (
	_ AuditIndex   = (*DB)(nil)
	_ custody.Sink = (*DB)(nil)
)
