package index

import (
	"log/slog"

	"github.com/starford/casefile/internal/channel"
	"github.com/starford/casefile/internal/models"
)

// RecordLookup resolves an evidence ID to its current record.
type RecordLookup func(id string) (models.EvidenceRecord, error)

// Mirror keeps the evidence and verification tables current from channel
// events. Custody entries reach the mirror through the ledger's sink. The
// returned function unsubscribes.
func Mirror(db AuditIndex, bus *channel.Bus, lookup RecordLookup, logger *slog.Logger) func() {
	analyzed := channel.Subscribe(bus, channel.TopicEvidenceAnalyzed, func(e channel.EvidenceAnalyzed) {
		rec, err := lookup(e.EvidenceID)
		if err != nil {
			logger.Warn("mirror: lookup failed", slog.String("evidence_id", e.EvidenceID), slog.String("error", err.Error()))
			return
		}
		if err := db.UpsertEvidence(rec); err != nil {
			logger.Warn("mirror: upsert evidence failed", slog.String("evidence_id", e.EvidenceID), slog.String("error", err.Error()))
		}
	})
	verified := channel.Subscribe(bus, channel.TopicEvidenceVerified, func(e channel.EvidenceVerified) {
		err := db.RecordVerification(Verification{
			EvidenceID:   e.EvidenceID,
			Valid:        e.Valid,
			OriginalHash: e.OriginalHash,
			CurrentHash:  e.CurrentHash,
			Reason:       e.Reason,
			CheckedAt:    e.CheckedAt,
		})
		if err != nil {
			logger.Warn("mirror: record verification failed", slog.String("evidence_id", e.EvidenceID), slog.String("error", err.Error()))
		}
	})
	return func() {
		bus.Unsubscribe(analyzed)
		bus.Unsubscribe(verified)
	}
}
