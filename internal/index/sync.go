package index

import (
	"log/slog"

	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/storage"
)

// Sync brings the mirror up to date with the session catalog and the
// payload directory:
//   - every catalog record is upserted, records no longer in the catalog are removed
//   - payload checksums are recorded, payloads removed from disk are forgotten
func Sync(db AuditIndex, records []models.EvidenceRecord, payloads storage.Provider, logger *slog.Logger) error {
	known, err := db.EvidenceIDs()
	if err != nil {
		return err
	}

	catalog := make(map[string]struct{}, len(records))
	for _, r := range records {
		catalog[r.ID] = struct{}{}
		if err := db.UpsertEvidence(r); err != nil {
			logger.Warn("sync: upsert evidence failed", slog.String("evidence_id", r.ID), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: mirrored evidence", slog.String("evidence_id", r.ID))
	}
	for id := range known {
		if _, ok := catalog[id]; ok {
			continue
		}
		if err := db.DeleteEvidence(id); err != nil {
			logger.Warn("sync: delete evidence failed", slog.String("evidence_id", id), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale evidence", slog.String("evidence_id", id))
		}
	}

	metas, err := payloads.List("")
	if err != nil {
		return err
	}
	checksums, err := db.PayloadChecksums()
	if err != nil {
		return err
	}
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if checksums[m.Path] == m.Checksum {
			continue
		}
		if err := db.UpsertPayload(m); err != nil {
			logger.Warn("sync: upsert payload failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		}
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeletePayload(p); err != nil {
				logger.Warn("sync: delete payload failed", slog.String("path", p), slog.String("error", err.Error()))
			}
		}
	}

	logger.Info("sync: mirror updated", slog.Int("evidence", len(records)), slog.Int("payloads", len(metas)))
	return nil
}
