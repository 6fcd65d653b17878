package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/casefile/internal/checksum"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/parser"
)

// Provider supplies the evidence catalog at session start.
type Provider interface {
	Catalog(ctx context.Context) ([]models.EvidenceRecord, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) ([]models.EvidenceRecord, error)

// Catalog calls f.
func (f ProviderFunc) Catalog(ctx context.Context) ([]models.EvidenceRecord, error) {
	return f(ctx)
}

// StaticProvider serves a fixed catalog.
type StaticProvider []models.EvidenceRecord

// Catalog returns the records.
func (p StaticProvider) Catalog(_ context.Context) ([]models.EvidenceRecord, error) {
	return p, nil
}

// CaseFileProvider reads the evidence catalog from a case file on disk.
type CaseFileProvider struct {
	Path string
}

// Catalog parses the case file and returns its evidence section.
func (p CaseFileProvider) Catalog(ctx context.Context) ([]models.EvidenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := parser.LoadCase(p.Path)
	if err != nil {
		return nil, fmt.Errorf("evidence: case file: %w", err)
	}
	return c.Evidence, nil
}

// Placeholder data used only when the real provider is unavailable.
const (
	PlaceholderID      = "EV-PLACEHOLDER"
	placeholderPayload = "casefile placeholder evidence: provider unavailable"
)

// PlaceholderProvider is the built-in default-data collaborator. It serves a
// single clearly-labelled record and is never consulted while the real
// provider works.
type PlaceholderProvider struct{}

// Catalog returns the placeholder record.
func (PlaceholderProvider) Catalog(_ context.Context) ([]models.EvidenceRecord, error) {
	payload := []byte(placeholderPayload)
	return []models.EvidenceRecord{{
		ID:              PlaceholderID,
		Type:            models.EvidenceDocument,
		Name:            "Placeholder evidence (catalog unavailable)",
		Source:          "built-in default data",
		HashMD5:         checksum.SumMD5(payload),
		HashSHA256:      checksum.Sum(payload),
		AcquisitionTime: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Size:            int64(len(payload)),
		RelevanceScore:  0,
	}}, nil
}
