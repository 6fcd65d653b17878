// Package evidence holds the session's evidence inventory.
package evidence

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/models"
)

// Filter narrows List results. A zero Filter matches every record.
type Filter struct {
	Types []models.EvidenceType
}

func (f Filter) match(r *models.EvidenceRecord) bool {
	return len(f.Types) == 0 || slices.Contains(f.Types, r.Type)
}

// Patch is a partial update to an evidence record.
//
// Only AnalysisComplete and AppendFindings are applied; every other field is
// an identity field and setting it fails with *ImmutableFieldError.
type Patch struct {
	AnalysisComplete *bool
	AppendFindings   []models.Finding

	Type            *models.EvidenceType
	Name            *string
	Source          *string
	HashMD5         *string
	HashSHA256      *string
	AcquisitionTime *time.Time
	Size            *int64
	RelevanceScore  *float64
	PayloadPath     *string
}

func (p Patch) immutableField() string {
	switch {
	case p.Type != nil:
		return "type"
	case p.Name != nil:
		return "name"
	case p.Source != nil:
		return "source"
	case p.HashMD5 != nil:
		return "hash_md5"
	case p.HashSHA256 != nil:
		return "hash_sha256"
	case p.AcquisitionTime != nil:
		return "acquisition_time"
	case p.Size != nil:
		return "size"
	case p.RelevanceScore != nil:
		return "relevance_score"
	case p.PayloadPath != nil:
		return "payload_path"
	}
	return ""
}

// ImmutableFieldError reports an attempt to change an identity field.
type ImmutableFieldError struct {
	EvidenceID string
	Field      string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("evidence %s: field %q is immutable", e.EvidenceID, e.Field)
}

// Is makes the error match apperr.ErrImmutableField.
func (e *ImmutableFieldError) Is(target error) bool {
	return target == apperr.ErrImmutableField
}

// Store is the in-memory evidence repository for one investigation session.
// Records are handed out as deep copies.
type Store struct {
	mu      sync.RWMutex
	records map[string]*models.EvidenceRecord
	now     func() time.Time
}

// New builds a store from records. Empty or duplicate IDs are rejected.
func New(records []models.EvidenceRecord) (*Store, error) {
	s := &Store{records: make(map[string]*models.EvidenceRecord, len(records)), now: time.Now}
	for _, r := range records {
		if err := s.add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load builds a store from the provider's catalog. When the provider fails or
// returns nothing, the fallback's catalog is used instead so the store is
// never empty. Invalid or duplicate records are skipped with a warning.
func Load(ctx context.Context, provider, fallback Provider, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	records, err := provider.Catalog(ctx)
	switch {
	case err != nil:
		logger.Warn("evidence: provider failed, using fallback catalog", slog.String("error", err.Error()))
		records = nil
	case len(records) == 0:
		logger.Warn("evidence: provider returned an empty catalog, using fallback catalog")
	}
	if len(records) == 0 {
		if records, err = fallback.Catalog(ctx); err != nil {
			return nil, fmt.Errorf("evidence: fallback catalog: %w", err)
		}
	}

	s := &Store{records: make(map[string]*models.EvidenceRecord, len(records)), now: time.Now}
	for _, r := range records {
		if addErr := s.add(r); addErr != nil {
			logger.Warn("evidence: skipping record", slog.String("id", r.ID), slog.String("error", addErr.Error()))
		}
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("evidence: no usable records: %w", apperr.ErrNotFound)
	}
	logger.Info("evidence: catalog loaded", slog.Int("records", s.Len()))
	return s, nil
}

func (s *Store) add(r models.EvidenceRecord) error {
	if r.ID == "" {
		return fmt.Errorf("evidence: empty id: %w", apperr.ErrInvalidArgument)
	}
	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("evidence %s: %w", r.ID, apperr.ErrAlreadyExists)
	}
	rec := r.Clone()
	s.records[r.ID] = &rec
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (models.EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return models.EvidenceRecord{}, fmt.Errorf("evidence %s: %w", id, apperr.ErrNotFound)
	}
	return r.Clone(), nil
}

// List returns matching records ordered by acquisition time, newest first,
// with ties broken by ID.
func (s *Store) List(f Filter) []models.EvidenceRecord {
	s.mu.RLock()
	out := make([]models.EvidenceRecord, 0, len(s.records))
	for _, r := range s.records {
		if f.match(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.EvidenceRecord) int {
		if c := b.AcquisitionTime.Compare(a.AcquisitionTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Update applies p to the record and returns the updated copy. It does not
// log custody; the caller records the action that caused the update.
func (s *Store) Update(id string, p Patch) (models.EvidenceRecord, error) {
	if field := p.immutableField(); field != "" {
		return models.EvidenceRecord{}, &ImmutableFieldError{EvidenceID: id, Field: field}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return models.EvidenceRecord{}, fmt.Errorf("evidence %s: %w", id, apperr.ErrNotFound)
	}

	if p.AnalysisComplete != nil {
		r.AnalysisComplete = *p.AnalysisComplete
	}
	for _, f := range p.AppendFindings {
		f = f.Clone()
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.RecordedAt.IsZero() {
			f.RecordedAt = s.now()
		}
		r.Findings = append(r.Findings, f)
	}
	return r.Clone(), nil
}
