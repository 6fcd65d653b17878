package scoring

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/models"
)

// CriticalObjective is the schema entry type scored by Score.
type CriticalObjective = models.CriticalObjective

// Issue is a section completeness problem found by Validate.
type Issue struct {
	Section string `json:"section"`
	Message string `json:"message"`
}

// TypeLookup resolves an evidence ID to its type.
type TypeLookup func(evidenceID string) (models.EvidenceType, bool)

// Report holds the sections of the final report and the evidence cited in
// each. The score is recomputed from scratch on every call to Score.
type Report struct {
	mu        sync.RWMutex
	sections  []models.Section
	citations map[string][]models.Citation
	schema    []CriticalObjective
	logger    *slog.Logger
	now       func() time.Time
}

// NewReport validates the section list and scoring schema.
func NewReport(sections []models.Section, schema []CriticalObjective, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Report{
		citations: make(map[string][]models.Citation, len(sections)),
		logger:    logger,
		now:       time.Now,
	}
	for _, s := range sections {
		if s.Title == "" {
			return nil, fmt.Errorf("report: section with empty title: %w", apperr.ErrInvalidArgument)
		}
		if r.hasSection(s.Title) {
			return nil, fmt.Errorf("report: section %q: %w", s.Title, apperr.ErrAlreadyExists)
		}
		if s.MinEvidence < 0 || s.MaxEvidence < 0 || (s.MaxEvidence > 0 && s.MinEvidence > s.MaxEvidence) {
			return nil, fmt.Errorf("report: section %q: invalid bounds: %w", s.Title, apperr.ErrInvalidArgument)
		}
		s.RequiredEvidenceTypes = slices.Clone(s.RequiredEvidenceTypes)
		r.sections = append(r.sections, s)
	}
	for _, obj := range schema {
		for _, title := range obj.RequiredSections {
			if !r.hasSection(title) {
				return nil, fmt.Errorf("report: objective %s references section %q: %w", obj.ID, title, apperr.ErrNotFound)
			}
		}
		obj.RequiredSections = slices.Clone(obj.RequiredSections)
		obj.EvidenceIDs = slices.Clone(obj.EvidenceIDs)
		r.schema = append(r.schema, obj)
	}
	return r, nil
}

func (r *Report) hasSection(title string) bool {
	_, ok := r.section(title)
	return ok
}

func (r *Report) section(title string) (models.Section, bool) {
	i := slices.IndexFunc(r.sections, func(s models.Section) bool { return s.Title == title })
	if i < 0 {
		return models.Section{}, false
	}
	return r.sections[i], true
}

// Sections returns the report sections in declaration order.
func (r *Report) Sections() []models.Section {
	out := make([]models.Section, len(r.sections))
	for i, s := range r.sections {
		s.RequiredEvidenceTypes = slices.Clone(s.RequiredEvidenceTypes)
		out[i] = s
	}
	return out
}

// Cite places evidenceID in the named section.
func (r *Report) Cite(sectionTitle, evidenceID string) (models.Citation, error) {
	if evidenceID == "" {
		return models.Citation{}, fmt.Errorf("report: empty evidence id: %w", apperr.ErrInvalidArgument)
	}
	sec, ok := r.section(sectionTitle)
	if !ok {
		return models.Citation{}, fmt.Errorf("report: section %q: %w", sectionTitle, apperr.ErrNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cited := r.citations[sectionTitle]
	if slices.ContainsFunc(cited, func(c models.Citation) bool { return c.EvidenceID == evidenceID }) {
		return models.Citation{}, fmt.Errorf("report: %s in %q: %w", evidenceID, sectionTitle, apperr.ErrDuplicateCitation)
	}
	if sec.MaxEvidence > 0 && len(cited) >= sec.MaxEvidence {
		return models.Citation{}, fmt.Errorf("report: section %q holds at most %d: %w", sectionTitle, sec.MaxEvidence, apperr.ErrCapacityExceeded)
	}

	c := models.Citation{SectionTitle: sectionTitle, EvidenceID: evidenceID, CitedAt: r.now()}
	r.citations[sectionTitle] = append(cited, c)
	r.logger.Debug("report: cited", slog.String("section", sectionTitle), slog.String("evidence_id", evidenceID))
	return c, nil
}

// Uncite removes evidenceID from the named section.
func (r *Report) Uncite(sectionTitle, evidenceID string) error {
	if !r.hasSection(sectionTitle) {
		return fmt.Errorf("report: section %q: %w", sectionTitle, apperr.ErrNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cited := r.citations[sectionTitle]
	i := slices.IndexFunc(cited, func(c models.Citation) bool { return c.EvidenceID == evidenceID })
	if i < 0 {
		return fmt.Errorf("report: %s not cited in %q: %w", evidenceID, sectionTitle, apperr.ErrNotFound)
	}
	r.citations[sectionTitle] = slices.Delete(slices.Clone(cited), i, i+1)
	return nil
}

// Citations returns every citation, grouped by section in declaration order
// and in citation order within a section.
func (r *Report) Citations() []models.Citation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Citation
	for _, s := range r.sections {
		out = append(out, r.citations[s.Title]...)
	}
	return out
}

// Assignments returns section title to cited evidence IDs.
func (r *Report) Assignments() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.citations))
	for title, cited := range r.citations {
		if len(cited) == 0 {
			continue
		}
		ids := make([]string, len(cited))
		for i, c := range cited {
			ids[i] = c.EvidenceID
		}
		out[title] = ids
	}
	return out
}

// Score recomputes the report score from the current citations.
func (r *Report) Score() Result {
	return Score(r.Assignments(), r.schema)
}

// Validate reports sections that hold fewer than MinEvidence citations or
// lack a cited item of each required evidence type.
func (r *Report) Validate(lookup TypeLookup) []Issue {
	assignments := r.Assignments()
	var issues []Issue
	for _, s := range r.sections {
		ids := assignments[s.Title]
		if len(ids) < s.MinEvidence {
			issues = append(issues, Issue{
				Section: s.Title,
				Message: fmt.Sprintf("needs at least %d evidence items, has %d", s.MinEvidence, len(ids)),
			})
		}
		if lookup == nil {
			continue
		}
		for _, want := range s.RequiredEvidenceTypes {
			found := slices.ContainsFunc(ids, func(id string) bool {
				t, ok := lookup(id)
				return ok && t == want
			})
			if !found {
				issues = append(issues, Issue{Section: s.Title, Message: fmt.Sprintf("missing %s evidence", want)})
			}
		}
	}
	return issues
}
