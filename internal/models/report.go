package models

import "time"

// Section is a report section evidence can be cited into.
type Section struct {
	Title                 string         `json:"title" yaml:"title"`
	RequiredEvidenceTypes []EvidenceType `json:"required_evidence_types,omitempty" yaml:"required_evidence_types,omitempty"`
	MinEvidence           int            `json:"min_evidence" yaml:"min_evidence"`
	MaxEvidence           int            `json:"max_evidence" yaml:"max_evidence"`
}

// Citation binds an evidence record to a report section.
type Citation struct {
	SectionTitle string    `json:"section_title"`
	EvidenceID   string    `json:"evidence_id"`
	CitedAt      time.Time `json:"cited_at"`
}

// CriticalObjective is a scoring-schema entry: points are awarded when its
// evidence appears in its required sections.
type CriticalObjective struct {
	ID               string   `json:"id" yaml:"id"`
	Description      string   `json:"description" yaml:"description"`
	RequiredSections []string `json:"required_sections" yaml:"required_sections"`
	EvidenceIDs      []string `json:"evidence_ids" yaml:"evidence_ids"`
	Points           int      `json:"points" yaml:"points"`
}

// CaseMetadata describes the investigation as supplied by the case file.
type CaseMetadata struct {
	CaseNumber   string    `json:"case_number" yaml:"case_number"`
	Title        string    `json:"title" yaml:"title"`
	Investigator string    `json:"investigator" yaml:"investigator"`
	Agency       string    `json:"agency" yaml:"agency"`
	OpenedAt     time.Time `json:"opened_at" yaml:"opened_at"`
	Briefing     string    `json:"briefing,omitempty" yaml:"-"`
}
