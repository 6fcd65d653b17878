package models

import "time"

// CustodyEntry is one immutable line of the chain-of-custody ledger.
type CustodyEntry struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	EvidenceID string    `json:"evidence_id"`
	Action     string    `json:"action"`
	User       string    `json:"user"`
	Location   string    `json:"location"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`
}

// Well-known custody actions. The ledger accepts any label.
const (
	ActionEvidenceSelected  = "evidence_selected"
	ActionImageMounted      = "image_mounted"
	ActionAnalysisRecorded  = "analysis_recorded"
	ActionClueRecorded      = "clue_recorded"
	ActionIntegrityVerified = "integrity_verified"
	ActionIntegrityFailed   = "integrity_failed"
	ActionCitedInReport     = "cited_in_report"
	ActionRemovedFromReport = "removed_from_report"
)
