package api

import (
	"github.com/starford/casefile/internal/index"
	"github.com/starford/casefile/internal/integrity"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/scoring"
)

// EvidenceListResponse wraps the evidence catalog.
type EvidenceListResponse struct {
	Evidence []models.EvidenceRecord `json:"evidence" validate:"required"`
	Total    int                     `json:"total" example:"3" validate:"required"`
}

// EvidenceDetail is one record with its latest mirrored verification.
type EvidenceDetail struct {
	models.EvidenceRecord
	LastVerification *index.Verification `json:"last_verification,omitempty"`
}

// AnalysisRequest is the request body for recording an analysis pass.
type AnalysisRequest struct {
	Tool     string           `json:"tool" example:"volatility" validate:"required"`
	Findings []models.Finding `json:"findings"`
	Complete bool             `json:"complete"`
}

// CustodyRequest is the request body for logging an access.
type CustodyRequest struct {
	Action string `json:"action" example:"image_mounted" validate:"required"`
}

// CustodyResponse lists custody entries of one evidence item.
type CustodyResponse struct {
	EvidenceID string                `json:"evidence_id" validate:"required"`
	Entries    []models.CustodyEntry `json:"entries" validate:"required"`
	ChainValid bool                  `json:"chain_valid"`
}

// ClueRequest is the request body for reporting a clue.
type ClueRequest struct {
	ClueType    string `json:"clue_type" example:"contact" validate:"required"`
	Category    string `json:"category,omitempty" example:"email"`
	EvidenceID  string `json:"evidence_id,omitempty" example:"EV-001"`
	Value       string `json:"value,omitempty" example:"jdoe@example.com"`
	Description string `json:"description,omitempty"`
}

// AnalysisCompleteRequest signals that a tool finished its pass.
type AnalysisCompleteRequest struct {
	Tool        string   `json:"tool" example:"autopsy" validate:"required"`
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
}

// VerifyAllRequest selects evidence to verify; empty means all.
type VerifyAllRequest struct {
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
}

// VerifyAllResponse wraps batch verification results.
type VerifyAllResponse struct {
	Results []integrity.Result `json:"results" validate:"required"`
	Valid   int                `json:"valid"`
	Invalid int                `json:"invalid"`
}

// TimelineRequest adds extracted events.
type TimelineRequest struct {
	Events []models.TimelineEvent `json:"events" validate:"required"`
}

// CorrelationResponse wraps computed correlations.
type CorrelationResponse struct {
	Correlations []models.Correlation `json:"correlations" validate:"required"`
	Events       int                  `json:"events"`
}

// CitationRequest cites evidence into a report section.
type CitationRequest struct {
	Section    string `json:"section" example:"Findings" validate:"required"`
	EvidenceID string `json:"evidence_id" example:"EV-001" validate:"required"`
}

// ReportResponse is the working state of the report.
type ReportResponse struct {
	Sections  []models.Section  `json:"sections" validate:"required"`
	Citations []models.Citation `json:"citations" validate:"required"`
	Score     scoring.Result    `json:"score" validate:"required"`
	Issues    []scoring.Issue   `json:"issues"`
}

// SearchResponse wraps finding search results.
type SearchResponse struct {
	Results []index.FindingHit `json:"results" validate:"required"`
}
