package channel

import (
	"time"

	"github.com/starford/casefile/internal/models"
)

// Event names. Each has exactly one payload type, bound by its Topic.
const (
	EventEvidenceAnalyzed      = "evidence_analyzed"
	EventClueDiscovered        = "clue_discovered"
	EventAnalysisComplete      = "analysis_complete"
	EventReportSubmitted       = "report_submitted"
	EventReportGenerated       = "report_generated"
	EventObjectiveCompleted    = "objective_completed"
	EventInvestigationComplete = "investigation_complete"
	EventEvidenceVerified      = "evidence_verified"
	EventCustodyAppended       = "custody_appended"
)

// Clue types carried by ClueDiscovered.ClueType.
const (
	ClueIdentity      = "identity"
	ClueContact       = "contact"
	ClueLocation      = "location"
	ClueFinancial     = "financial"
	ClueCommunication = "communication"
	ClueMalware       = "malware"
)

// EvidenceAnalyzed is published when a tool finishes analysing one item.
type EvidenceAnalyzed struct {
	EvidenceID   string              `json:"evidence_id"`
	EvidenceType models.EvidenceType `json:"evidence_type"`
	Tool         string              `json:"tool"`
	Analyst      string              `json:"analyst"`
	Findings     int                 `json:"findings"`
}

// ClueDiscovered is published when a tool surfaces a clue. Category is the
// explicit routing key (e.g. "email", "phone" for contact clues).
type ClueDiscovered struct {
	ClueType    string `json:"clue_type"`
	Category    string `json:"category,omitempty"`
	EvidenceID  string `json:"evidence_id,omitempty"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
	Analyst     string `json:"analyst,omitempty"`
}

// AnalysisComplete is the aggregate signal that a tool has finished its pass.
type AnalysisComplete struct {
	Tool        string   `json:"tool"`
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
}

// ReportSubmitted carries the score of a submitted report.
type ReportSubmitted struct {
	Score     int `json:"score"`
	MaxScore  int `json:"max_score"`
	Citations int `json:"citations"`
}

// ReportGenerated is published after a report document is assembled.
type ReportGenerated struct {
	CaseNumber  string    `json:"case_number"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"max_score"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ObjectiveCompleted is derived by the tracker on first completion.
type ObjectiveCompleted struct {
	ObjectiveID string `json:"objective_id"`
	Title       string `json:"title"`
	Points      int    `json:"points"`
	Score       int    `json:"score"`
	MaxScore    int    `json:"max_score"`
}

// InvestigationComplete is published once, when every objective is done.
type InvestigationComplete struct {
	Score       int       `json:"score"`
	MaxScore    int       `json:"max_score"`
	CompletedAt time.Time `json:"completed_at"`
}

// EvidenceVerified reports an integrity check.
type EvidenceVerified struct {
	EvidenceID   string    `json:"evidence_id"`
	Valid        bool      `json:"valid"`
	OriginalHash string    `json:"original_hash"`
	CurrentHash  string    `json:"current_hash"`
	Reason       string    `json:"reason"`
	CheckedAt    time.Time `json:"checked_at"`
}

// CustodyAppended mirrors a new ledger entry.
type CustodyAppended struct {
	Entry models.CustodyEntry `json:"entry"`
}

// Topics.
var (
	TopicEvidenceAnalyzed      = Topic[EvidenceAnalyzed]{Name: EventEvidenceAnalyzed}
	TopicClueDiscovered        = Topic[ClueDiscovered]{Name: EventClueDiscovered}
	TopicAnalysisComplete      = Topic[AnalysisComplete]{Name: EventAnalysisComplete}
	TopicReportSubmitted       = Topic[ReportSubmitted]{Name: EventReportSubmitted}
	TopicReportGenerated       = Topic[ReportGenerated]{Name: EventReportGenerated}
	TopicObjectiveCompleted    = Topic[ObjectiveCompleted]{Name: EventObjectiveCompleted}
	TopicInvestigationComplete = Topic[InvestigationComplete]{Name: EventInvestigationComplete}
	TopicEvidenceVerified      = Topic[EvidenceVerified]{Name: EventEvidenceVerified}
	TopicCustodyAppended       = Topic[CustodyAppended]{Name: EventCustodyAppended}
)
