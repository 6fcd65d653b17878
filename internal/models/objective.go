package models

import "slices"

// ObjectiveStatus is the lifecycle state of an objective.
type ObjectiveStatus string

const (
	StatusPending   ObjectiveStatus = "pending"
	StatusActive    ObjectiveStatus = "active"
	StatusCompleted ObjectiveStatus = "completed"
)

// Rank orders statuses so transitions can be checked for regression.
func (s ObjectiveStatus) Rank() int {
	switch s {
	case StatusActive:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// ObjectiveRule declares which channel events drive an objective.
//
// ActivateOnTypes limits activation by evidence_analyzed to those evidence
// types; empty means any type. CompleteOn names the completing event.
type ObjectiveRule struct {
	ActivateOnTypes []EvidenceType `json:"activate_on_types,omitempty" yaml:"activate_on_types,omitempty"`
	CompleteOn      string         `json:"complete_on" yaml:"complete_on"`
	ClueType        string         `json:"clue_type,omitempty" yaml:"clue_type,omitempty"`
	Category        string         `json:"category,omitempty" yaml:"category,omitempty"`
	Tool            string         `json:"tool,omitempty" yaml:"tool,omitempty"`
}

// Objective is a scored unit of investigation work.
type Objective struct {
	ID       string          `json:"id" yaml:"id"`
	Title    string          `json:"title" yaml:"title"`
	Points   int             `json:"points" yaml:"points"`
	Priority Severity        `json:"priority" yaml:"priority"`
	Status   ObjectiveStatus `json:"status" yaml:"status,omitempty"`
	Steps    []string        `json:"steps,omitempty" yaml:"steps,omitempty"`
	Rule     ObjectiveRule   `json:"rule" yaml:"rule"`
}

// Clone returns a deep copy of the objective.
func (o Objective) Clone() Objective {
	out := o
	out.Steps = slices.Clone(o.Steps)
	out.Rule.ActivateOnTypes = slices.Clone(o.Rule.ActivateOnTypes)
	return out
}

// InvestigationState summarises objective progress.
type InvestigationState struct {
	CompletedObjectiveIDs []string `json:"completed_objective_ids"`
	CurrentScore          int      `json:"current_score"`
	MaxScore              int      `json:"max_score"`
	Complete              bool     `json:"complete"`
}
