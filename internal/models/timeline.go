package models

import (
	"maps"
	"time"
)

// TimelineEvent is a timestamped event extracted from an evidence item.
type TimelineEvent struct {
	ID               string            `json:"id" yaml:"id"`
	Timestamp        time.Time         `json:"timestamp" yaml:"timestamp"`
	SourceEvidenceID string            `json:"source_evidence_id" yaml:"source_evidence_id"`
	SourceType       EvidenceType      `json:"source_type" yaml:"source_type"`
	EventKind        string            `json:"event_kind" yaml:"event_kind"`
	Description      string            `json:"description" yaml:"description"`
	Significance     Severity          `json:"significance" yaml:"significance"`
	Details          map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
}

// Clone returns a deep copy of the event.
func (e TimelineEvent) Clone() TimelineEvent {
	out := e
	out.Details = maps.Clone(e.Details)
	return out
}

// CorrelationKind names the rule that produced a correlation.
type CorrelationKind string

const (
	CorrelationTemporal CorrelationKind = "temporal"
	CorrelationProcess  CorrelationKind = "process"
)

// Correlation is a derived link between two timeline events. It is a view
// recomputed on demand, never stored as authoritative state.
type Correlation struct {
	ID          string          `json:"id"`
	EventA      TimelineEvent   `json:"event_a"`
	EventB      TimelineEvent   `json:"event_b"`
	Kind        CorrelationKind `json:"kind"`
	Strength    float64         `json:"strength"`
	Description string          `json:"description"`
}
