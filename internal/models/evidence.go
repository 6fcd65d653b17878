// Package models defines the domain types for Casefile.
package models

import (
	"maps"
	"slices"
	"time"
)

// EvidenceType classifies an acquired evidence item.
type EvidenceType string

const (
	EvidenceDiskImage      EvidenceType = "disk_image"
	EvidenceMemoryDump     EvidenceType = "memory_dump"
	EvidenceNetworkCapture EvidenceType = "network_capture"
	EvidenceLogFiles       EvidenceType = "log_files"
	EvidenceMobileBackup   EvidenceType = "mobile_backup"
	EvidenceEmailArchive   EvidenceType = "email_archive"
	EvidenceDocument       EvidenceType = "document"
)

// EvidenceTypes lists every known evidence type.
var EvidenceTypes = []EvidenceType{
	EvidenceDiskImage,
	EvidenceMemoryDump,
	EvidenceNetworkCapture,
	EvidenceLogFiles,
	EvidenceMobileBackup,
	EvidenceEmailArchive,
	EvidenceDocument,
}

// Severity is shared by findings, timeline significance and objective priority.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// EvidenceRecord is a catalog entry for one piece of acquired evidence.
//
// Only AnalysisComplete and Findings change after the record is created.
type EvidenceRecord struct {
	ID               string       `json:"id" yaml:"id"`
	Type             EvidenceType `json:"type" yaml:"type"`
	Name             string       `json:"name" yaml:"name"`
	Source           string       `json:"source" yaml:"source"`
	HashMD5          string       `json:"hash_md5" yaml:"hash_md5"`
	HashSHA256       string       `json:"hash_sha256" yaml:"hash_sha256"`
	AcquisitionTime  time.Time    `json:"acquisition_time" yaml:"acquisition_time"`
	Size             int64        `json:"size" yaml:"size"`
	RelevanceScore   float64      `json:"relevance_score" yaml:"relevance_score"`
	AnalysisComplete bool         `json:"analysis_complete" yaml:"analysis_complete"`
	Findings         []Finding    `json:"findings" yaml:"findings,omitempty"`
	PayloadPath      string       `json:"payload_path,omitempty" yaml:"payload_path,omitempty"`
}

// Clone returns a deep copy so callers never share the findings slice.
func (r EvidenceRecord) Clone() EvidenceRecord {
	out := r
	out.Findings = make([]Finding, len(r.Findings))
	for i, f := range r.Findings {
		out.Findings[i] = f.Clone()
	}
	return out
}

// Payload returns the payload-store path holding the raw evidence bytes.
func (r EvidenceRecord) Payload() string {
	if r.PayloadPath != "" {
		return r.PayloadPath
	}
	return r.ID
}

// Finding is one analysis result attached to an evidence record.
type Finding struct {
	ID         string            `json:"id" yaml:"id"`
	Tool       string            `json:"tool" yaml:"tool"`
	Summary    string            `json:"summary" yaml:"summary"`
	Severity   Severity          `json:"severity" yaml:"severity"`
	RecordedAt time.Time         `json:"recorded_at" yaml:"recorded_at"`
	Details    map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
}

// Clone returns a deep copy of the finding.
func (f Finding) Clone() Finding {
	out := f
	out.Details = maps.Clone(f.Details)
	return out
}

// ValidEvidenceType reports whether t is a known evidence type.
func ValidEvidenceType(t EvidenceType) bool {
	return slices.Contains(EvidenceTypes, t)
}
