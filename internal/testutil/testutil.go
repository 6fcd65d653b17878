// Package testutil provides shared fixtures: payload directories, the audit
// database and a fully wired investigation session.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/casefile/internal/channel"
	"github.com/starford/casefile/internal/checksum"
	"github.com/starford/casefile/internal/index"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/parser"
	"github.com/starford/casefile/internal/session"
	"github.com/starford/casefile/internal/storage"
)

// Payload contents of the fixture evidence.
var Payloads = map[string][]byte{
	"EV-001": []byte("raw sectors of the suspect laptop"),
	"EV-002": []byte("volatility memory dump of workstation 7"),
	"EV-003": []byte("2024-03-14T22:04:11Z sshd[411]: Accepted publickey for jdoe"),
}

// TestDB opens a temporary SQLite audit database closed at cleanup.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open audit db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestPayloads writes the fixture payloads into a temporary payload store.
func TestPayloads(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("payload store: %v", err)
	}
	for id, data := range Payloads {
		if err := fs.Write(id, data); err != nil {
			t.Fatalf("write payload %s: %v", id, err)
		}
	}
	return dir, fs
}

func record(id string, typ models.EvidenceType, name string, acquired time.Time) models.EvidenceRecord {
	data := Payloads[id]
	return models.EvidenceRecord{
		ID:              id,
		Type:            typ,
		Name:            name,
		Source:          "Seized 2024-03-15, Unit 4",
		HashMD5:         checksum.SumMD5(data),
		HashSHA256:      checksum.Sum(data),
		AcquisitionTime: acquired,
		Size:            int64(len(data)),
		RelevanceScore:  0.5,
	}
}

// Case returns the fixture case: three evidence items, three clue-driven
// objectives, two report sections and one critical-evidence objective.
func Case() *parser.Case {
	acquired := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	return &parser.Case{
		Metadata: models.CaseMetadata{
			CaseNumber:   "CF-2024-0042",
			Title:        "Workstation 7 exfiltration",
			Investigator: "A. Analyst",
			Agency:       "Regional Cyber Unit",
			OpenedAt:     acquired,
		},
		Evidence: []models.EvidenceRecord{
			record("EV-001", models.EvidenceDiskImage, "Laptop disk image", acquired),
			record("EV-002", models.EvidenceMemoryDump, "Workstation memory", acquired.Add(time.Hour)),
			record("EV-003", models.EvidenceLogFiles, "Auth logs", acquired.Add(2*time.Hour)),
		},
		Objectives: []models.Objective{
			{ID: "OBJ-IDENTITY", Title: "Identify the suspect", Points: 20, Priority: models.SeverityHigh,
				Rule: models.ObjectiveRule{CompleteOn: channel.EventClueDiscovered, ClueType: channel.ClueIdentity}},
			{ID: "OBJ-EMAIL", Title: "Recover the suspect's email", Points: 15, Priority: models.SeverityMedium,
				Rule: models.ObjectiveRule{CompleteOn: channel.EventClueDiscovered, ClueType: channel.ClueContact, Category: "email"}},
			{ID: "OBJ-PHONE", Title: "Recover the suspect's phone", Points: 10, Priority: models.SeverityMedium,
				Rule: models.ObjectiveRule{CompleteOn: channel.EventClueDiscovered, ClueType: channel.ClueContact, Category: "phone"}},
		},
		Sections: []models.Section{
			{Title: "Findings", RequiredEvidenceTypes: []models.EvidenceType{models.EvidenceDiskImage}, MinEvidence: 1, MaxEvidence: 3},
			{Title: "Timeline", MinEvidence: 1},
		},
		CriticalEvidence: []models.CriticalObjective{
			{ID: "CE-1", Description: "Tie the suspect to the exfiltration", RequiredSections: []string{"Findings", "Timeline"},
				EvidenceIDs: []string{"EV-001", "EV-003"}, Points: 25},
		},
	}
}

// NewSession opens a session over the fixture case and payloads.
func NewSession(t *testing.T, cfg session.Config) (*session.Session, *storage.FS) {
	t.Helper()
	_, fs := TestPayloads(t)
	if cfg.Case == nil {
		cfg.Case = Case()
	}
	if cfg.Payloads == nil {
		cfg.Payloads = fs
	}
	s, err := session.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(s.Close)
	return s, fs
}
