package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func schema() []CriticalObjective {
	return []CriticalObjective{
		{ID: "CE-1", Description: "Tie suspect to exfiltration", RequiredSections: []string{"Findings", "Timeline"}, EvidenceIDs: []string{"EV-001", "EV-002"}, Points: 25},
		{ID: "CE-2", Description: "Show malware persistence", RequiredSections: []string{"Findings"}, EvidenceIDs: []string{"EV-003"}, Points: 15},
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		assignments map[string][]string
		total       int
		awarded     []int
	}{
		{
			name:    "nothing cited",
			total:   0,
			awarded: []int{0, 0},
		},
		{
			name:        "all sections satisfied",
			assignments: map[string][]string{"Findings": {"EV-001", "EV-003"}, "Timeline": {"EV-002"}},
			total:       40,
			awarded:     []int{25, 15},
		},
		{
			name:        "partial credit rounds down",
			assignments: map[string][]string{"Findings": {"EV-002"}},
			total:       12,
			awarded:     []int{12, 0},
		},
		{
			name:        "unrelated evidence earns nothing",
			assignments: map[string][]string{"Findings": {"EV-009"}, "Timeline": {"EV-003"}},
			total:       0,
			awarded:     []int{0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(tt.assignments, schema())
			assert.Equal(t, tt.total, res.Total)
			assert.Equal(t, 40, res.Max)
			for i, want := range tt.awarded {
				assert.Equal(t, want, res.Objectives[i].Awarded, res.Objectives[i].ID)
			}
		})
	}
}

func TestScore_NoRequiredSections(t *testing.T) {
	res := Score(map[string][]string{"Findings": {"EV-001"}}, []CriticalObjective{{ID: "x", EvidenceIDs: []string{"EV-001"}, Points: 10}})
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, 10, res.Max)
}
