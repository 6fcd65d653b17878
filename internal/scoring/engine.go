// Package scoring computes report scores from evidence-to-section
// assignments and manages the report's citations.
package scoring

import (
	"slices"
)

// ObjectiveScore is the outcome for one critical-evidence objective.
type ObjectiveScore struct {
	ID                string `json:"id"`
	Description       string `json:"description"`
	Points            int    `json:"points"`
	Awarded           int    `json:"awarded"`
	SatisfiedSections int    `json:"satisfied_sections"`
	RequiredSections  int    `json:"required_sections"`
}

// Result is a full score breakdown.
type Result struct {
	Total      int              `json:"total"`
	Max        int              `json:"max"`
	Objectives []ObjectiveScore `json:"objectives"`
}

// Score evaluates every schema objective against assignments, a mapping of
// section title to the evidence IDs cited there.
//
// An objective earns full points when each required section holds at least
// one of its evidence IDs, half points (rounded down) when only some do,
// and nothing otherwise.
func Score(assignments map[string][]string, schema []CriticalObjective) Result {
	res := Result{Objectives: make([]ObjectiveScore, 0, len(schema))}
	for _, obj := range schema {
		satisfied := 0
		for _, section := range obj.RequiredSections {
			if containsAny(assignments[section], obj.EvidenceIDs) {
				satisfied++
			}
		}

		awarded := 0
		switch {
		case len(obj.RequiredSections) == 0 || satisfied == 0:
		case satisfied == len(obj.RequiredSections):
			awarded = obj.Points
		default:
			awarded = obj.Points / 2
		}

		res.Objectives = append(res.Objectives, ObjectiveScore{
			ID:                obj.ID,
			Description:       obj.Description,
			Points:            obj.Points,
			Awarded:           awarded,
			SatisfiedSections: satisfied,
			RequiredSections:  len(obj.RequiredSections),
		})
		res.Total += awarded
		res.Max += obj.Points
	}
	return res
}

func containsAny(have, want []string) bool {
	for _, id := range have {
		if slices.Contains(want, id) {
			return true
		}
	}
	return false
}
