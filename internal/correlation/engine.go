// Package correlation links timeline events by time proximity and shared
// process or file identity.
package correlation

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/starford/casefile/internal/models"
)

const (
	DefaultThreshold       = time.Hour
	DefaultSameSourceBonus = 0.2
	DefaultCriticalBonus   = 0.3
	DefaultProcessStrength = 0.8
)

// Detail keys compared by the process rule.
const (
	DetailProcess = "process"
	DetailFile    = "file"
)

// Engine computes pairwise correlations. A zero Threshold disables temporal
// correlation.
type Engine struct {
	Threshold       time.Duration
	SameSourceBonus float64
	CriticalBonus   float64
	ProcessStrength float64
}

// NewEngine returns an engine with the default weights.
func NewEngine() Engine {
	return Engine{
		Threshold:       DefaultThreshold,
		SameSourceBonus: DefaultSameSourceBonus,
		CriticalBonus:   DefaultCriticalBonus,
		ProcessStrength: DefaultProcessStrength,
	}
}

// Correlate returns every correlation between distinct pairs of events,
// sorted by descending strength with ties broken by ID. Each unordered pair
// is visited once with the lexically smaller event ID first, so the result
// does not depend on input order.
func (e Engine) Correlate(events []models.TimelineEvent) []models.Correlation {
	sorted := slices.Clone(events)
	slices.SortFunc(sorted, func(a, b models.TimelineEvent) int { return cmp.Compare(a.ID, b.ID) })

	var out []models.Correlation
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if a.ID == b.ID {
				continue
			}
			if c, ok := e.temporal(a, b); ok {
				out = append(out, c)
			}
			if c, ok := e.process(a, b); ok {
				out = append(out, c)
			}
		}
	}

	slices.SortStableFunc(out, func(x, y models.Correlation) int {
		if c := cmp.Compare(y.Strength, x.Strength); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return out
}

func (e Engine) temporal(a, b models.TimelineEvent) (models.Correlation, bool) {
	if e.Threshold <= 0 {
		return models.Correlation{}, false
	}
	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	if delta > e.Threshold {
		return models.Correlation{}, false
	}

	strength := clamp(1 - float64(delta)/float64(e.Threshold))
	if a.SourceType == b.SourceType {
		strength += e.SameSourceBonus
	}
	if a.Significance == models.SeverityCritical || b.Significance == models.SeverityCritical {
		strength += e.CriticalBonus
	}

	return models.Correlation{
		ID:          pairID(models.CorrelationTemporal, a, b),
		EventA:      a.Clone(),
		EventB:      b.Clone(),
		Kind:        models.CorrelationTemporal,
		Strength:    clamp(strength),
		Description: fmt.Sprintf("%s and %s occurred %s apart", a.EventKind, b.EventKind, delta.Round(time.Second)),
	}, true
}

func (e Engine) process(a, b models.TimelineEvent) (models.Correlation, bool) {
	key, value := sharedDetail(a, b)
	if key == "" {
		return models.Correlation{}, false
	}
	return models.Correlation{
		ID:          pairID(models.CorrelationProcess, a, b),
		EventA:      a.Clone(),
		EventB:      b.Clone(),
		Kind:        models.CorrelationProcess,
		Strength:    clamp(e.ProcessStrength),
		Description: fmt.Sprintf("both events reference %s %q", key, value),
	}, true
}

// sharedDetail reports the first of process or file that both events carry
// with the same non-empty value.
func sharedDetail(a, b models.TimelineEvent) (string, string) {
	for _, key := range []string{DetailProcess, DetailFile} {
		va, vb := a.Details[key], b.Details[key]
		if va != "" && va == vb {
			return key, va
		}
	}
	return "", ""
}

func pairID(kind models.CorrelationKind, a, b models.TimelineEvent) string {
	return string(kind) + ":" + a.ID + "|" + b.ID
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
