package correlation

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/models"
)

// Timeline accumulates events extracted by analysis tools.
type Timeline struct {
	mu     sync.RWMutex
	events []models.TimelineEvent
	ids    map[string]struct{}
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[string]struct{})}
}

// Add appends events. The batch is rejected as a whole if any event has an
// empty ID or repeats an ID already present.
func (t *Timeline) Add(events ...models.TimelineEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if strings.TrimSpace(ev.ID) == "" {
			return fmt.Errorf("timeline event: empty id: %w", apperr.ErrInvalidArgument)
		}
		if ev.Timestamp.IsZero() {
			return fmt.Errorf("timeline event %s: missing timestamp: %w", ev.ID, apperr.ErrInvalidArgument)
		}
		if _, dup := t.ids[ev.ID]; dup {
			return fmt.Errorf("timeline event %s: %w", ev.ID, apperr.ErrAlreadyExists)
		}
		if _, dup := seen[ev.ID]; dup {
			return fmt.Errorf("timeline event %s: %w", ev.ID, apperr.ErrAlreadyExists)
		}
		seen[ev.ID] = struct{}{}
	}
	for _, ev := range events {
		t.events = append(t.events, ev.Clone())
		t.ids[ev.ID] = struct{}{}
	}
	return nil
}

// Len returns the number of events.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// Events returns copies of all events in chronological order.
func (t *Timeline) Events() []models.TimelineEvent {
	return t.filter(func(models.TimelineEvent) bool { return true })
}

// ForEvidence returns the events extracted from one evidence item.
func (t *Timeline) ForEvidence(evidenceID string) []models.TimelineEvent {
	return t.filter(func(ev models.TimelineEvent) bool { return ev.SourceEvidenceID == evidenceID })
}

func (t *Timeline) filter(keep func(models.TimelineEvent) bool) []models.TimelineEvent {
	t.mu.RLock()
	out := make([]models.TimelineEvent, 0, len(t.events))
	for _, ev := range t.events {
		if keep(ev) {
			out = append(out, ev.Clone())
		}
	}
	t.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b models.TimelineEvent) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
