// Package objective tracks investigation objectives through
// pending → active → completed, driven by forensic channel events.
package objective

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/channel"
	"github.com/starford/casefile/internal/models"
)

// Events an objective rule may complete on. An empty CompleteOn means the
// objective is only completed explicitly.
var completionEvents = []string{
	"",
	channel.EventClueDiscovered,
	channel.EventAnalysisComplete,
	channel.EventReportSubmitted,
	channel.EventReportGenerated,
}

// Tracker owns objective state for one session. Status never regresses and
// the score is always the sum of completed objectives' points.
type Tracker struct {
	mu             sync.Mutex
	order          []string
	objectives     map[string]*models.Objective
	completedOrder []string
	maxScore       int
	signalled      bool

	bus     *channel.Bus
	handles []channel.Handle
	logger  *slog.Logger
	now     func() time.Time
}

// New validates objs and creates a tracker publishing on bus.
func New(objs []models.Objective, bus *channel.Bus, logger *slog.Logger) (*Tracker, error) {
	if bus == nil {
		return nil, fmt.Errorf("objective: bus is required: %w", apperr.ErrInvalidArgument)
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		objectives: make(map[string]*models.Objective, len(objs)),
		bus:        bus,
		logger:     logger,
		now:        time.Now,
	}
	for _, o := range objs {
		if o.ID == "" {
			return nil, fmt.Errorf("objective: empty id: %w", apperr.ErrInvalidArgument)
		}
		if _, dup := t.objectives[o.ID]; dup {
			return nil, fmt.Errorf("objective %s: %w", o.ID, apperr.ErrAlreadyExists)
		}
		if o.Points <= 0 {
			return nil, fmt.Errorf("objective %s: points must be positive: %w", o.ID, apperr.ErrInvalidArgument)
		}
		if !slices.Contains(completionEvents, o.Rule.CompleteOn) {
			return nil, fmt.Errorf("objective %s: unknown completion event %q: %w", o.ID, o.Rule.CompleteOn, apperr.ErrInvalidArgument)
		}
		switch o.Status {
		case "":
			o.Status = models.StatusPending
		case models.StatusPending, models.StatusActive:
		default:
			return nil, fmt.Errorf("objective %s: initial status %q: %w", o.ID, o.Status, apperr.ErrInvalidArgument)
		}
		obj := o.Clone()
		t.objectives[o.ID] = &obj
		t.order = append(t.order, o.ID)
		t.maxScore += o.Points
	}
	return t, nil
}

// Attach subscribes the tracker to the events that drive transitions.
func (t *Tracker) Attach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.handles) > 0 {
		return
	}
	t.handles = []channel.Handle{
		channel.Subscribe(t.bus, channel.TopicEvidenceAnalyzed, t.onEvidenceAnalyzed),
		channel.Subscribe(t.bus, channel.TopicClueDiscovered, t.onClueDiscovered),
		channel.Subscribe(t.bus, channel.TopicAnalysisComplete, t.onAnalysisComplete),
		channel.Subscribe(t.bus, channel.TopicReportSubmitted, t.onReportSubmitted),
		channel.Subscribe(t.bus, channel.TopicReportGenerated, t.onReportGenerated),
	}
	t.logger.Debug("objective: tracker attached",
		slog.Int("clue_subscribers", t.bus.SubscriberCount(channel.EventClueDiscovered)),
		slog.Int("objectives", len(t.order)))
}

// Detach removes the tracker's subscriptions.
func (t *Tracker) Detach() {
	t.mu.Lock()
	handles := t.handles
	t.handles = nil
	t.mu.Unlock()
	for _, h := range handles {
		t.bus.Unsubscribe(h)
	}
}

// Get returns a copy of the objective.
func (t *Tracker) Get(id string) (models.Objective, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.objectives[id]
	if !ok {
		return models.Objective{}, fmt.Errorf("objective %s: %w", id, apperr.ErrNotFound)
	}
	return o.Clone(), nil
}

// Objectives returns copies of every objective in declaration order.
func (t *Tracker) Objectives() []models.Objective {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Objective, len(t.order))
	for i, id := range t.order {
		out[i] = t.objectives[id].Clone()
	}
	return out
}

// State returns the investigation summary. The score is recomputed from
// objective statuses.
func (t *Tracker) State() models.InvestigationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.InvestigationState{
		CompletedObjectiveIDs: slices.Clone(t.completedOrder),
		CurrentScore:          t.scoreLocked(),
		MaxScore:              t.maxScore,
		Complete:              len(t.completedOrder) == len(t.order) && len(t.order) > 0,
	}
}

// Activate moves a pending objective to active. It reports whether the
// status changed.
func (t *Tracker) Activate(id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.objectives[id]
	if !ok {
		return false, fmt.Errorf("objective %s: %w", id, apperr.ErrNotFound)
	}
	return t.activateLocked(o), nil
}

// CompleteObjective marks the objective completed. Completing an already
// completed objective is a no-op and awards nothing. It reports whether this
// call completed the objective.
func (t *Tracker) CompleteObjective(id string) (bool, error) {
	t.mu.Lock()
	o, ok := t.objectives[id]
	if !ok {
		t.mu.Unlock()
		return false, fmt.Errorf("objective %s: %w", id, apperr.ErrNotFound)
	}
	var out outbox
	t.completeLocked(o, &out)
	t.mu.Unlock()

	t.flush(out)
	return len(out.completed) > 0, nil
}

// outbox collects derived events so they are published after the lock is
// released.
type outbox struct {
	completed     []channel.ObjectiveCompleted
	investigation *channel.InvestigationComplete
}

func (t *Tracker) activateLocked(o *models.Objective) bool {
	if o.Status != models.StatusPending {
		return false
	}
	o.Status = models.StatusActive
	t.logger.Debug("objective: activated", slog.String("objective_id", o.ID))
	return true
}

func (t *Tracker) completeLocked(o *models.Objective, out *outbox) {
	if o.Status == models.StatusCompleted {
		return
	}
	o.Status = models.StatusCompleted
	t.completedOrder = append(t.completedOrder, o.ID)
	score := t.scoreLocked()
	out.completed = append(out.completed, channel.ObjectiveCompleted{
		ObjectiveID: o.ID,
		Title:       o.Title,
		Points:      o.Points,
		Score:       score,
		MaxScore:    t.maxScore,
	})
	t.logger.Info("objective: completed",
		slog.String("objective_id", o.ID),
		slog.Int("points", o.Points),
		slog.Int("score", score))

	if !t.signalled && len(t.completedOrder) == len(t.order) {
		t.signalled = true
		out.investigation = &channel.InvestigationComplete{
			Score:       score,
			MaxScore:    t.maxScore,
			CompletedAt: t.now(),
		}
		t.logger.Info("objective: investigation complete", slog.Int("score", score))
	}
}

func (t *Tracker) scoreLocked() int {
	score := 0
	for _, o := range t.objectives {
		if o.Status == models.StatusCompleted {
			score += o.Points
		}
	}
	return score
}

func (t *Tracker) flush(out outbox) {
	for _, ev := range out.completed {
		channel.Publish(t.bus, channel.TopicObjectiveCompleted, ev)
	}
	if out.investigation != nil {
		channel.Publish(t.bus, channel.TopicInvestigationComplete, *out.investigation)
	}
}

// completeMatching completes every objective, in declaration order, whose
// rule matches.
func (t *Tracker) completeMatching(match func(models.ObjectiveRule) bool) {
	t.mu.Lock()
	var out outbox
	for _, id := range t.order {
		o := t.objectives[id]
		if match(o.Rule) {
			t.completeLocked(o, &out)
		}
	}
	t.mu.Unlock()
	t.flush(out)
}

func (t *Tracker) onEvidenceAnalyzed(e channel.EvidenceAnalyzed) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.order {
		o := t.objectives[id]
		types := o.Rule.ActivateOnTypes
		if len(types) == 0 || slices.Contains(types, e.EvidenceType) {
			t.activateLocked(o)
		}
	}
}

func (t *Tracker) onClueDiscovered(c channel.ClueDiscovered) {
	t.completeMatching(func(r models.ObjectiveRule) bool {
		if r.CompleteOn != channel.EventClueDiscovered || !strings.EqualFold(r.ClueType, c.ClueType) {
			return false
		}
		return r.Category == "" || strings.EqualFold(r.Category, c.Category)
	})
}

func (t *Tracker) onAnalysisComplete(a channel.AnalysisComplete) {
	t.completeMatching(func(r models.ObjectiveRule) bool {
		return r.CompleteOn == channel.EventAnalysisComplete && (r.Tool == "" || strings.EqualFold(r.Tool, a.Tool))
	})
}

func (t *Tracker) onReportSubmitted(channel.ReportSubmitted) {
	t.completeMatching(func(r models.ObjectiveRule) bool {
		return r.CompleteOn == channel.EventReportSubmitted
	})
}

func (t *Tracker) onReportGenerated(channel.ReportGenerated) {
	t.completeMatching(func(r models.ObjectiveRule) bool {
		return r.CompleteOn == channel.EventReportGenerated
	})
}
