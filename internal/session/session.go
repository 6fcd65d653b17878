// Package session wires the investigation components into one session
// object that is passed explicitly to every tool surface.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/channel"
	"github.com/starford/casefile/internal/checksum"
	"github.com/starford/casefile/internal/correlation"
	"github.com/starford/casefile/internal/custody"
	"github.com/starford/casefile/internal/evidence"
	"github.com/starford/casefile/internal/integrity"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/objective"
	"github.com/starford/casefile/internal/parser"
	"github.com/starford/casefile/internal/scoring"
)

// Actor identifies who performed a workflow operation and from where. It is
// recorded on every custody entry the operation appends.
type Actor struct {
	User     string `json:"user"`
	Location string `json:"location"`
}

func (a Actor) orDefault() Actor {
	if a.User == "" {
		a.User = "unknown"
	}
	if a.Location == "" {
		a.Location = "workstation"
	}
	return a
}

// Config holds the collaborators used by Open.
type Config struct {
	// Case supplies metadata, objectives, report sections, scoring schema and
	// seed timeline events. Its evidence list is the default catalog.
	Case *parser.Case
	// Provider overrides the evidence catalog source.
	Provider evidence.Provider
	Payloads integrity.PayloadSource
	Hasher   integrity.Hasher
	Sink     custody.Sink

	VerifyTimeout     time.Duration
	VerifyConcurrency int
	Correlation       correlation.Engine

	Logger *slog.Logger
}

// Session is one investigation: the evidence store, custody ledger, event
// channel, objective tracker, verifier, timeline, report and correlation
// engine, constructed once.
type Session struct {
	meta     models.CaseMetadata
	store    *evidence.Store
	ledger   *custody.Ledger
	bus      *channel.Bus
	tracker  *objective.Tracker
	verifier *integrity.Verifier
	timeline *correlation.Timeline
	report   *scoring.Report
	engine   correlation.Engine

	logger *slog.Logger
	now    func() time.Time
}

// Open loads the evidence catalog and builds a session from cfg.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Payloads == nil {
		return nil, fmt.Errorf("session: payload source is required: %w", apperr.ErrInvalidArgument)
	}
	c := cfg.Case
	if c == nil {
		c = &parser.Case{}
	}

	provider := cfg.Provider
	if provider == nil {
		provider = evidence.StaticProvider(c.Evidence)
	}
	store, err := evidence.Load(ctx, provider, evidence.PlaceholderProvider{}, logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	bus := channel.NewBus(logger)
	tracker, err := objective.New(c.Objectives, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	report, err := scoring.NewReport(c.Sections, c.CriticalEvidence, logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	timeline := correlation.NewTimeline()
	if err := timeline.Add(c.Timeline...); err != nil {
		return nil, fmt.Errorf("session: seed timeline: %w", err)
	}

	ledgerOpts := []custody.Option{custody.WithLogger(logger)}
	if cfg.Sink != nil {
		ledgerOpts = append(ledgerOpts, custody.WithSink(cfg.Sink))
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = checksum.Hasher{}
	}
	verifier := integrity.New(store, cfg.Payloads, hasher,
		integrity.WithTimeout(cfg.VerifyTimeout),
		integrity.WithConcurrency(cfg.VerifyConcurrency),
		integrity.WithLogger(logger))

	engine := cfg.Correlation
	if engine == (correlation.Engine{}) {
		engine = correlation.NewEngine()
	}

	s := New(Deps{
		Case:     c.Metadata,
		Store:    store,
		Ledger:   custody.New(ledgerOpts...),
		Bus:      bus,
		Tracker:  tracker,
		Verifier: verifier,
		Timeline: timeline,
		Report:   report,
		Engine:   engine,
		Logger:   logger,
	})
	tracker.Attach()
	return s, nil
}

// Deps are the already-constructed components of a session.
type Deps struct {
	Case     models.CaseMetadata
	Store    *evidence.Store
	Ledger   *custody.Ledger
	Bus      *channel.Bus
	Tracker  *objective.Tracker
	Verifier *integrity.Verifier
	Timeline *correlation.Timeline
	Report   *scoring.Report
	Engine   correlation.Engine
	Logger   *slog.Logger
}

// New assembles a session from components. The tracker is expected to be
// attached to d.Bus by the caller.
func New(d Deps) *Session {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Session{
		meta:     d.Case,
		store:    d.Store,
		ledger:   d.Ledger,
		bus:      d.Bus,
		tracker:  d.Tracker,
		verifier: d.Verifier,
		timeline: d.Timeline,
		report:   d.Report,
		engine:   d.Engine,
		logger:   d.Logger,
		now:      time.Now,
	}
}

// Case returns the case metadata.
func (s *Session) Case() models.CaseMetadata { return s.meta }

// Bus returns the session's event channel for observers.
func (s *Session) Bus() *channel.Bus { return s.bus }

// Sections returns the report sections.
func (s *Session) Sections() []models.Section { return s.report.Sections() }

// ListEvidence returns catalog records matching f.
func (s *Session) ListEvidence(f evidence.Filter) []models.EvidenceRecord {
	return s.store.List(f)
}

// GetEvidence returns one record.
func (s *Session) GetEvidence(id string) (models.EvidenceRecord, error) {
	return s.store.Get(id)
}

// EvidenceIDs returns every catalog ID in list order.
func (s *Session) EvidenceIDs() []string {
	records := s.store.List(evidence.Filter{})
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// LogAccess appends a custody entry for an action on known evidence.
func (s *Session) LogAccess(actor Actor, evidenceID, action string) (models.CustodyEntry, error) {
	if strings.TrimSpace(action) == "" {
		return models.CustodyEntry{}, fmt.Errorf("custody: empty action: %w", apperr.ErrInvalidArgument)
	}
	if _, err := s.store.Get(evidenceID); err != nil {
		return models.CustodyEntry{}, err
	}
	return s.appendCustody(actor, evidenceID, action)
}

func (s *Session) appendCustody(actor Actor, evidenceID, action string) (models.CustodyEntry, error) {
	actor = actor.orDefault()
	entry, err := s.ledger.Append(evidenceID, action, actor.User, actor.Location)
	if err != nil {
		return models.CustodyEntry{}, err
	}
	channel.Publish(s.bus, channel.TopicCustodyAppended, channel.CustodyAppended{Entry: entry})
	return entry, nil
}

// Custody returns the custody entries of one evidence item in append order.
func (s *Session) Custody(evidenceID string) ([]models.CustodyEntry, error) {
	if _, err := s.store.Get(evidenceID); err != nil {
		return nil, err
	}
	return s.ledger.EntriesFor(evidenceID), nil
}

// VerifyCustodyChain checks the hash chain of the whole ledger.
func (s *Session) VerifyCustodyChain() error {
	return s.ledger.VerifyChain()
}

// Analysis is the outcome of one tool's pass over an evidence item.
type Analysis struct {
	Tool     string           `json:"tool"`
	Findings []models.Finding `json:"findings"`
	Complete bool             `json:"complete"`
}

// RecordAnalysis attaches findings to an evidence item, logs the action and
// publishes evidence_analyzed.
func (s *Session) RecordAnalysis(actor Actor, evidenceID string, a Analysis) (models.EvidenceRecord, error) {
	if strings.TrimSpace(a.Tool) == "" {
		return models.EvidenceRecord{}, fmt.Errorf("analysis: empty tool: %w", apperr.ErrInvalidArgument)
	}
	findings := slices.Clone(a.Findings)
	for i := range findings {
		if findings[i].Tool == "" {
			findings[i].Tool = a.Tool
		}
	}
	patch := evidence.Patch{AppendFindings: findings}
	if a.Complete {
		patch.AnalysisComplete = &a.Complete
	}
	rec, err := s.store.Update(evidenceID, patch)
	if err != nil {
		return models.EvidenceRecord{}, err
	}
	if _, err := s.appendCustody(actor, evidenceID, models.ActionAnalysisRecorded); err != nil {
		return models.EvidenceRecord{}, err
	}
	channel.Publish(s.bus, channel.TopicEvidenceAnalyzed, channel.EvidenceAnalyzed{
		EvidenceID:   rec.ID,
		EvidenceType: rec.Type,
		Tool:         a.Tool,
		Analyst:      actor.orDefault().User,
		Findings:     len(findings),
	})
	return rec, nil
}

// RecordClue publishes clue_discovered. When the clue names an evidence item
// it must exist and the discovery is logged against it.
func (s *Session) RecordClue(actor Actor, clue channel.ClueDiscovered) error {
	if strings.TrimSpace(clue.ClueType) == "" {
		return fmt.Errorf("clue: empty type: %w", apperr.ErrInvalidArgument)
	}
	if clue.EvidenceID != "" {
		if _, err := s.store.Get(clue.EvidenceID); err != nil {
			return err
		}
		if _, err := s.appendCustody(actor, clue.EvidenceID, models.ActionClueRecorded); err != nil {
			return err
		}
	}
	if clue.Analyst == "" {
		clue.Analyst = actor.orDefault().User
	}
	channel.Publish(s.bus, channel.TopicClueDiscovered, clue)
	return nil
}

// CompleteAnalysis publishes the aggregate analysis_complete signal for tool.
func (s *Session) CompleteAnalysis(tool string, evidenceIDs []string) error {
	if strings.TrimSpace(tool) == "" {
		return fmt.Errorf("analysis: empty tool: %w", apperr.ErrInvalidArgument)
	}
	for _, id := range evidenceIDs {
		if _, err := s.store.Get(id); err != nil {
			return err
		}
	}
	channel.Publish(s.bus, channel.TopicAnalysisComplete, channel.AnalysisComplete{
		Tool:        tool,
		EvidenceIDs: slices.Clone(evidenceIDs),
	})
	return nil
}

// Verify checks one evidence item's integrity, logs the outcome for known
// items and publishes evidence_verified.
func (s *Session) Verify(ctx context.Context, actor Actor, evidenceID string) integrity.Result {
	res := s.verifier.Verify(ctx, evidenceID)
	s.afterVerify(actor, res)
	return res
}

// VerifyAll verifies ids, or the whole catalog when ids is empty. Results
// keep the order of ids.
func (s *Session) VerifyAll(ctx context.Context, actor Actor, ids []string) []integrity.Result {
	if len(ids) == 0 {
		ids = s.EvidenceIDs()
	}
	results := s.verifier.VerifyAll(ctx, ids)
	for _, res := range results {
		s.afterVerify(actor, res)
	}
	return results
}

func (s *Session) afterVerify(actor Actor, res integrity.Result) {
	if res.Reason != integrity.ReasonNotFound {
		action := models.ActionIntegrityVerified
		if !res.Valid {
			action = models.ActionIntegrityFailed
		}
		if _, err := s.appendCustody(actor, res.EvidenceID, action); err != nil {
			s.logger.Warn("session: custody append failed", slog.String("evidence_id", res.EvidenceID), slog.String("error", err.Error()))
		}
	}
	channel.Publish(s.bus, channel.TopicEvidenceVerified, channel.EvidenceVerified{
		EvidenceID:   res.EvidenceID,
		Valid:        res.Valid,
		OriginalHash: res.OriginalHash,
		CurrentHash:  res.CurrentHash,
		Reason:       res.Reason,
		CheckedAt:    res.CheckedAt,
	})
}

// AddTimelineEvents adds extracted events. Events naming a source evidence
// item must reference a known record.
func (s *Session) AddTimelineEvents(events ...models.TimelineEvent) error {
	for _, ev := range events {
		if ev.SourceEvidenceID == "" {
			continue
		}
		if _, err := s.store.Get(ev.SourceEvidenceID); err != nil {
			return err
		}
	}
	return s.timeline.Add(events...)
}

// Timeline returns the accumulated events in chronological order.
func (s *Session) Timeline() []models.TimelineEvent {
	return s.timeline.Events()
}

// TimelineFor returns the events extracted from one evidence item.
func (s *Session) TimelineFor(evidenceID string) ([]models.TimelineEvent, error) {
	if _, err := s.store.Get(evidenceID); err != nil {
		return nil, err
	}
	return s.timeline.ForEvidence(evidenceID), nil
}

// Correlations recomputes correlations over the whole timeline.
func (s *Session) Correlations() []models.Correlation {
	return s.engine.Correlate(s.timeline.Events())
}

// Cite places known evidence in a report section and logs the citation.
func (s *Session) Cite(actor Actor, section, evidenceID string) (models.Citation, error) {
	if _, err := s.store.Get(evidenceID); err != nil {
		return models.Citation{}, err
	}
	c, err := s.report.Cite(section, evidenceID)
	if err != nil {
		return models.Citation{}, err
	}
	if _, err := s.appendCustody(actor, evidenceID, models.ActionCitedInReport); err != nil {
		return models.Citation{}, err
	}
	return c, nil
}

// Uncite removes a citation and logs the removal.
func (s *Session) Uncite(actor Actor, section, evidenceID string) error {
	if err := s.report.Uncite(section, evidenceID); err != nil {
		return err
	}
	_, err := s.appendCustody(actor, evidenceID, models.ActionRemovedFromReport)
	return err
}

// Citations returns the report's citations.
func (s *Session) Citations() []models.Citation {
	return s.report.Citations()
}

// ReportScore recomputes the report score.
func (s *Session) ReportScore() scoring.Result {
	return s.report.Score()
}

// ReportIssues lists report sections that are not yet complete.
func (s *Session) ReportIssues() []scoring.Issue {
	return s.report.Validate(s.evidenceType)
}

func (s *Session) evidenceType(id string) (models.EvidenceType, bool) {
	rec, err := s.store.Get(id)
	if err != nil {
		return "", false
	}
	return rec.Type, true
}

// Submission is the outcome of SubmitReport.
type Submission struct {
	Score       scoring.Result  `json:"score"`
	Issues      []scoring.Issue `json:"issues"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// SubmitReport scores the report and publishes report_submitted. Incomplete
// sections are reported in Issues but do not block submission.
func (s *Session) SubmitReport(actor Actor) Submission {
	sub := Submission{
		Score:       s.report.Score(),
		Issues:      s.ReportIssues(),
		SubmittedAt: s.now(),
	}
	s.logger.Info("session: report submitted",
		slog.String("user", actor.orDefault().User),
		slog.Int("score", sub.Score.Total),
		slog.Int("max_score", sub.Score.Max),
		slog.Int("issues", len(sub.Issues)))
	channel.Publish(s.bus, channel.TopicReportSubmitted, channel.ReportSubmitted{
		Score:     sub.Score.Total,
		MaxScore:  sub.Score.Max,
		Citations: len(s.report.Citations()),
	})
	return sub
}

// State returns the objective summary.
func (s *Session) State() models.InvestigationState {
	return s.tracker.State()
}

// Objectives returns every objective.
func (s *Session) Objectives() []models.Objective {
	return s.tracker.Objectives()
}

// CompleteObjective completes an objective directly.
func (s *Session) CompleteObjective(id string) (bool, error) {
	return s.tracker.CompleteObjective(id)
}

// Close detaches the tracker from the channel.
func (s *Session) Close() {
	s.tracker.Detach()
}
