package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/channel"
	"github.com/starford/casefile/internal/evidence"
	"github.com/starford/casefile/internal/integrity"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/session"
	"github.com/starford/casefile/internal/testutil"
)

var analyst = session.Actor{User: "a.analyst", Location: "lab-2"}

func TestScenario_CluesCompleteObjectives(t *testing.T) {
	s, _ := testutil.NewSession(t, session.Config{})
	ctx := context.Background()

	for _, res := range s.VerifyAll(ctx, analyst, nil) {
		require.True(t, res.Valid, "%s: %s", res.EvidenceID, res.Reason)
		assert.Equal(t, res.OriginalHash, res.CurrentHash)
	}

	var completed int
	channel.Subscribe(s.Bus(), channel.TopicInvestigationComplete, func(channel.InvestigationComplete) { completed++ })

	assert.Equal(t, 0, s.State().CurrentScore)
	_, err := s.RecordAnalysis(analyst, "EV-001", session.Analysis{Tool: "autopsy"})
	require.NoError(t, err)
	require.NoError(t, s.RecordClue(analyst, channel.ClueDiscovered{ClueType: channel.ClueIdentity, Value: "John Doe", EvidenceID: "EV-001"}))
	require.NoError(t, s.RecordClue(analyst, channel.ClueDiscovered{ClueType: channel.ClueContact, Category: "email", Value: "jdoe@example.com"}))
	require.NoError(t, s.RecordClue(analyst, channel.ClueDiscovered{ClueType: channel.ClueContact, Category: "phone", Value: "+1 555 0100"}))

	st := s.State()
	assert.Equal(t, 45, st.CurrentScore)
	assert.Equal(t, st.MaxScore, st.CurrentScore)
	assert.True(t, st.Complete)
	assert.Equal(t, 1, completed)
}

func TestVerify_TamperedPayload(t *testing.T) {
	s, fs := testutil.NewSession(t, session.Config{})
	ctx := context.Background()

	require.True(t, s.Verify(ctx, analyst, "EV-002").Valid)
	require.NoError(t, fs.Write("EV-002", []byte("overwritten")))

	var seen []channel.EvidenceVerified
	channel.Subscribe(s.Bus(), channel.TopicEvidenceVerified, func(e channel.EvidenceVerified) { seen = append(seen, e) })

	res := s.Verify(ctx, analyst, "EV-002")
	assert.False(t, res.Valid)
	assert.Equal(t, integrity.ReasonHashMismatch, res.Reason)
	require.ErrorIs(t, res.Err(), apperr.ErrIntegrityFailure)
	require.Len(t, seen, 1)
	assert.False(t, seen[0].Valid)

	entries, err := s.Custody("EV-002")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionIntegrityVerified, entries[0].Action)
	assert.Equal(t, models.ActionIntegrityFailed, entries[1].Action)
	assert.Equal(t, "a.analyst", entries[1].User)
}

func TestVerify_UnknownEvidenceNotLogged(t *testing.T) {
	s, _ := testutil.NewSession(t, session.Config{})

	res := s.Verify(context.Background(), analyst, "EV-404")
	assert.False(t, res.Valid)
	assert.Equal(t, integrity.ReasonNotFound, res.Reason)
	require.NoError(t, s.VerifyCustodyChain())

	_, err := s.Custody("EV-404")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRecordAnalysis(t *testing.T) {
	s, _ := testutil.NewSession(t, session.Config{})

	var analyzed []channel.EvidenceAnalyzed
	channel.Subscribe(s.Bus(), channel.TopicEvidenceAnalyzed, func(e channel.EvidenceAnalyzed) { analyzed = append(analyzed, e) })

	rec, err := s.RecordAnalysis(analyst, "EV-002", session.Analysis{
		Tool:     "volatility",
		Findings: []models.Finding{{Summary: "injected code in svchost.exe", Severity: models.SeverityHigh}},
		Complete: true,
	})
	require.NoError(t, err)
	assert.True(t, rec.AnalysisComplete)
	require.Len(t, rec.Findings, 1)
	assert.Equal(t, "volatility", rec.Findings[0].Tool)
	assert.NotEmpty(t, rec.Findings[0].ID)

	require.Len(t, analyzed, 1)
	assert.Equal(t, models.EvidenceMemoryDump, analyzed[0].EvidenceType)
	assert.Equal(t, 1, analyzed[0].Findings)

	entries, err := s.Custody("EV-002")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionAnalysisRecorded, entries[0].Action)

	_, err = s.RecordAnalysis(analyst, "EV-404", session.Analysis{Tool: "volatility"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.RecordAnalysis(analyst, "EV-002", session.Analysis{})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestRecordClue_Validation(t *testing.T) {
	s, _ := testutil.NewSession(t, session.Config{})

	require.ErrorIs(t, s.RecordClue(analyst, channel.ClueDiscovered{}), apperr.ErrInvalidArgument)
	require.ErrorIs(t, s.RecordClue(analyst, channel.ClueDiscovered{ClueType: channel.ClueIdentity, EvidenceID: "EV-404"}), apperr.ErrNotFound)
	assert.Equal(t, 0, s.State().CurrentScore)
}

func TestCompleteAnalysis(t *testing.T) {
	s, _ := testutil.NewSession(t, session.Config{})

	var got []channel.AnalysisComplete
	channel.Subscribe(s.Bus(), channel.TopicAnalysisComplete, func(e channel.AnalysisComplete) { got = append(got, e) })

	require.NoError(t, s.CompleteAnalysis("autopsy", []string{"EV-001"}))
	require.ErrorIs(t, s.CompleteAnalysis("autopsy", []string{"EV-404"}), apperr.ErrNotFound)
	require.ErrorIs(t, s.CompleteAnalysis(" ", nil), apperr.ErrInvalidArgument)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"EV-001"}, got[0].EvidenceIDs)
}

func TestLogAccess(t *testing.T) {
	s, _ := testutil.NewSession(t, session.Config{})

	var appended []models.CustodyEntry
	channel.Subscribe(s.Bus(), channel.TopicCustodyAppended, func(e channel.CustodyAppended) { appended = append(appended, e.Entry) })

	for i := 0; i < 3; i++ {
		_, err := s.LogAccess(analyst, "EV-003", models.ActionEvidenceSelected)
		require.NoError(t, err)
	}
	first, err := s.Custody("EV-003")
	require.NoError(t, err)

	_, err = s.LogAccess(session.Actor{}, "EV-003", models.ActionImageMounted)
	require.NoError(t, err)
	entries, err := s.Custody("EV-003")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, first, entries[:3], "earlier entries never change")
	assert.Equal(t, "unknown", entries[3].User)
	assert.Len(t, appended, 4)
	require.NoError(t, s.VerifyCustodyChain())

	_, err = s.LogAccess(analyst, "EV-404", models.ActionEvidenceSelected)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.LogAccess(analyst, "EV-003", "")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestTimelineAndCorrelations(t *testing.T) {
	s, _ := testutil.NewSession(t, session.Config{})
	at := time.Date(2024, 3, 14, 22, 0, 0, 0, time.UTC)

	require.NoError(t, s.AddTimelineEvents(
		models.TimelineEvent{ID: "T1", Timestamp: at, SourceEvidenceID: "EV-002", SourceType: models.EvidenceMemoryDump,
			EventKind: "Process Started", Details: map[string]string{"process": "rclone.exe"}},
		models.TimelineEvent{ID: "T2", Timestamp: at.Add(10 * time.Minute), SourceEvidenceID: "EV-003", SourceType: models.EvidenceLogFiles,
			EventKind: "Network Connection", Details: map[string]string{"process": "rclone.exe"}},
	))
	require.ErrorIs(t, s.AddTimelineEvents(models.TimelineEvent{ID: "T3", Timestamp: at, SourceEvidenceID: "EV-404"}), apperr.ErrNotFound)

	assert.Len(t, s.Timeline(), 2)
	corr := s.Correlations()
	require.Len(t, corr, 2)
	assert.Equal(t, models.CorrelationTemporal, corr[0].Kind)
	assert.Equal(t, models.CorrelationProcess, corr[1].Kind)
}

func TestCitationsAndSubmit(t *testing.T) {
	s, _ := testutil.NewSession(t, session.Config{})

	_, err := s.Cite(analyst, "Findings", "EV-001")
	require.NoError(t, err)
	_, err = s.Cite(analyst, "Findings", "EV-001")
	require.ErrorIs(t, err, apperr.ErrDuplicateCitation)
	_, err = s.Cite(analyst, "Findings", "EV-404")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, map[string][]string{"Findings": {"EV-001"}}, reportAssignments(s))
	assert.Equal(t, 12, s.ReportScore().Total)

	_, err = s.Cite(analyst, "Timeline", "EV-003")
	require.NoError(t, err)
	assert.Equal(t, 25, s.ReportScore().Total)
	assert.Empty(t, s.ReportIssues())

	var submitted []channel.ReportSubmitted
	channel.Subscribe(s.Bus(), channel.TopicReportSubmitted, func(e channel.ReportSubmitted) { submitted = append(submitted, e) })
	sub := s.SubmitReport(analyst)
	assert.Equal(t, 25, sub.Score.Total)
	require.Len(t, submitted, 1)
	assert.Equal(t, 2, submitted[0].Citations)

	require.NoError(t, s.Uncite(analyst, "Timeline", "EV-003"))
	assert.Equal(t, 12, s.ReportScore().Total)

	entries, err := s.Custody("EV-003")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionCitedInReport, entries[0].Action)
	assert.Equal(t, models.ActionRemovedFromReport, entries[1].Action)
}

func reportAssignments(s *session.Session) map[string][]string {
	out := make(map[string][]string)
	for _, c := range s.Citations() {
		out[c.SectionTitle] = append(out[c.SectionTitle], c.EvidenceID)
	}
	return out
}

func TestGenerateReport(t *testing.T) {
	s, _ := testutil.NewSession(t, session.Config{})
	_, err := s.RecordAnalysis(analyst, "EV-001", session.Analysis{
		Tool:     "autopsy",
		Findings: []models.Finding{{Summary: "deleted archive recovered", Severity: models.SeverityCritical}},
	})
	require.NoError(t, err)
	_, err = s.Cite(analyst, "Findings", "EV-001")
	require.NoError(t, err)

	var generated int
	channel.Subscribe(s.Bus(), channel.TopicReportGenerated, func(channel.ReportGenerated) { generated++ })

	doc, err := s.GenerateReport()
	require.NoError(t, err)
	assert.Equal(t, 1, generated)
	require.Len(t, doc.Sections, 2)
	require.Len(t, doc.Sections[0].Evidence, 1)
	assert.Empty(t, doc.Sections[1].Evidence)
	assert.NotEmpty(t, doc.Issues)

	md, err := doc.Markdown()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(md, "# CF-2024-0042: Workstation 7 exfiltration"))
	assert.Contains(t, md, "deleted archive recovered")
	assert.Contains(t, md, "_No evidence cited._")
	assert.Contains(t, md, "Outstanding issues")
}

func TestOpen_FallsBackToPlaceholder(t *testing.T) {
	failing := evidence.ProviderFunc(func(context.Context) ([]models.EvidenceRecord, error) {
		return nil, context.DeadlineExceeded
	})
	s, _ := testutil.NewSession(t, session.Config{Provider: failing})

	ids := s.EvidenceIDs()
	assert.Equal(t, []string{evidence.PlaceholderID}, ids)
}

func TestOpen_RequiresPayloads(t *testing.T) {
	_, err := session.Open(context.Background(), session.Config{Case: testutil.Case()})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
