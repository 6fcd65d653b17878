package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/casefile/internal/index"
	"github.com/starford/casefile/internal/integrity"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/session"
	"github.com/starford/casefile/internal/storage"
	"github.com/starford/casefile/internal/testutil"
)

var defaultActor = session.Actor{User: "duty.analyst", Location: "lab-1"}

type env struct {
	sess   *session.Session
	db     *index.DB
	fs     *storage.FS
	router http.Handler
}

// testEnv sets up the fixture session, SQLite mirror, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) *env {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) *env {
	t.Helper()
	db := testutil.TestDB(t)
	sess, fs := testutil.NewSession(t, session.Config{Sink: db})
	stop := index.Mirror(db, sess.Bus(), sess.GetEvidence, slog.New(slog.DiscardHandler))
	t.Cleanup(stop)

	h := NewHandler(sess, db, fs, defaultActor)
	return &env{sess: sess, db: db, fs: fs, router: NewRouter(h, authEnabled, token, sseHandler)}
}

func (e *env) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestListEvidence(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodGet, "/evidence", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d, want 200", w.Code)
	}
	resp := decode[EvidenceListResponse](t, w)
	if resp.Total != 3 {
		t.Fatalf("total = %d, want 3", resp.Total)
	}
	if resp.Evidence[0].ID != "EV-003" {
		t.Errorf("first = %s, want newest EV-003", resp.Evidence[0].ID)
	}

	w = e.do(t, http.MethodGet, "/evidence?type=memory_dump,log_files", nil)
	if got := decode[EvidenceListResponse](t, w).Total; got != 2 {
		t.Errorf("filtered total = %d, want 2", got)
	}

	w = e.do(t, http.MethodGet, "/evidence?type=floppy", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown type = %d, want 400", w.Code)
	}
}

func TestGetEvidence_NotFound(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodGet, "/evidence/EV-404", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
}

func TestVerifyEvidence_MirrorsLatestVerification(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/evidence/EV-001/verify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify = %d, want 200", w.Code)
	}
	if res := decode[integrity.Result](t, w); !res.Valid {
		t.Fatalf("verify valid = false: %s", res.Reason)
	}

	if err := e.fs.Write("EV-001", []byte("tampered")); err != nil {
		t.Fatal(err)
	}
	w = e.do(t, http.MethodPost, "/evidence/EV-001/verify", nil)
	if res := decode[integrity.Result](t, w); res.Valid || res.Reason != integrity.ReasonHashMismatch {
		t.Fatalf("tampered result = %+v", res)
	}

	detail := decode[EvidenceDetail](t, e.do(t, http.MethodGet, "/evidence/EV-001", nil))
	if detail.LastVerification == nil || detail.LastVerification.Valid {
		t.Errorf("last verification = %+v, want invalid", detail.LastVerification)
	}

	w = e.do(t, http.MethodPost, "/evidence/EV-404/verify", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("verify missing = %d, want 404", w.Code)
	}
}

func TestVerifyAll(t *testing.T) {
	e := testEnv(t, "")
	if err := e.fs.Write("EV-002", []byte("tampered")); err != nil {
		t.Fatal(err)
	}

	resp := decode[VerifyAllResponse](t, e.do(t, http.MethodPost, "/verify", nil))
	if resp.Valid != 2 || resp.Invalid != 1 {
		t.Errorf("valid/invalid = %d/%d, want 2/1", resp.Valid, resp.Invalid)
	}

	resp = decode[VerifyAllResponse](t, e.do(t, http.MethodPost, "/verify", VerifyAllRequest{EvidenceIDs: []string{"EV-001"}}))
	if len(resp.Results) != 1 || !resp.Results[0].Valid {
		t.Errorf("selected results = %+v", resp.Results)
	}
}

func TestCustody_ActorHeadersAndMirror(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/evidence/EV-002/custody", CustodyRequest{Action: models.ActionImageMounted},
		HeaderAnalyst, "j.smith", HeaderLocation, "lab-9")
	if w.Code != http.StatusCreated {
		t.Fatalf("log access = %d, want 201: %s", w.Code, w.Body.String())
	}
	w = e.do(t, http.MethodPost, "/evidence/EV-002/custody", CustodyRequest{Action: models.ActionEvidenceSelected})
	if w.Code != http.StatusCreated {
		t.Fatalf("log access = %d, want 201", w.Code)
	}

	resp := decode[CustodyResponse](t, e.do(t, http.MethodGet, "/evidence/EV-002/custody", nil))
	if len(resp.Entries) != 2 || !resp.ChainValid {
		t.Fatalf("custody = %+v", resp)
	}
	if resp.Entries[0].User != "j.smith" || resp.Entries[0].Location != "lab-9" {
		t.Errorf("first entry actor = %s@%s", resp.Entries[0].User, resp.Entries[0].Location)
	}
	if resp.Entries[1].User != defaultActor.User {
		t.Errorf("second entry user = %s, want default", resp.Entries[1].User)
	}

	newest := decode[CustodyResponse](t, e.do(t, http.MethodGet, "/evidence/EV-002/custody?order=newest", nil))
	if len(newest.Entries) != 2 || newest.Entries[0].Sequence != resp.Entries[1].Sequence {
		t.Errorf("newest first = %+v", newest.Entries)
	}
	if w := e.do(t, http.MethodGet, "/evidence/EV-002/custody?order=sideways", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad order = %d, want 400", w.Code)
	}

	mirrored, err := e.db.CustodyFor("EV-002")
	if err != nil {
		t.Fatal(err)
	}
	if len(mirrored) != 2 {
		t.Errorf("mirrored custody = %d, want 2", len(mirrored))
	}

	if w := e.do(t, http.MethodPost, "/evidence/EV-002/custody", CustodyRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty action = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/evidence/EV-404/custody", nil); w.Code != http.StatusNotFound {
		t.Errorf("custody missing = %d, want 404", w.Code)
	}
}

func TestDownloadPayload_LogsCustody(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodGet, "/evidence/EV-003/payload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download = %d, want 200", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), testutil.Payloads["EV-003"]) {
		t.Errorf("payload body mismatch")
	}
	entries, err := e.sess.Custody("EV-003")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Action != ActionPayloadDownloaded {
		t.Errorf("custody = %+v", entries)
	}
}

func TestRecordAnalysisAndSearch(t *testing.T) {
	e := testEnv(t, "")

	body := AnalysisRequest{
		Tool:     "volatility",
		Findings: []models.Finding{{Summary: "injected beacon in explorer.exe", Severity: models.SeverityCritical}},
		Complete: true,
	}
	w := e.do(t, http.MethodPost, "/evidence/EV-002/analysis", body)
	if w.Code != http.StatusOK {
		t.Fatalf("analysis = %d, want 200: %s", w.Code, w.Body.String())
	}
	rec := decode[models.EvidenceRecord](t, w)
	if !rec.AnalysisComplete || len(rec.Findings) != 1 || rec.Findings[0].Tool != "volatility" {
		t.Errorf("record = %+v", rec)
	}

	resp := decode[SearchResponse](t, e.do(t, http.MethodGet, "/search?q=beacon", nil))
	if len(resp.Results) != 1 || resp.Results[0].EvidenceID != "EV-002" {
		t.Errorf("search results = %+v", resp.Results)
	}

	if w := e.do(t, http.MethodPost, "/evidence/EV-002/analysis", AnalysisRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing tool = %d, want 400", w.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := testEnv(t, "")

	if w := e.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestCluesDriveState(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/clues", ClueRequest{ClueType: "identity", Value: "John Doe", EvidenceID: "EV-001"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("clue = %d, want 202: %s", w.Code, w.Body.String())
	}
	st := decode[models.InvestigationState](t, w)
	if st.CurrentScore != 20 {
		t.Errorf("score = %d, want 20", st.CurrentScore)
	}

	w = e.do(t, http.MethodPost, "/objectives/OBJ-PHONE/complete", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete objective = %d", w.Code)
	}
	st = decode[models.InvestigationState](t, e.do(t, http.MethodGet, "/state", nil))
	if st.CurrentScore != 30 || st.Complete {
		t.Errorf("state = %+v", st)
	}

	if w := e.do(t, http.MethodPost, "/objectives/OBJ-404/complete", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown objective = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/clues", ClueRequest{ClueType: "identity", EvidenceID: "EV-404"}); w.Code != http.StatusNotFound {
		t.Errorf("clue unknown evidence = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/analysis-complete", AnalysisCompleteRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("analysis-complete no tool = %d, want 400", w.Code)
	}
}

func TestTimelineAndCorrelations(t *testing.T) {
	e := testEnv(t, "")
	base := time.Date(2024, 3, 14, 22, 0, 0, 0, time.UTC)

	events := TimelineRequest{Events: []models.TimelineEvent{
		{ID: "T-1", Timestamp: base, SourceEvidenceID: "EV-002", Description: "beacon start", Details: map[string]string{"process": "explorer.exe"}},
		{ID: "T-2", Timestamp: base.Add(10 * time.Minute), SourceEvidenceID: "EV-003", Description: "ssh login"},
	}}
	if w := e.do(t, http.MethodPost, "/timeline", events); w.Code != http.StatusCreated {
		t.Fatalf("timeline = %d, want 201: %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodPost, "/timeline", events); w.Code != http.StatusConflict {
		t.Errorf("duplicate timeline = %d, want 409", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/timeline", TimelineRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty timeline = %d, want 400", w.Code)
	}

	type timelineBody struct {
		Events []models.TimelineEvent `json:"events"`
	}
	all := decode[timelineBody](t, e.do(t, http.MethodGet, "/timeline", nil))
	if len(all.Events) != 2 {
		t.Errorf("timeline events = %d, want 2", len(all.Events))
	}
	one := decode[timelineBody](t, e.do(t, http.MethodGet, "/timeline?evidence=EV-002", nil))
	if len(one.Events) != 1 || one.Events[0].ID != "T-1" {
		t.Errorf("EV-002 events = %+v", one.Events)
	}
	if w := e.do(t, http.MethodGet, "/timeline?evidence=EV-404", nil); w.Code != http.StatusNotFound {
		t.Errorf("timeline unknown evidence = %d, want 404", w.Code)
	}

	resp := decode[CorrelationResponse](t, e.do(t, http.MethodGet, "/correlations", nil))
	if resp.Events != 2 || len(resp.Correlations) != 1 {
		t.Fatalf("correlations = %+v", resp)
	}
	if resp.Correlations[0].Kind != models.CorrelationTemporal {
		t.Errorf("kind = %s, want temporal", resp.Correlations[0].Kind)
	}
}

func TestReportCitationsAndSubmit(t *testing.T) {
	e := testEnv(t, "")

	cite := func(section, id string) int {
		return e.do(t, http.MethodPost, "/report/citations", CitationRequest{Section: section, EvidenceID: id}).Code
	}
	if code := cite("Findings", "EV-001"); code != http.StatusCreated {
		t.Fatalf("cite = %d, want 201", code)
	}
	if code := cite("Findings", "EV-001"); code != http.StatusConflict {
		t.Errorf("duplicate cite = %d, want 409", code)
	}
	if code := cite("Nowhere", "EV-001"); code != http.StatusNotFound {
		t.Errorf("unknown section = %d, want 404", code)
	}
	if code := cite("Timeline", "EV-003"); code != http.StatusCreated {
		t.Fatalf("cite timeline = %d", code)
	}

	rep := decode[ReportResponse](t, e.do(t, http.MethodGet, "/report", nil))
	if len(rep.Citations) != 2 || rep.Score.Total != 25 {
		t.Errorf("report = %+v", rep)
	}

	w := e.do(t, http.MethodGet, "/report/document?format=markdown", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "# CF-2024-0042") {
		t.Errorf("markdown = %d %q", w.Code, w.Body.String())
	}

	if w := e.do(t, http.MethodDelete, "/report/citations/Timeline/EV-003", nil); w.Code != http.StatusNoContent {
		t.Fatalf("uncite = %d, want 204", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/report/citations/Timeline/EV-003", nil); w.Code != http.StatusNotFound {
		t.Errorf("uncite twice = %d, want 404", w.Code)
	}

	sub := decode[session.Submission](t, e.do(t, http.MethodPost, "/report/submit", nil))
	if sub.Score.Total != 12 || len(sub.Issues) == 0 {
		t.Errorf("submission = %+v", sub)
	}
}

func TestUncite_EscapedSectionTitle(t *testing.T) {
	c := testutil.Case()
	c.Sections = append(c.Sections, models.Section{Title: "Findings & Analysis"})
	sess, fs := testutil.NewSession(t, session.Config{Case: c})
	router := NewRouter(NewHandler(sess, nil, fs, defaultActor), false, "", nil)
	e := &env{sess: sess, fs: fs, router: router}

	if w := e.do(t, http.MethodPost, "/report/citations", CitationRequest{Section: "Findings & Analysis", EvidenceID: "EV-001"}); w.Code != http.StatusCreated {
		t.Fatalf("cite = %d, want 201: %s", w.Code, w.Body.String())
	}
	w := e.do(t, http.MethodDelete, "/report/citations/Findings%20%26%20Analysis/EV-001", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("uncite = %d, want 204: %s", w.Code, w.Body.String())
	}
	if n := len(sess.Citations()); n != 0 {
		t.Errorf("citations after uncite = %d, want 0", n)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := e.do(t, http.MethodGet, "/state", nil, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := e.do(t, http.MethodGet, "/evidence", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := e.do(t, http.MethodGet, "/evidence", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodGet, "/evidence", nil)
	if w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithSSE(t, true, "secret", blockingSSE)

	w := e.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_NotMounted(t *testing.T) {
	e := testEnv(t, "")

	if w := e.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusNotFound {
		t.Errorf("no SSE handler = %d, want 404", w.Code)
	}
}
