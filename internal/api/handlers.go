package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/channel"
	"github.com/starford/casefile/internal/custody"
	"github.com/starford/casefile/internal/evidence"
	"github.com/starford/casefile/internal/index"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/session"
	"github.com/starford/casefile/internal/storage"
)

// ActionPayloadDownloaded is logged when a payload is served over HTTP.
const ActionPayloadDownloaded = "payload_downloaded"

const defaultSearchLimit = 20

// Handler holds API route handlers.
type Handler struct {
	sess     *session.Session
	db       index.AuditIndex
	payloads storage.Provider
	actor    session.Actor
}

// NewHandler creates a new Handler. db and payloads may be nil, in which case
// search, mirrored verification details and payload downloads are unavailable.
func NewHandler(sess *session.Session, db index.AuditIndex, payloads storage.Provider, defaultActor session.Actor) *Handler {
	return &Handler{sess: sess, db: db, payloads: payloads, actor: defaultActor}
}

// pathParam returns the named URL parameter, percent-decoded. chi leaves
// escapes in place when the request carries a RawPath. A malformed escape
// writes a 400 and reports false.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid %s: %v", name, err)))
		return "", false
	}
	return v, true
}

// ListEvidence handles GET /api/evidence.
//
//	@Summary		List evidence, newest first
//	@Tags			evidence
//	@Produce		json
//	@Param			type	query		string	false	"Filter by evidence type (comma separated)"
//	@Success		200		{object}	EvidenceListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/evidence [get]
func (h *Handler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	var f evidence.Filter
	for _, raw := range r.URL.Query()["type"] {
		for _, t := range strings.Split(raw, ",") {
			et := models.EvidenceType(strings.TrimSpace(t))
			if !models.ValidEvidenceType(et) {
				writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown evidence type %q", t)))
				return
			}
			f.Types = append(f.Types, et)
		}
	}
	items := h.sess.ListEvidence(f)
	writeJSON(w, http.StatusOK, EvidenceListResponse{Evidence: items, Total: len(items)})
}

// GetEvidence handles GET /api/evidence/{id}.
//
//	@Summary		Get one evidence item
//	@Tags			evidence
//	@Produce		json
//	@Param			id	path		string	true	"Evidence ID"
//	@Success		200	{object}	EvidenceDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/evidence/{id} [get]
func (h *Handler) GetEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.sess.GetEvidence(id)
	if err != nil {
		writeError(w, "get evidence", err)
		return
	}
	detail := EvidenceDetail{EvidenceRecord: rec}
	if h.db != nil {
		v, ok, err := h.db.LatestVerification(rec.ID)
		if err != nil {
			slog.Warn("latest verification lookup failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		} else if ok {
			detail.LastVerification = &v
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

// DownloadPayload handles GET /api/evidence/{id}/payload. Every download is
// logged to the custody ledger.
func (h *Handler) DownloadPayload(w http.ResponseWriter, r *http.Request) {
	if h.payloads == nil {
		writeJSON(w, http.StatusNotFound, errorBody("payload storage not configured"))
		return
	}
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.sess.GetEvidence(id)
	if err != nil {
		writeError(w, "download payload", err)
		return
	}
	data, err := h.payloads.Read(rec.Payload())
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("payload not found"))
		return
	}
	if _, err := h.sess.LogAccess(actorFrom(r, h.actor), rec.ID, ActionPayloadDownloaded); err != nil {
		writeError(w, "download payload", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-SHA256", rec.HashSHA256)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// RecordAnalysis handles POST /api/evidence/{id}/analysis.
//
//	@Summary		Attach analysis findings to evidence
//	@Tags			evidence
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Evidence ID"
//	@Param			body	body		AnalysisRequest	true	"Analysis"
//	@Success		200		{object}	models.EvidenceRecord
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/evidence/{id}/analysis [post]
func (h *Handler) RecordAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req AnalysisRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.sess.RecordAnalysis(actorFrom(r, h.actor), id, session.Analysis{
		Tool:     req.Tool,
		Findings: req.Findings,
		Complete: req.Complete,
	})
	if err != nil {
		writeError(w, "record analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// VerifyEvidence handles POST /api/evidence/{id}/verify. A failed check is
// still a 200 with valid=false; an unknown ID is a 404.
func (h *Handler) VerifyEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.sess.GetEvidence(id); err != nil {
		writeError(w, "verify evidence", err)
		return
	}
	res := h.sess.Verify(r.Context(), actorFrom(r, h.actor), id)
	writeJSON(w, http.StatusOK, res)
}

// VerifyAll handles POST /api/verify. An empty body verifies everything.
func (h *Handler) VerifyAll(w http.ResponseWriter, r *http.Request) {
	var req VerifyAllRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	results := h.sess.VerifyAll(r.Context(), actorFrom(r, h.actor), req.EvidenceIDs)
	resp := VerifyAllResponse{Results: results}
	for _, res := range results {
		if res.Valid {
			resp.Valid++
		} else {
			resp.Invalid++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCustody handles GET /api/evidence/{id}/custody. ?order=newest returns
// the entries newest first; the default is ledger order.
func (h *Handler) GetCustody(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	order := r.URL.Query().Get("order")
	if order != "" && order != "oldest" && order != "newest" {
		writeJSON(w, http.StatusBadRequest, errorBody("order must be oldest or newest"))
		return
	}
	entries, err := h.sess.Custody(id)
	if err != nil {
		writeError(w, "get custody", err)
		return
	}
	if order == "newest" {
		entries = custody.NewestFirst(entries)
	}
	writeJSON(w, http.StatusOK, CustodyResponse{
		EvidenceID: id,
		Entries:    entries,
		ChainValid: h.sess.VerifyCustodyChain() == nil,
	})
}

// LogAccess handles POST /api/evidence/{id}/custody.
//
//	@Summary		Append a custody entry
//	@Tags			custody
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Evidence ID"
//	@Param			body	body		CustodyRequest	true	"Action"
//	@Success		201		{object}	models.CustodyEntry
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/evidence/{id}/custody [post]
func (h *Handler) LogAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req CustodyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.sess.LogAccess(actorFrom(r, h.actor), id, req.Action)
	if err != nil {
		writeError(w, "log access", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// RecordClue handles POST /api/clues.
func (h *Handler) RecordClue(w http.ResponseWriter, r *http.Request) {
	var req ClueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.sess.RecordClue(actorFrom(r, h.actor), channel.ClueDiscovered{
		ClueType:    req.ClueType,
		Category:    req.Category,
		EvidenceID:  req.EvidenceID,
		Value:       req.Value,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, "record clue", err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.sess.State())
}

// CompleteAnalysis handles POST /api/analysis-complete.
func (h *Handler) CompleteAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.sess.CompleteAnalysis(req.Tool, req.EvidenceIDs); err != nil {
		writeError(w, "complete analysis", err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.sess.State())
}

// ListObjectives handles GET /api/objectives.
func (h *Handler) ListObjectives(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"objectives": h.sess.Objectives()})
}

// CompleteObjective handles POST /api/objectives/{id}/complete.
func (h *Handler) CompleteObjective(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	changed, err := h.sess.CompleteObjective(id)
	if err != nil {
		writeError(w, "complete objective", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed, "state": h.sess.State()})
}

// State handles GET /api/state.
//
//	@Summary		Investigation progress summary
//	@Tags			objectives
//	@Produce		json
//	@Success		200	{object}	models.InvestigationState
//	@Security		BearerAuth
//	@Router			/state [get]
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.State())
}

// AddTimeline handles POST /api/timeline.
func (h *Handler) AddTimeline(w http.ResponseWriter, r *http.Request) {
	var req TimelineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Events) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("events are required"))
		return
	}
	if err := h.sess.AddTimelineEvents(req.Events...); err != nil {
		writeError(w, "add timeline", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"added": len(req.Events)})
}

// Timeline handles GET /api/timeline. ?evidence=ID limits the events to
// those extracted from one evidence item.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("evidence")
	if id == "" {
		writeJSON(w, http.StatusOK, map[string]any{"events": h.sess.Timeline()})
		return
	}
	events, err := h.sess.TimelineFor(id)
	if err != nil {
		writeError(w, "timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Correlations handles GET /api/correlations.
//
//	@Summary		Correlate the case timeline
//	@Tags			timeline
//	@Produce		json
//	@Success		200	{object}	CorrelationResponse
//	@Security		BearerAuth
//	@Router			/correlations [get]
func (h *Handler) Correlations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CorrelationResponse{
		Correlations: h.sess.Correlations(),
		Events:       len(h.sess.Timeline()),
	})
}

// Report handles GET /api/report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ReportResponse{
		Sections:  h.sess.Sections(),
		Citations: h.sess.Citations(),
		Score:     h.sess.ReportScore(),
		Issues:    h.sess.ReportIssues(),
	})
}

// ReportDocument handles GET /api/report/document. ?format=markdown renders
// the document as Markdown instead of JSON.
func (h *Handler) ReportDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.sess.GenerateReport()
	if err != nil {
		writeError(w, "generate report", err)
		return
	}
	if !strings.EqualFold(r.URL.Query().Get("format"), "markdown") {
		writeJSON(w, http.StatusOK, doc)
		return
	}
	md, err := doc.Markdown()
	if err != nil {
		writeError(w, "render report", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

// Cite handles POST /api/report/citations.
//
//	@Summary		Cite evidence in a report section
//	@Tags			report
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CitationRequest	true	"Citation"
//	@Success		201		{object}	models.Citation
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/report/citations [post]
func (h *Handler) Cite(w http.ResponseWriter, r *http.Request) {
	var req CitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.sess.Cite(actorFrom(r, h.actor), req.Section, req.EvidenceID)
	if err != nil {
		writeError(w, "cite", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Uncite handles DELETE /api/report/citations/{section}/{id}.
func (h *Handler) Uncite(w http.ResponseWriter, r *http.Request) {
	section, ok := pathParam(w, r, "section")
	if !ok {
		return
	}
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.sess.Uncite(actorFrom(r, h.actor), section, id); err != nil {
		writeError(w, "uncite", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitReport handles POST /api/report/submit.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.SubmitReport(actorFrom(r, h.actor)))
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search over recorded findings
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q parameter is required"))
		return
	}
	if h.db == nil {
		writeError(w, "search", fmt.Errorf("search index not configured: %w", apperr.ErrNotFound))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	hits, err := h.db.SearchFindings(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if hits == nil {
		hits = []index.FindingHit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}
