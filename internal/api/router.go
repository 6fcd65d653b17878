package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Evidence.
	r.Get("/evidence", h.ListEvidence)
	r.Route("/evidence/{id}", func(r chi.Router) {
		r.Get("/", h.GetEvidence)
		r.Get("/payload", h.DownloadPayload)
		r.Post("/analysis", h.RecordAnalysis)
		r.Post("/verify", h.VerifyEvidence)
		r.Get("/custody", h.GetCustody)
		r.Post("/custody", h.LogAccess)
	})
	r.Post("/verify", h.VerifyAll)

	// Objectives.
	r.Post("/clues", h.RecordClue)
	r.Post("/analysis-complete", h.CompleteAnalysis)
	r.Get("/objectives", h.ListObjectives)
	r.Post("/objectives/{id}/complete", h.CompleteObjective)
	r.Get("/state", h.State)

	// Timeline.
	r.Get("/timeline", h.Timeline)
	r.Post("/timeline", h.AddTimeline)
	r.Get("/correlations", h.Correlations)

	// Report.
	r.Get("/report", h.Report)
	r.Get("/report/document", h.ReportDocument)
	r.Post("/report/citations", h.Cite)
	r.Delete("/report/citations/{section}/{id}", h.Uncite)
	r.Post("/report/submit", h.SubmitReport)

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
