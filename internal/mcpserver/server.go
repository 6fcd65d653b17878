// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the investigation workflow for LLM-driven analysis tools via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/casefile/internal/channel"
	"github.com/starford/casefile/internal/correlation"
	"github.com/starford/casefile/internal/evidence"
	"github.com/starford/casefile/internal/index"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/session"
)

const (
	briefingURI = "casefile://briefing"
	workflowURI = "casefile://workflow"
)

// Server wraps the MCP server with investigation tools.
type Server struct {
	mcp   *server.MCPServer
	sess  *session.Session
	db    index.AuditIndex
	actor session.Actor
}

// New creates a new MCP server with all investigation tools registered.
// db may be nil, in which case search_findings is not registered.
func New(sess *session.Session, db index.AuditIndex, defaultActor session.Actor, version string) *Server {
	s := &Server{sess: sess, db: db, actor: defaultActor}

	s.mcp = server.NewMCPServer(
		"Casefile",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	analyst := mcp.WithString("analyst", mcp.Description("Analyst name recorded in the custody ledger"))

	s.mcp.AddTool(mcp.NewTool("list_evidence",
		mcp.WithDescription("List the evidence catalog, newest acquisition first."),
		mcp.WithString("type", mcp.Description("Optional evidence type filter, comma separated")),
	), s.listEvidence)

	s.mcp.AddTool(mcp.NewTool("get_evidence",
		mcp.WithDescription("Get one evidence record with its findings."),
		mcp.WithString("evidence_id", mcp.Required(), mcp.Description("Evidence ID (e.g. EV-001)")),
	), s.getEvidence)

	s.mcp.AddTool(mcp.NewTool("verify_evidence",
		mcp.WithDescription("Recompute the payload hash of an evidence item and compare it with the acquisition hash."),
		mcp.WithString("evidence_id", mcp.Required(), mcp.Description("Evidence ID")),
		analyst,
	), s.verifyEvidence)

	s.mcp.AddTool(mcp.NewTool("custody_log",
		mcp.WithDescription("Chain-of-custody entries for one evidence item, oldest first."),
		mcp.WithString("evidence_id", mcp.Required(), mcp.Description("Evidence ID")),
	), s.custodyLog)

	s.mcp.AddTool(mcp.NewTool("log_access",
		mcp.WithDescription("Record a handling action against an evidence item."),
		mcp.WithString("evidence_id", mcp.Required(), mcp.Description("Evidence ID")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action, e.g. image_mounted")),
		analyst,
	), s.logAccess)

	s.mcp.AddTool(mcp.NewTool("record_finding",
		mcp.WithDescription("Attach one analysis finding to an evidence item."),
		mcp.WithString("evidence_id", mcp.Required(), mcp.Description("Evidence ID")),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Analysis tool name")),
		mcp.WithString("summary", mcp.Required(), mcp.Description("One-line finding summary")),
		mcp.WithString("severity", mcp.Description("Finding severity"),
			mcp.Enum(string(models.SeverityLow), string(models.SeverityMedium), string(models.SeverityHigh), string(models.SeverityCritical))),
		mcp.WithBoolean("complete", mcp.Description("Mark analysis of this item complete")),
		analyst,
	), s.recordFinding)

	s.mcp.AddTool(mcp.NewTool("record_clue",
		mcp.WithDescription("Report a discovered clue. Matching objectives complete automatically."),
		mcp.WithString("clue_type", mcp.Required(), mcp.Description("identity, contact, location, financial, communication or malware")),
		mcp.WithString("category", mcp.Description("Clue category, e.g. email or phone for contact clues")),
		mcp.WithString("evidence_id", mcp.Description("Evidence the clue was found in")),
		mcp.WithString("value", mcp.Description("The discovered value")),
		mcp.WithString("description", mcp.Description("Free-text context")),
		analyst,
	), s.recordClue)

	s.mcp.AddTool(mcp.NewTool("complete_analysis",
		mcp.WithDescription("Signal that a tool has finished its analysis pass."),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Analysis tool name")),
	), s.completeAnalysis)

	s.mcp.AddTool(mcp.NewTool("add_timeline_event",
		mcp.WithDescription("Add one extracted event to the case timeline."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Unique event ID")),
		mcp.WithString("timestamp", mcp.Required(), mcp.Description("RFC 3339 timestamp")),
		mcp.WithString("source_evidence_id", mcp.Required(), mcp.Description("Evidence the event was extracted from")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What happened")),
		mcp.WithString("event_kind", mcp.Description("Event kind, e.g. process_start")),
		mcp.WithString("significance", mcp.Description("Event significance (critical adds correlation strength)")),
		mcp.WithString("process", mcp.Description("Process name involved")),
		mcp.WithString("file", mcp.Description("File path involved")),
	), s.addTimelineEvent)

	s.mcp.AddTool(mcp.NewTool("correlate_timeline",
		mcp.WithDescription("Correlate the case timeline across evidence sources, strongest first."),
	), s.correlateTimeline)

	s.mcp.AddTool(mcp.NewTool("investigation_state",
		mcp.WithDescription("Current score, objectives and completion status."),
	), s.investigationState)

	s.mcp.AddTool(mcp.NewTool("cite_evidence",
		mcp.WithDescription("Cite an evidence item in a report section."),
		mcp.WithString("section", mcp.Required(), mcp.Description("Report section title")),
		mcp.WithString("evidence_id", mcp.Required(), mcp.Description("Evidence ID")),
		analyst,
	), s.citeEvidence)

	s.mcp.AddTool(mcp.NewTool("report_status",
		mcp.WithDescription("Report citations, score and outstanding issues."),
	), s.reportStatus)

	if db != nil {
		s.mcp.AddTool(mcp.NewTool("search_findings",
			mcp.WithDescription("Full-text search over recorded findings."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		), s.searchFindings)
	}

	s.mcp.AddResource(
		mcp.NewResource(briefingURI, "Case Briefing",
			mcp.WithResourceDescription("Case metadata and narrative briefing."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBriefing,
	)
	s.mcp.AddResource(
		mcp.NewResource(workflowURI, "Investigation Workflow",
			mcp.WithResourceDescription("Order of operations for analysis tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readWorkflow,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) actorFrom(req mcp.CallToolRequest) session.Actor {
	a := s.actor
	if u := strings.TrimSpace(req.GetString("analyst", "")); u != "" {
		a.User = u
	}
	return a
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var f evidence.Filter
	for _, t := range strings.Split(req.GetString("type", ""), ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !models.ValidEvidenceType(models.EvidenceType(t)) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown evidence type: %s", t)), nil
		}
		f.Types = append(f.Types, models.EvidenceType(t))
	}
	return jsonResult(s.sess.ListEvidence(f))
}

func (s *Server) getEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("evidence_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.sess.GetEvidence(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func (s *Server) verifyEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("evidence_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.sess.Verify(ctx, s.actorFrom(req), id))
}

func (s *Server) custodyLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("evidence_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.sess.Custody(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries)
}

func (s *Server) logAccess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("evidence_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.sess.LogAccess(s.actorFrom(req), id, action)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entry)
}

func (s *Server) recordFinding(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("evidence_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tool, err := req.RequireString("tool")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary, err := req.RequireString("summary")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	finding := models.Finding{
		Summary:  summary,
		Severity: models.Severity(req.GetString("severity", string(models.SeverityMedium))),
	}
	rec, err := s.sess.RecordAnalysis(s.actorFrom(req), id, session.Analysis{
		Tool:     tool,
		Findings: []models.Finding{finding},
		Complete: req.GetBool("complete", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func (s *Server) recordClue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clueType, err := req.RequireString("clue_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	err = s.sess.RecordClue(s.actorFrom(req), channel.ClueDiscovered{
		ClueType:    clueType,
		Category:    req.GetString("category", ""),
		EvidenceID:  req.GetString("evidence_id", ""),
		Value:       req.GetString("value", ""),
		Description: req.GetString("description", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.sess.State())
}

func (s *Server) completeAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tool, err := req.RequireString("tool")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.CompleteAnalysis(tool, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.sess.State())
}

func (s *Server) addTimelineEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args [4]string
	for i, key := range []string{"id", "timestamp", "source_evidence_id", "description"} {
		v, err := req.RequireString(key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args[i] = v
	}
	ts, err := time.Parse(time.RFC3339, args[1])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid timestamp %q: want RFC 3339", args[1])), nil
	}
	rec, err := s.sess.GetEvidence(args[2])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ev := models.TimelineEvent{
		ID:               args[0],
		Timestamp:        ts,
		SourceEvidenceID: rec.ID,
		SourceType:       rec.Type,
		EventKind:        req.GetString("event_kind", ""),
		Description:      args[3],
		Significance:     models.Severity(req.GetString("significance", "")),
	}
	for _, key := range []string{correlation.DetailProcess, correlation.DetailFile} {
		if v := req.GetString(key, ""); v != "" {
			if ev.Details == nil {
				ev.Details = map[string]string{}
			}
			ev.Details[key] = v
		}
	}
	if err := s.sess.AddTimelineEvents(ev); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %s", ev.ID)), nil
}

func (s *Server) correlateTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	corr := s.sess.Correlations()
	if len(corr) == 0 {
		return mcp.NewToolResultText("no correlations found"), nil
	}
	return jsonResult(corr)
}

func (s *Server) investigationState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"state":      s.sess.State(),
		"objectives": s.sess.Objectives(),
	})
}

func (s *Server) citeEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	section, err := req.RequireString("section")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("evidence_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.sess.Cite(s.actorFrom(req), section, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

func (s *Server) reportStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"citations": s.sess.Citations(),
		"score":     s.sess.ReportScore(),
		"issues":    s.sess.ReportIssues(),
	})
}

func (s *Server) searchFindings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.db.SearchFindings(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no findings matched"), nil
	}
	return jsonResult(hits)
}

func (s *Server) readBriefing(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	meta := s.sess.Case()
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", meta.CaseNumber, meta.Title)
	fmt.Fprintf(&b, "- Investigator: %s\n- Agency: %s\n", meta.Investigator, meta.Agency)
	if !meta.OpenedAt.IsZero() {
		fmt.Fprintf(&b, "- Opened: %s\n", meta.OpenedAt.Format(time.RFC3339))
	}
	if meta.Briefing != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(meta.Briefing))
		b.WriteString("\n")
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      briefingURI,
			MIMEType: "text/markdown",
			Text:     b.String(),
		},
	}, nil
}

func (s *Server) readWorkflow(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      workflowURI,
			MIMEType: "text/markdown",
			Text:     WorkflowGuide,
		},
	}, nil
}
