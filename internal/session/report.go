package session

import (
	"bytes"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/starford/casefile/internal/channel"
	"github.com/starford/casefile/internal/models"
	"github.com/starford/casefile/internal/scoring"
)

// DocumentSection is one report section with its cited evidence.
type DocumentSection struct {
	Title    string                  `json:"title"`
	Evidence []models.EvidenceRecord `json:"evidence"`
}

// Document is an assembled investigation report.
type Document struct {
	Case         models.CaseMetadata       `json:"case"`
	GeneratedAt  time.Time                 `json:"generated_at"`
	Sections     []DocumentSection         `json:"sections"`
	Score        scoring.Result            `json:"score"`
	Issues       []scoring.Issue           `json:"issues"`
	State        models.InvestigationState `json:"state"`
	Correlations []models.Correlation      `json:"correlations"`
}

// GenerateReport assembles the report document from the current session
// state and publishes report_generated.
func (s *Session) GenerateReport() (Document, error) {
	assignments := s.report.Assignments()
	doc := Document{
		Case:         s.meta,
		GeneratedAt:  s.now(),
		Score:        s.report.Score(),
		Issues:       s.ReportIssues(),
		State:        s.tracker.State(),
		Correlations: s.Correlations(),
	}
	for _, sec := range s.report.Sections() {
		ds := DocumentSection{Title: sec.Title}
		for _, id := range assignments[sec.Title] {
			rec, err := s.store.Get(id)
			if err != nil {
				return Document{}, fmt.Errorf("report: section %q: %w", sec.Title, err)
			}
			ds.Evidence = append(ds.Evidence, rec)
		}
		doc.Sections = append(doc.Sections, ds)
	}

	s.logger.Info("session: report generated",
		slog.String("case_number", doc.Case.CaseNumber),
		slog.Int("score", doc.Score.Total))
	channel.Publish(s.bus, channel.TopicReportGenerated, channel.ReportGenerated{
		CaseNumber:  doc.Case.CaseNumber,
		Score:       doc.Score.Total,
		MaxScore:    doc.Score.Max,
		GeneratedAt: doc.GeneratedAt,
	})
	return doc, nil
}

var markdownTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"ts": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}).Parse(`# {{if .Case.CaseNumber}}{{.Case.CaseNumber}}: {{end}}{{.Case.Title}}

Investigator: {{.Case.Investigator}}{{if .Case.Agency}} ({{.Case.Agency}}){{end}}
Generated: {{ts .GeneratedAt}}

Score: {{.Score.Total}} / {{.Score.Max}}
Objectives: {{.State.CurrentScore}} / {{.State.MaxScore}} points, {{len .State.CompletedObjectiveIDs}} completed
{{range .Sections}}
## {{.Title}}
{{if not .Evidence}}
_No evidence cited._
{{else}}
{{range .Evidence}}- **{{.ID}}** {{.Name}} ({{.Type}}), SHA-256 ` + "`{{.HashSHA256}}`" + `
{{range .Findings}}  - [{{.Severity}}] {{.Summary}}
{{end}}{{end}}{{end}}{{end}}{{if .Correlations}}
## Correlations
{{range .Correlations}}
- {{.Kind}} {{printf "%.2f" .Strength}}: {{.EventA.ID}} / {{.EventB.ID}}, {{.Description}}{{end}}
{{end}}{{if .Issues}}
## Outstanding issues
{{range .Issues}}
- {{.Section}}: {{.Message}}{{end}}
{{end}}`))

// Markdown renders the document.
func (d Document) Markdown() (string, error) {
	var buf bytes.Buffer
	if err := markdownTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("report: render: %w", err)
	}
	return buf.String(), nil
}
