// Package parser reads case files: a Markdown briefing whose YAML frontmatter
// carries the case metadata, evidence catalog, objectives and report schema.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/casefile/internal/models"
)

// ErrNoFrontmatter is returned when a case file has no YAML frontmatter block.
var ErrNoFrontmatter = errors.New("parser: case file has no frontmatter")

// Case is the parsed content of a case file.
type Case struct {
	Metadata         models.CaseMetadata        `yaml:"case"`
	Evidence         []models.EvidenceRecord    `yaml:"evidence"`
	Objectives       []models.Objective         `yaml:"objectives"`
	Sections         []models.Section           `yaml:"sections"`
	CriticalEvidence []models.CriticalObjective `yaml:"critical_evidence"`
	Timeline         []models.TimelineEvent     `yaml:"timeline"`
}

// LoadCase reads and parses the case file at path.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: read %s: %w", path, err)
	}
	return ParseCase(data)
}

// ParseCase parses raw case-file bytes and validates the result.
func ParseCase(data []byte) (*Case, error) {
	fm, body, ok := splitFrontmatter(data)
	if !ok {
		return nil, ErrNoFrontmatter
	}

	var c Case
	if err := yaml.Unmarshal(fm, &c); err != nil {
		return nil, fmt.Errorf("parser: frontmatter: %w", err)
	}
	c.Metadata.Briefing = body
	if c.Metadata.Title == "" {
		c.Metadata.Title = deriveTitle(body)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("parser: invalid case file: %w", err)
	}
	return &c, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body.
func splitFrontmatter(data []byte) ([]byte, string, bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), false
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")
	return yamlBlock, body, true
}

// deriveTitle returns the first H1 heading of body, or empty string.
func deriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Validate checks every catalog entry of the case.
func (c *Case) Validate() error {
	types := make([]interface{}, len(models.EvidenceTypes))
	for i, t := range models.EvidenceTypes {
		types[i] = t
	}

	for i := range c.Evidence {
		e := &c.Evidence[i]
		if err := validation.ValidateStruct(e,
			validation.Field(&e.ID, validation.Required),
			validation.Field(&e.Type, validation.Required, validation.In(types...)),
			validation.Field(&e.Name, validation.Required),
			validation.Field(&e.RelevanceScore, validation.Min(0.0), validation.Max(1.0)),
			validation.Field(&e.Size, validation.Min(int64(0))),
		); err != nil {
			return fmt.Errorf("evidence[%d]: %w", i, err)
		}
	}
	for i := range c.Objectives {
		o := &c.Objectives[i]
		if err := validation.ValidateStruct(o,
			validation.Field(&o.ID, validation.Required),
			validation.Field(&o.Title, validation.Required),
			validation.Field(&o.Points, validation.Required, validation.Min(1)),
		); err != nil {
			return fmt.Errorf("objectives[%d]: %w", i, err)
		}
	}
	for i := range c.Sections {
		s := &c.Sections[i]
		if err := validation.ValidateStruct(s,
			validation.Field(&s.Title, validation.Required),
			validation.Field(&s.MinEvidence, validation.Min(0)),
			validation.Field(&s.MaxEvidence, validation.Min(0)),
		); err != nil {
			return fmt.Errorf("sections[%d]: %w", i, err)
		}
		if s.MaxEvidence > 0 && s.MaxEvidence < s.MinEvidence {
			return fmt.Errorf("sections[%d]: max_evidence %d below min_evidence %d", i, s.MaxEvidence, s.MinEvidence)
		}
	}
	for i := range c.CriticalEvidence {
		o := &c.CriticalEvidence[i]
		if err := validation.ValidateStruct(o,
			validation.Field(&o.ID, validation.Required),
			validation.Field(&o.RequiredSections, validation.Required),
			validation.Field(&o.EvidenceIDs, validation.Required),
			validation.Field(&o.Points, validation.Required, validation.Min(1)),
		); err != nil {
			return fmt.Errorf("critical_evidence[%d]: %w", i, err)
		}
	}
	return nil
}
