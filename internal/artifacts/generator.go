// Package artifacts renders cross-validation findings as downloadable
// JSON, CSV and Markdown documents.
package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

const filenamePrefix = "deterministic-cross-validation-"

// Config holds generator configuration
type Config struct {
	// Clock stamps generatedAt and createdAt. Fixing it makes output byte-stable.
	Clock                func() time.Time
	SkipSchemaValidation bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Clock: time.Now,
	}
}

// Generator renders the three artifacts of a run
type Generator struct {
	config Config
}

// NewGenerator creates a new Generator
func NewGenerator(config Config) *Generator {
	if config.Clock == nil {
		config.Clock = DefaultConfig().Clock
	}
	return &Generator{config: config}
}

// Filename returns the file name of the artifact of runID in format.
func Filename(runID string, format models.ArtifactFormat) string {
	return filenamePrefix + runID + "." + string(format)
}

// Generate renders findings in every format, in json, csv, md order.
// An empty finding set still yields three artifacts.
func (g *Generator) Generate(runID string, findings []models.Finding) ([]models.Artifact, error) {
	createdAt := g.config.Clock().UTC()

	jsonContent, err := g.renderJSON(runID, createdAt, findings)
	if err != nil {
		return nil, err
	}
	csvContent, err := renderCSV(runID, findings)
	if err != nil {
		return nil, err
	}
	mdContent := renderMarkdown(runID, createdAt, findings)

	return []models.Artifact{
		newArtifact(runID, models.FormatJSON, createdAt, jsonContent),
		newArtifact(runID, models.FormatCSV, createdAt, csvContent),
		newArtifact(runID, models.FormatMarkdown, createdAt, mdContent),
	}, nil
}

func newArtifact(runID string, format models.ArtifactFormat, createdAt time.Time, content []byte) models.Artifact {
	sum := sha256.Sum256(content)
	return models.Artifact{
		Descriptor: models.ArtifactDescriptor{
			RunID:     runID,
			Format:    format,
			Filename:  Filename(runID, format),
			CreatedAt: createdAt,
			Size:      int64(len(content)),
			SHA256:    hex.EncodeToString(sum[:]),
		},
		Content: content,
	}
}

// Descriptors extracts the descriptors of artifacts, preserving order.
func Descriptors(artifacts []models.Artifact) []models.ArtifactDescriptor {
	out := make([]models.ArtifactDescriptor, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, a.Descriptor)
	}
	return out
}

type summary struct {
	RulesTriggered     int `json:"rulesTriggered"`
	TotalFindings      int `json:"totalFindings"`
	TotalDiscrepancies int `json:"totalDiscrepancies"`
}

func summarize(findings []models.Finding) summary {
	rules := make(map[string]struct{})
	s := summary{TotalFindings: len(findings)}
	for _, f := range findings {
		rules[f.RuleCode] = struct{}{}
		s.TotalDiscrepancies += len(f.Discrepancies)
	}
	s.RulesTriggered = len(rules)
	return s
}
