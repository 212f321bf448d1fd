package artifacts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

//go:embed schema/structured_report.schema.json
var structuredSchema []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(structuredSchema)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

type structuredReport struct {
	RunID       string           `json:"runId"`
	GeneratedAt string           `json:"generatedAt"`
	Summary     summary          `json:"summary"`
	Findings    []models.Finding `json:"findings"`
}

// renderJSON emits the RFC 8785 canonical form of the report.
func (g *Generator) renderJSON(runID string, createdAt time.Time, findings []models.Finding) ([]byte, error) {
	if findings == nil {
		findings = []models.Finding{}
	}

	raw, err := json.Marshal(structuredReport{
		RunID:       runID,
		GeneratedAt: createdAt.Format(time.RFC3339Nano),
		Summary:     summarize(findings),
		Findings:    findings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode structured report: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize structured report: %w", err)
	}

	if !g.config.SkipSchemaValidation {
		if err := ValidateStructured(canonical); err != nil {
			return nil, err
		}
	}

	return canonical, nil
}

// ValidateStructured checks a JSON artifact against the embedded report schema.
func ValidateStructured(data []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
