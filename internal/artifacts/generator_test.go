package artifacts

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

var fixedNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func newTestGenerator() *Generator {
	return NewGenerator(Config{Clock: func() time.Time { return fixedNow }})
}

func sampleFindings() []models.Finding {
	ctx := models.FiscalContext{
		NCM:            "84715010",
		CFOP:           "5102",
		IssuerTaxID:    "11111111000111",
		RecipientTaxID: "22222222000122",
		IssueDate:      "2024-03-15",
		ProductName:    "Notebook",
	}
	a := models.DocumentRef{Name: "a.xml"}
	b := models.DocumentRef{Name: "b.xml", SourceZip: "lote.zip", InternalPath: "notas/b.xml"}
	c := models.DocumentRef{Name: "c.xml"}

	return []models.Finding{
		{
			Attribute: "valor_total", Description: "Valor Total do Item", ComparisonKey: "NCM 84715010 • CFOP 5102 • Data 2024-03-15",
			GroupKey: "84715010|5102|11111111000111|22222222000122|2024-03-15", Severity: models.SeverityAlert,
			RuleCode: "DET_VALOR_TOTAL_ITEM", Justification: "Valor total diverge", Context: ctx,
			Discrepancies: []models.Discrepancy{
				{RuleCode: "DET_VALOR_TOTAL_ITEM", Justification: "Valor total diverge", DocA: a, ValueA: 150000, DisplayA: "R$ 150.000,00", DocB: b, ValueB: 150450, DisplayB: "R$ 150.450,00", AbsoluteDiff: 450, RelativeDiff: 0.003},
			},
		},
		{
			Attribute: "quantidade", Description: "Quantidade Comercial", ComparisonKey: "NCM 84715010 • CFOP 5102 • Data 2024-03-15",
			GroupKey: "84715010|5102|11111111000111|22222222000122|2024-03-15", Severity: models.SeverityAlert,
			RuleCode: "DET_QUANTIDADE", Justification: "Quantidade diverge", Context: ctx,
			Discrepancies: []models.Discrepancy{
				{RuleCode: "DET_QUANTIDADE", Justification: "Quantidade diverge", DocA: a, ValueA: 10, DisplayA: "10,0000", DocB: b, ValueB: 12, DisplayB: "12,0000", AbsoluteDiff: 2, RelativeDiff: 0.1667},
				{RuleCode: "DET_QUANTIDADE", Justification: "Quantidade diverge", DocA: a, ValueA: 10, DisplayA: "10,0000", DocB: c, ValueB: 11, DisplayB: "11,0000", AbsoluteDiff: 1, RelativeDiff: 0.0909},
			},
		},
	}
}

func byFormat(t *testing.T, artifacts []models.Artifact, format models.ArtifactFormat) models.Artifact {
	t.Helper()
	for _, a := range artifacts {
		if a.Descriptor.Format == format {
			return a
		}
	}
	t.Fatalf("artifact %s not generated", format)
	return models.Artifact{}
}

func markdownRows(content []byte) []string {
	var rows []string
	for _, line := range strings.Split(string(content), "\n") {
		if strings.HasPrefix(line, "|") {
			rows = append(rows, line)
		}
	}
	// header and separator
	return rows[2:]
}

func TestGenerate_Order(t *testing.T) {
	artifacts, err := newTestGenerator().Generate("run-1", sampleFindings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := models.ArtifactFormats()
	if len(artifacts) != len(want) {
		t.Fatalf("expected %d artifacts, got %d", len(want), len(artifacts))
	}
	for i, format := range want {
		desc := artifacts[i].Descriptor
		if desc.Format != format {
			t.Errorf("artifact %d: expected %s, got %s", i, format, desc.Format)
		}
		if desc.Filename != Filename("run-1", format) {
			t.Errorf("artifact %d: unexpected filename %s", i, desc.Filename)
		}
		sum := sha256.Sum256(artifacts[i].Content)
		if desc.SHA256 != hex.EncodeToString(sum[:]) {
			t.Errorf("artifact %d: digest does not match content", i)
		}
		if desc.Size != int64(len(artifacts[i].Content)) {
			t.Errorf("artifact %d: size does not match content", i)
		}
		if desc.RunID != "run-1" || !desc.CreatedAt.Equal(fixedNow) {
			t.Errorf("artifact %d: unexpected descriptor %+v", i, desc)
		}
	}
}

func TestGenerate_EmptyFindings(t *testing.T) {
	artifacts, err := newTestGenerator().Generate("run-empty", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(artifacts))
	}

	var report struct {
		Findings []json.RawMessage `json:"findings"`
		Summary  struct {
			TotalFindings int `json:"totalFindings"`
		} `json:"summary"`
	}
	structured := byFormat(t, artifacts, models.FormatJSON)
	if err := json.Unmarshal(structured.Content, &report); err != nil {
		t.Fatalf("failed to decode json artifact: %v", err)
	}
	if report.Findings == nil || len(report.Findings) != 0 || report.Summary.TotalFindings != 0 {
		t.Errorf("expected an empty findings array, got %s", structured.Content)
	}
	if !bytes.Contains(structured.Content, []byte(`"findings":[]`)) {
		t.Errorf("expected findings to encode as [], got %s", structured.Content)
	}

	records, err := readCSV(byFormat(t, artifacts, models.FormatCSV).Content)
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected only the csv header, got %d records", len(records))
	}

	md := byFormat(t, artifacts, models.FormatMarkdown).Content
	if !bytes.Contains(md, []byte("Nenhuma inconsistência material encontrada.")) {
		t.Error("expected the markdown report to state that nothing was found")
	}
	if len(markdownRows(md)) != 0 {
		t.Errorf("expected no markdown rows, got %d", len(markdownRows(md)))
	}
}

func readCSV(content []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = ';'
	return r.ReadAll()
}

func TestGenerate_RowParity(t *testing.T) {
	artifacts, err := newTestGenerator().Generate("run-1", sampleFindings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	records, err := readCSV(byFormat(t, artifacts, models.FormatCSV).Content)
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	csvRows := records[1:]
	mdRows := markdownRows(byFormat(t, artifacts, models.FormatMarkdown).Content)

	if len(csvRows) != 3 || len(mdRows) != 3 {
		t.Fatalf("expected 3 rows in each format, got csv=%d md=%d", len(csvRows), len(mdRows))
	}

	wantDocB := []string{"b.xml", "b.xml", "c.xml"}
	for i, row := range csvRows {
		if len(row) != len(csvHeader) {
			t.Fatalf("csv row %d: expected %d columns, got %d", i, len(csvHeader), len(row))
		}
		if row[13] != wantDocB[i] {
			t.Errorf("csv row %d: expected doc B %s, got %s", i, wantDocB[i], row[13])
		}
		if !strings.Contains(mdRows[i], "| "+row[1]+" |") || !strings.Contains(mdRows[i], "| "+row[15]+" |") {
			t.Errorf("row %d differs between csv and markdown: %v / %s", i, row, mdRows[i])
		}
	}

	if csvRows[0][11] != "a.xml" {
		t.Errorf("expected doc A path to fall back to its name, got %s", csvRows[0][11])
	}
	if csvRows[0][14] != "lote.zip/notas/b.xml" {
		t.Errorf("expected archive provenance in the doc B path column, got %s", csvRows[0][14])
	}
	if csvRows[0][12] != "R$ 150.000,00" {
		t.Errorf("expected formatted value A, got %s", csvRows[0][12])
	}
}

func TestGenerate_CSVQuoting(t *testing.T) {
	findings := sampleFindings()
	tricky := `Valor; com "aspas"` + "\nquebra"
	findings[0].Discrepancies[0].Justification = tricky

	artifacts, err := newTestGenerator().Generate("run-1", findings)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	records, err := readCSV(byFormat(t, artifacts, models.FormatCSV).Content)
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	if got := records[1][16]; got != tricky {
		t.Errorf("expected justification to survive csv quoting, got %q", got)
	}
}

func TestGenerate_MarkdownEscapesPipes(t *testing.T) {
	findings := sampleFindings()
	findings[0].Context.ProductName = "Cabo | HDMI"

	artifacts, err := newTestGenerator().Generate("run-1", findings)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rows := markdownRows(byFormat(t, artifacts, models.FormatMarkdown).Content)
	if !strings.Contains(rows[0], `Cabo \| HDMI`) {
		t.Errorf("expected escaped pipe, got %s", rows[0])
	}
	cells := strings.Count(rows[0], " |")
	if cells != len(markdownHeader) {
		t.Errorf("expected %d cells, got %d", len(markdownHeader), cells)
	}
}

func TestEscapeCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a | b", `a \| b`},
		{`pasta\`, `pasta\\`},
		{`fim\|`, `fim\\\|`},
		{"linha 1\r\nlinha 2\nlinha 3", "linha 1 linha 2 linha 3"},
	}

	for _, tt := range tests {
		if got := escapeCell(tt.in); got != tt.want {
			t.Errorf("escapeCell(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestGenerate_StructuredIsCanonicalAndValid(t *testing.T) {
	artifacts, err := newTestGenerator().Generate("run-1", sampleFindings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	content := byFormat(t, artifacts, models.FormatJSON).Content

	canonical, err := jcs.Transform(content)
	if err != nil {
		t.Fatalf("failed to canonicalize: %v", err)
	}
	if !bytes.Equal(canonical, content) {
		t.Error("expected json artifact to already be in canonical form")
	}
	if err := ValidateStructured(content); err != nil {
		t.Errorf("expected json artifact to match the schema: %v", err)
	}

	var report struct {
		RunID       string `json:"runId"`
		GeneratedAt string `json:"generatedAt"`
		Summary     struct {
			RulesTriggered     int `json:"rulesTriggered"`
			TotalFindings      int `json:"totalFindings"`
			TotalDiscrepancies int `json:"totalDiscrepancies"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(content, &report); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if report.RunID != "run-1" || report.GeneratedAt != "2024-03-20T12:00:00Z" {
		t.Errorf("unexpected header %+v", report)
	}
	if report.Summary.RulesTriggered != 2 || report.Summary.TotalFindings != 2 || report.Summary.TotalDiscrepancies != 3 {
		t.Errorf("unexpected summary %+v", report.Summary)
	}
}

func TestValidateStructured_RejectsInvalid(t *testing.T) {
	if err := ValidateStructured([]byte(`{"runId":"x"}`)); err == nil {
		t.Error("expected a report without findings to be rejected")
	}
}

func TestValidateStructured_RejectsUnknownSeverity(t *testing.T) {
	artifacts, err := newTestGenerator().Generate("run-1", sampleFindings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	content := byFormat(t, artifacts, models.FormatJSON).Content
	if !bytes.Contains(content, []byte(`"severity":"ALERTA"`)) {
		t.Fatalf("expected canonical severity field in %s", content)
	}

	tampered := bytes.ReplaceAll(content, []byte(`"severity":"ALERTA"`), []byte(`"severity":"INFO"`))
	if err := ValidateStructured(tampered); err == nil {
		t.Error("expected a non-alert severity to be rejected")
	}
}
