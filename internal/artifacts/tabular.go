package artifacts

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

var csvHeader = []string{
	"execucao", "regra", "atributo", "severidade", "ncm", "cfop", "data_emissao",
	"emitente", "destinatario", "produto",
	"documento_a", "caminho_a", "valor_a",
	"documento_b", "caminho_b", "valor_b",
	"justificativa",
}

var markdownHeader = []string{
	"Execução", "Regra", "Atributo", "Severidade", "NCM", "CFOP", "Data",
	"Emitente", "Destinatário", "Produto",
	"Documento A", "Caminho A", "Valor A",
	"Documento B", "Caminho B", "Valor B",
	"Justificativa",
}

// Rows flattens findings into one row per discrepancy. CSV and Markdown
// share this traversal so row N is the same discrepancy in both.
func Rows(runID string, findings []models.Finding) [][]string {
	var rows [][]string
	for _, f := range findings {
		for _, d := range f.Discrepancies {
			rows = append(rows, []string{
				runID,
				d.RuleCode,
				f.Description,
				string(f.Severity),
				f.Context.NCM,
				f.Context.CFOP,
				f.Context.IssueDate,
				f.Context.IssuerTaxID,
				f.Context.RecipientTaxID,
				f.Context.ProductName,
				d.DocA.Name,
				d.DocA.Path(),
				d.DisplayA,
				d.DocB.Name,
				d.DocB.Path(),
				d.DisplayB,
				d.Justification,
			})
		}
	}
	return rows
}

func renderCSV(runID string, findings []models.Finding) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range Rows(runID, findings) {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderMarkdown(runID string, createdAt time.Time, findings []models.Finding) []byte {
	s := summarize(findings)
	rows := Rows(runID, findings)

	var b strings.Builder
	b.WriteString("# Validação Cruzada Determinística\n\n")
	b.WriteString("- Execução: `" + runID + "`\n")
	b.WriteString("- Gerado em: " + createdAt.Format(time.RFC3339) + "\n")
	b.WriteString("- Regras acionadas: " + strconv.Itoa(s.RulesTriggered) + "\n")
	b.WriteString("- Achados: " + strconv.Itoa(s.TotalFindings) + "\n")
	b.WriteString("- Divergências: " + strconv.Itoa(s.TotalDiscrepancies) + "\n\n")

	if len(rows) == 0 {
		b.WriteString("Nenhuma inconsistência material encontrada.\n\n")
	}

	writeMarkdownRow(&b, markdownHeader)
	separator := make([]string, len(markdownHeader))
	for i := range separator {
		separator[i] = "---"
	}
	writeMarkdownRow(&b, separator)
	for _, row := range rows {
		writeMarkdownRow(&b, row)
	}

	return []byte(b.String())
}

func writeMarkdownRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(escapeCell(c))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

var cellEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func escapeCell(s string) string {
	return cellEscaper.Replace(s)
}
