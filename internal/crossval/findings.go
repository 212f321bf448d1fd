package crossval

import (
	"strings"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

// ComparisonKey renders the human-readable identity of a group.
func ComparisonKey(ctx models.FiscalContext) string {
	date := "Data indisponível"
	if ctx.IssueDate != "" {
		date = "Data " + ctx.IssueDate
	}
	return "NCM " + ctx.NCM + " • CFOP " + ctx.CFOP + " • " + date
}

// Justification fills the rule template with the fiscal identity of ctx.
func Justification(rule Rule, ctx models.FiscalContext) string {
	var details []string

	issuer, recipient := present(ctx.IssuerTaxID), present(ctx.RecipientTaxID)
	switch {
	case issuer && recipient:
		details = append(details, ctx.IssuerTaxID+" ↔ "+ctx.RecipientTaxID)
	case issuer:
		details = append(details, "emitente "+ctx.IssuerTaxID)
	case recipient:
		details = append(details, "destinatário "+ctx.RecipientTaxID)
	}
	if present(ctx.ProductName) {
		details = append(details, "produto "+ctx.ProductName)
	}
	if ctx.IssueDate != "" {
		details = append(details, "data "+ctx.IssueDate)
	}

	if len(details) == 0 {
		return rule.Template + "."
	}
	return rule.Template + ": " + strings.Join(details, ", ") + "."
}

func assembleFinding(groupKey string, rule Rule, ctx models.FiscalContext, justification string, discrepancies []models.Discrepancy) models.Finding {
	return models.Finding{
		Attribute:     rule.Attribute,
		Description:   rule.Label,
		ComparisonKey: ComparisonKey(ctx),
		GroupKey:      groupKey,
		Severity:      models.SeverityAlert,
		RuleCode:      rule.Code,
		Justification: justification,
		Context:       ctx,
		Discrepancies: discrepancies,
	}
}

func present(s string) bool {
	return s != "" && s != NotAvailable
}
