package crossval

import (
	"strings"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

// NotAvailable fills blank identity fields.
const NotAvailable = "N/A"

const keySeparator = "|"

// BuildContext normalizes the fiscal identity of a line item.
// Blank fields become NotAvailable; a blank issue date stays empty.
func BuildContext(item models.LineItem) models.FiscalContext {
	return models.FiscalContext{
		NCM:            orNotAvailable(item.NCM),
		CFOP:           orNotAvailable(item.CFOP),
		IssuerTaxID:    orNotAvailable(item.IssuerTaxID),
		RecipientTaxID: orNotAvailable(item.RecipientTaxID),
		IssueDate:      NormalizeDate(item.IssueDate),
		ProductName:    orNotAvailable(item.ProductName),
	}
}

// NormalizeDate keeps the calendar date of an ISO-like timestamp.
// Values of ten or more characters are cut to their first ten;
// shorter values pass through trimmed.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}

// GroupKey joins the grouping fields of a context. The product name is not
// part of the key.
func GroupKey(ctx models.FiscalContext) string {
	date := ctx.IssueDate
	if date == "" {
		date = NotAvailable
	}
	return strings.Join([]string{ctx.NCM, ctx.CFOP, ctx.IssuerTaxID, ctx.RecipientTaxID, date}, keySeparator)
}

func orNotAvailable(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return NotAvailable
	}
	return s
}
