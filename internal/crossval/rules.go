package crossval

import (
	"github.com/todmy/fiscal-crossval/pkg/numeric"
	"github.com/todmy/fiscal-crossval/pkg/models"
)

// Rule describes one compared attribute.
type Rule struct {
	Attribute string
	Code      string
	Label     string
	Template  string
	Format    func(float64) string

	value func(models.LineItem) *float64
}

// Value returns the attribute of item, false when it is absent.
func (r Rule) Value(item models.LineItem) (float64, bool) {
	return numeric.Parse(r.value(item))
}

var catalog = []Rule{
	{
		Attribute: "valor_total",
		Code:      "DET_VALOR_TOTAL_ITEM",
		Label:     "Valor Total do Item",
		Template:  "Valor total do item diverge entre documentos da mesma operação",
		Format:    numeric.FormatCurrency,
		value:     func(li models.LineItem) *float64 { return li.TotalValue },
	},
	{
		Attribute: "valor_unitario",
		Code:      "DET_VALOR_UNITARIO",
		Label:     "Valor Unitário",
		Template:  "Valor unitário diverge entre documentos da mesma operação",
		Format:    numeric.FormatCurrency,
		value:     func(li models.LineItem) *float64 { return li.UnitValue },
	},
	{
		Attribute: "quantidade",
		Code:      "DET_QUANTIDADE",
		Label:     "Quantidade Comercial",
		Template:  "Quantidade comercial diverge entre documentos da mesma operação",
		Format:    numeric.FormatQuantity,
		value:     func(li models.LineItem) *float64 { return li.Quantity },
	},
	{
		Attribute: "icms_base",
		Code:      "DET_ICMS_BASE",
		Label:     "Base de Cálculo do ICMS",
		Template:  "Base de cálculo do ICMS diverge entre documentos da mesma operação",
		Format:    numeric.FormatCurrency,
		value:     func(li models.LineItem) *float64 { return li.ICMSBase },
	},
	{
		Attribute: "icms_valor",
		Code:      "DET_ICMS_VALOR",
		Label:     "Valor do ICMS",
		Template:  "Valor do ICMS diverge entre documentos da mesma operação",
		Format:    numeric.FormatCurrency,
		value:     func(li models.LineItem) *float64 { return li.ICMSValue },
	},
	{
		Attribute: "pis_valor",
		Code:      "DET_PIS_VALOR",
		Label:     "Valor do PIS",
		Template:  "Valor do PIS diverge entre documentos da mesma operação",
		Format:    numeric.FormatCurrency,
		value:     func(li models.LineItem) *float64 { return li.PISValue },
	},
	{
		Attribute: "cofins_valor",
		Code:      "DET_COFINS_VALOR",
		Label:     "Valor da COFINS",
		Template:  "Valor da COFINS diverge entre documentos da mesma operação",
		Format:    numeric.FormatCurrency,
		value:     func(li models.LineItem) *float64 { return li.COFINSValue },
	},
}

// Rules returns the attribute catalog in comparison order.
func Rules() []Rule {
	rules := make([]Rule, len(catalog))
	copy(rules, catalog)
	return rules
}
