package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/todmy/fiscal-crossval/pkg/numeric"
)

// LineItem is one extracted row of a fiscal document.
// Numeric attributes are nil when the source did not carry a readable value;
// an explicit zero is kept as zero.
type LineItem struct {
	NCM            string
	CFOP           string
	IssuerTaxID    string
	RecipientTaxID string
	IssueDate      string
	ProductName    string

	TotalValue  *float64
	UnitValue   *float64
	Quantity    *float64
	ICMSBase    *float64
	ICMSValue   *float64
	PISValue    *float64
	COFINSValue *float64

	// Extra keeps source keys the engine does not interpret.
	Extra map[string]any
}

// Amount returns a pointer to v, for building line items in code.
func Amount(v float64) *float64 {
	return &v
}

type textField struct {
	keys []string
	ref  func(*LineItem) *string
}

type numberField struct {
	keys []string
	ref  func(*LineItem) **float64
}

// The first key of each entry is the canonical one used when encoding.
var textFields = []textField{
	{[]string{"ncm", "produto_ncm", "NCM"}, func(li *LineItem) *string { return &li.NCM }},
	{[]string{"cfop", "produto_cfop", "CFOP"}, func(li *LineItem) *string { return &li.CFOP }},
	{[]string{"emitente_cnpj", "emitente_cpf", "cnpj_emitente", "emitenteCnpj"}, func(li *LineItem) *string { return &li.IssuerTaxID }},
	{[]string{"destinatario_cnpj", "destinatario_cpf", "cnpj_destinatario", "destinatarioCnpj"}, func(li *LineItem) *string { return &li.RecipientTaxID }},
	{[]string{"data_emissao", "dataEmissao", "dhEmi", "dEmi"}, func(li *LineItem) *string { return &li.IssueDate }},
	{[]string{"produto_nome", "produtoNome", "descricao", "xProd"}, func(li *LineItem) *string { return &li.ProductName }},
}

var numberFields = []numberField{
	{[]string{"valor_total", "produto_valor_total", "valor_total_produto", "vProd"}, func(li *LineItem) **float64 { return &li.TotalValue }},
	{[]string{"valor_unitario", "produto_valor_unit", "vUnCom"}, func(li *LineItem) **float64 { return &li.UnitValue }},
	{[]string{"quantidade", "produto_qtd", "qCom"}, func(li *LineItem) **float64 { return &li.Quantity }},
	{[]string{"icms_base", "base_calculo_icms", "vBC"}, func(li *LineItem) **float64 { return &li.ICMSBase }},
	{[]string{"icms_valor", "valor_icms", "vICMS"}, func(li *LineItem) **float64 { return &li.ICMSValue }},
	{[]string{"pis_valor", "valor_pis", "vPIS"}, func(li *LineItem) **float64 { return &li.PISValue }},
	{[]string{"cofins_valor", "valor_cofins", "vCOFINS"}, func(li *LineItem) **float64 { return &li.COFINSValue }},
}

// UnmarshalJSON decodes a flat attribute record, accepting the canonical
// snake_case keys and the NF-e tag aliases.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	raw := make(map[string]any)
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode line item: %w", err)
	}

	*li = LineItem{}
	for _, f := range textFields {
		if v, ok := take(raw, f.keys); ok {
			*f.ref(li) = textValue(v)
		}
	}
	for _, f := range numberFields {
		if v, ok := take(raw, f.keys); ok {
			if n, ok := numeric.Parse(v); ok {
				*f.ref(li) = Amount(n)
			}
		}
	}
	if len(raw) > 0 {
		li.Extra = raw
	}
	return nil
}

// MarshalJSON encodes the item with canonical keys, merged over Extra.
func (li LineItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(li.Extra)+len(textFields)+len(numberFields))
	for k, v := range li.Extra {
		out[k] = v
	}
	for _, f := range textFields {
		if v := *f.ref(&li); v != "" {
			out[f.keys[0]] = v
		}
	}
	for _, f := range numberFields {
		if v := *f.ref(&li); v != nil {
			out[f.keys[0]] = *v
		}
	}
	return json.Marshal(out)
}

// take removes every alias from raw and returns the first non-null value.
func take(raw map[string]any, keys []string) (any, bool) {
	var (
		found any
		ok    bool
	)
	for _, k := range keys {
		v, present := raw[k]
		if !present {
			continue
		}
		delete(raw, k)
		if !ok && v != nil {
			found, ok = v, true
		}
	}
	return found, ok
}

func textValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
