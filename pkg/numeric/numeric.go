// Package numeric reads and formats the monetary and quantity values found in
// Brazilian fiscal documents.
package numeric

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var nonNumeric = regexp.MustCompile(`[^0-9,.\-]`)

// Parse reads a numeric attribute value. ok is false when the value is
// missing or cannot be read as a finite number.
func Parse(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case *float64:
		if n == nil {
			return 0, false
		}
		return finite(*n)
	case json.Number:
		return ParseString(n.String())
	case decimal.Decimal:
		return n.InexactFloat64(), true
	case string:
		return ParseString(n)
	}
	return 0, false
}

// ParseString reads a number written either in pt-BR ("R$ 1.234,56") or in
// dot-decimal notation ("1234.56").
func ParseString(s string) (float64, bool) {
	d, ok := ParseDecimal(s)
	if !ok {
		return 0, false
	}
	return finite(d.InexactFloat64())
}

// ParseDecimal is ParseString returning the exact decimal value.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = nonNumeric.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FormatCurrency renders a value as pt-BR currency, e.g. "R$ 1.234,56".
func FormatCurrency(v float64) string {
	return formatGrouped(v, 2, "R$ ")
}

// FormatQuantity renders a commercial quantity with four decimals, e.g. "1.234,5000".
func FormatQuantity(v float64) string {
	return formatGrouped(v, 4, "")
}

func formatGrouped(v float64, places int32, prefix string) string {
	d := decimal.NewFromFloat(v).Round(places)
	intPart, frac, _ := strings.Cut(d.Abs().StringFixed(places), ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(prefix)
	b.WriteString(groupThousands(intPart))
	if places > 0 {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
