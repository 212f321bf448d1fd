package crossval

import (
	"github.com/shopspring/decimal"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

// Tolerance is the band inside which two values are considered equal.
type Tolerance struct {
	Absolute float64
	Relative float64
}

// DefaultTolerance returns the 0.001 absolute / 0.1% relative band
func DefaultTolerance() Tolerance {
	return Tolerance{
		Absolute: 0.001,
		Relative: 0.001,
	}
}

// Diverges reports whether a and b differ by more than both the absolute
// and the relative tolerance. The relative gap is taken against the larger
// magnitude.
func (t Tolerance) Diverges(a, b float64) bool {
	diff, rel := gap(a, b)
	return diff.GreaterThan(decimal.NewFromFloat(t.Absolute)) &&
		rel.GreaterThan(decimal.NewFromFloat(t.Relative))
}

func gap(a, b float64) (diff, rel decimal.Decimal) {
	da, db := decimal.NewFromFloat(a), decimal.NewFromFloat(b)
	diff = da.Sub(db).Abs()
	scale := decimal.Max(da.Abs(), db.Abs())
	if scale.IsZero() {
		return diff, decimal.Zero
	}
	return diff, diff.Div(scale)
}

// CompareGroup checks every rule across the members of g and returns one
// finding per rule that produced at least one discrepancy, in rule order.
func CompareGroup(g Group, rules []Rule, tol Tolerance) []models.Finding {
	if len(g.Members) < 2 {
		return nil
	}

	ref, others := g.Reference()
	ctx := BuildContext(ref.Item)

	var findings []models.Finding
	for _, rule := range rules {
		refValue, ok := rule.Value(ref.Item)
		if !ok {
			continue
		}

		justification := Justification(rule, ctx)
		var discrepancies []models.Discrepancy
		for _, m := range others {
			value, ok := rule.Value(m.Item)
			if !ok || !tol.Diverges(refValue, value) {
				continue
			}
			diff, rel := gap(refValue, value)
			discrepancies = append(discrepancies, models.Discrepancy{
				RuleCode:      rule.Code,
				Justification: justification,
				DocA:          ref.Doc,
				ValueA:        refValue,
				DisplayA:      rule.Format(refValue),
				DocB:          m.Doc,
				ValueB:        value,
				DisplayB:      rule.Format(value),
				AbsoluteDiff:  diff.InexactFloat64(),
				RelativeDiff:  rel.InexactFloat64(),
			})
		}

		if len(discrepancies) > 0 {
			findings = append(findings, assembleFinding(g.Key, rule, ctx, justification, discrepancies))
		}
	}

	return findings
}
