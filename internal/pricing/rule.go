package pricing

import (
	"strings"

	"github.com/router-for-me/CreditEngine/internal/models"
)

// Rule describes how an attribute answer is converted to credits.
//
// Exactly two variants exist: Multiplier and PerOption. RuleFor decides which
// one applies; PerOption always wins when the attribute carries a cost table.
type Rule interface {
	kind() string
}

// Multiplier charges Impact per numeric unit, minus an optional free allowance.
type Multiplier struct {
	Impact   float64
	Included *float64
}

// PerOption charges a fixed cost per selected option.
// Options missing from the table fall back to FallbackImpact times their numeric value.
type PerOption struct {
	Costs          map[string]int
	FallbackImpact float64
}

func (Multiplier) kind() string { return "multiplier" }
func (PerOption) kind() string  { return "per_option" }

// RuleName returns a stable label for a rule, or "none" for nil.
func RuleName(r Rule) string {
	if r == nil {
		return "none"
	}
	return r.kind()
}

// RuleFor resolves the pricing rule of an attribute; nil means it never charges.
func RuleFor(attr models.Attribute) Rule {
	if len(attr.OptionsWithCost) > 0 && (attr.Type == models.AttributeTypeSelect || attr.Type == models.AttributeTypeMultiselect) {
		costs := make(map[string]int, len(attr.OptionsWithCost))
		for _, opt := range attr.OptionsWithCost {
			value := strings.TrimSpace(opt.Value)
			if value == "" {
				continue
			}
			costs[value] = opt.Cost
		}
		return PerOption{Costs: costs, FallbackImpact: attr.CreditImpact}
	}

	switch attr.Type {
	case models.AttributeTypeText, models.AttributeTypeTextarea, models.AttributeTypeMultiselect:
		return nil
	}
	if attr.CreditImpact == 0 {
		return nil
	}
	return Multiplier{Impact: attr.CreditImpact, Included: attr.IncludedQuantity}
}
