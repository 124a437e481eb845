// Package pricing computes the credit cost of a service request.
package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/router-for-me/CreditEngine/internal/models"
)

// Default priority surcharges used when a service type leaves them unset.
const (
	DefaultPriorityCostLow    = 0
	DefaultPriorityCostMedium = 1
	DefaultPriorityCostHigh   = 2
)

// Line is the priced contribution of a single attribute.
type Line struct {
	AttributeID string   `json:"attribute_id,omitempty"`
	Question    string   `json:"question"`
	Answer      []string `json:"answer"`
	Rule        string   `json:"rule"`
	Credits     int      `json:"credits"`
}

// Breakdown itemizes attribute surcharges.
type Breakdown struct {
	Lines []Line `json:"lines"`
	Total int    `json:"total"`
}

// Quote is the full price of a request at creation time.
type Quote struct {
	Base       int             `json:"base"`
	Attributes int             `json:"attributes"`
	Priority   int             `json:"priority"`
	Total      int             `json:"total"`
	Level      models.Priority `json:"level"`
	Breakdown  Breakdown       `json:"breakdown"`
}

// ComputeAttributeCredits sums the surcharges of all answered attributes.
func ComputeAttributeCredits(attrs []models.Attribute, responses []models.AttributeResponse) int {
	return CalculateAttributeCreditBreakdown(attrs, responses).Total
}

// CalculateAttributeCreditBreakdown prices each answered attribute.
// Unanswered attributes are skipped; every line is floored at zero.
func CalculateAttributeCreditBreakdown(attrs []models.Attribute, responses []models.AttributeResponse) Breakdown {
	out := Breakdown{Lines: make([]Line, 0, len(attrs))}
	for _, attr := range attrs {
		resp, ok := FindResponse(attr, responses)
		if !ok {
			continue
		}
		rule := RuleFor(attr)
		credits := priceAnswer(rule, resp.Answer)
		out.Lines = append(out.Lines, Line{
			AttributeID: attr.ID,
			Question:    attr.Question,
			Answer:      resp.Answer.Values(),
			Rule:        RuleName(rule),
			Credits:     credits,
		})
		out.Total += credits
	}
	return out
}

// FindResponse locates the answer for an attribute.
// A matching stable id wins; question text is the legacy fallback.
func FindResponse(attr models.Attribute, responses []models.AttributeResponse) (models.AttributeResponse, bool) {
	if id := strings.TrimSpace(attr.ID); id != "" {
		for _, resp := range responses {
			if strings.TrimSpace(resp.AttributeID) == id {
				return resp, true
			}
		}
	}
	for _, resp := range responses {
		if resp.AttributeID != "" && attr.ID != "" {
			continue
		}
		if resp.Question == attr.Question {
			return resp, true
		}
	}
	return models.AttributeResponse{}, false
}

func priceAnswer(rule Rule, answer models.AnswerValue) int {
	switch r := rule.(type) {
	case Multiplier:
		if answer.IsList {
			return 0
		}
		v, ok := parseNumber(answer.Single)
		if !ok {
			return 0
		}
		if r.Included != nil {
			v -= *r.Included
		}
		return floorCredits(v * r.Impact)
	case PerOption:
		total := 0
		for _, selected := range answer.Values() {
			selected = strings.TrimSpace(selected)
			if cost, okCost := r.Costs[selected]; okCost {
				total += floorCredits(float64(cost))
				continue
			}
			if v, okNum := parseNumber(selected); okNum {
				total += floorCredits(v * r.FallbackImpact)
			}
		}
		return total
	default:
		return 0
	}
}

// PriorityCost returns the surcharge for a priority level on a service type.
func PriorityCost(st *models.ServiceType, level models.Priority) int {
	var configured *int
	fallback := DefaultPriorityCostLow
	switch level {
	case models.PriorityMedium:
		fallback = DefaultPriorityCostMedium
		if st != nil {
			configured = st.PriorityCostMedium
		}
	case models.PriorityHigh:
		fallback = DefaultPriorityCostHigh
		if st != nil {
			configured = st.PriorityCostHigh
		}
	default:
		if st != nil {
			configured = st.PriorityCostLow
		}
	}
	if configured == nil {
		return fallback
	}
	if *configured < 0 {
		return 0
	}
	return *configured
}

// ParsePriority normalizes a priority label, defaulting to low.
func ParsePriority(raw string) (models.Priority, bool) {
	switch models.Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case "", models.PriorityLow:
		return models.PriorityLow, true
	case models.PriorityMedium:
		return models.PriorityMedium, true
	case models.PriorityHigh:
		return models.PriorityHigh, true
	default:
		return models.PriorityLow, false
	}
}

// TotalCost prices a request: base + attribute surcharges + priority surcharge.
func TotalCost(st *models.ServiceType, responses []models.AttributeResponse, level models.Priority) Quote {
	if st == nil {
		return Quote{Level: level}
	}
	breakdown := CalculateAttributeCreditBreakdown(st.Attributes, responses)
	base := st.CreditCost
	if base < 0 {
		base = 0
	}
	priority := PriorityCost(st, level)
	return Quote{
		Base:       base,
		Attributes: breakdown.Total,
		Priority:   priority,
		Total:      base + breakdown.Total + priority,
		Level:      level,
		Breakdown:  breakdown,
	}
}

// ValidateRequired returns the questions of required attributes left unanswered.
func ValidateRequired(attrs []models.Attribute, responses []models.AttributeResponse) []string {
	var missing []string
	for _, attr := range attrs {
		if !attr.Required {
			continue
		}
		resp, ok := FindResponse(attr, responses)
		if !ok || !hasValue(resp.Answer) {
			missing = append(missing, attr.Question)
		}
	}
	return missing
}

func hasValue(answer models.AnswerValue) bool {
	for _, v := range answer.Values() {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func parseNumber(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// floorCredits rounds a fractional surcharge and clamps it at zero.
func floorCredits(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v))
}
