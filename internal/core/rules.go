package core

import "github.com/shopspring/decimal"

// Rule is a business constraint evaluated against a Candidate. Evaluate
// returns nil when the candidate passes. Rules never see rows that failed
// technical validation and must not mutate the candidate.
type Rule interface {
	Evaluate(c Candidate) *RowError
}

// RuleFunc adapts an ordinary function to the Rule interface.
type RuleFunc func(c Candidate) *RowError

// Evaluate calls f(c).
func (f RuleFunc) Evaluate(c Candidate) *RowError {
	return f(c)
}

// Minimum insured values by policy type, in USD. Both bounds are inclusive.
var (
	PropertyMinInsuredValue = decimal.NewFromInt(5000)
	AutoMinInsuredValue     = decimal.NewFromInt(10000)
)

// MinInsuredValueRule rejects candidates of PolicyType whose insured value
// is below Minimum. Candidates of other types always pass.
type MinInsuredValueRule struct {
	PolicyType PolicyType
	Minimum    decimal.Decimal
	Code       string
	Message    string
}

// Evaluate implements Rule.
func (r MinInsuredValueRule) Evaluate(c Candidate) *RowError {
	if c.PolicyType != r.PolicyType || !c.InsuredValueUSD.LessThan(r.Minimum) {
		return nil
	}
	return &RowError{
		Field:   ColInsuredValue,
		Code:    r.Code,
		Message: r.Message,
	}
}

// PropertyMinimumRule requires Property policies to insure at least
// 5000 USD.
func PropertyMinimumRule() Rule {
	return MinInsuredValueRule{
		PolicyType: PolicyProperty,
		Minimum:    PropertyMinInsuredValue,
		Code:       CodePropertyValueTooLow,
		Message:    "El valor asegurado para Propiedad debe ser mayor o igual a 5000 USD",
	}
}

// AutoMinimumRule requires Auto policies to insure at least 10000 USD.
func AutoMinimumRule() Rule {
	return MinInsuredValueRule{
		PolicyType: PolicyAuto,
		Minimum:    AutoMinInsuredValue,
		Code:       CodeAutoValueTooLow,
		Message:    "El valor asegurado para Autos debe ser mayor o igual a 10000 USD",
	}
}

// DefaultRules returns the standard rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		PropertyMinimumRule(),
		AutoMinimumRule(),
	}
}
