package core

// RuleEngine evaluates an ordered list of business rules. It is immutable
// after construction and safe for concurrent use.
type RuleEngine struct {
	rules []Rule
}

// NewRuleEngine returns an engine over rules, evaluated in the given order.
// Nil rules are ignored.
func NewRuleEngine(rules ...Rule) *RuleEngine {
	e := &RuleEngine{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		if r != nil {
			e.rules = append(e.rules, r)
		}
	}
	return e
}

// DefaultRuleEngine returns an engine over [DefaultRules].
func DefaultRuleEngine() *RuleEngine {
	return NewRuleEngine(DefaultRules()...)
}

// Evaluate runs every rule against c and returns the violations in rule
// order. An empty result means c is accepted.
func (e *RuleEngine) Evaluate(c Candidate) []RowError {
	var errs []RowError
	for _, r := range e.rules {
		if err := r.Evaluate(c); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Len returns the number of rules.
func (e *RuleEngine) Len() int {
	return len(e.rules)
}
