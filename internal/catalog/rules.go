package catalog

import "github.com/sells-group/market-validator/internal/model"

// RuleCatalog maps a source identifier to its validation rule set.
type RuleCatalog struct {
	byID map[model.SourceID]model.ValidationRuleSet
}

// NewRuleCatalog validates rule sets and builds a catalog. Every known source
// must have exactly one rule set.
func NewRuleCatalog(sets []model.ValidationRuleSet) (*RuleCatalog, error) {
	c := &RuleCatalog{byID: make(map[model.SourceID]model.ValidationRuleSet, len(sets))}
	for _, rs := range sets {
		if err := validateRuleSet(rs); err != nil {
			return nil, err
		}
		if _, dup := c.byID[rs.Source]; dup {
			return nil, configErr(rs.Source, "rule set defined more than once")
		}
		c.byID[rs.Source] = rs
	}
	for _, id := range KnownSources {
		if _, ok := c.byID[id]; !ok {
			return nil, configErr(id, "no rule set configured")
		}
	}
	return c, nil
}

// RuleSet returns the rule set for id.
func (c *RuleCatalog) RuleSet(id model.SourceID) (model.ValidationRuleSet, error) {
	rs, ok := c.byID[id]
	if !ok {
		return model.ValidationRuleSet{}, configErr(id, "unknown source")
	}
	return rs, nil
}

// FieldRule returns the rule for field within source id. A field without a rule
// is not evaluated at all.
func (c *RuleCatalog) FieldRule(id model.SourceID, field string) (model.ValidationRule, bool) {
	rs, ok := c.byID[id]
	if !ok {
		return model.ValidationRule{}, false
	}
	return rs.Rule(field)
}

func validateRuleSet(rs model.ValidationRuleSet) error {
	if !isKnown(rs.Source) {
		return configErr(rs.Source, "unknown source")
	}
	if rs.MaxItemsPerSession <= 0 {
		return configErr(rs.Source, "max items per session must be positive")
	}
	if rs.MaxRetries < 0 {
		return configErr(rs.Source, "max retries must not be negative")
	}
	if rs.WaitBetweenRequestsMs < 0 {
		return configErr(rs.Source, "wait between requests must not be negative")
	}
	seen := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.Field == "" {
			return configErr(rs.Source, "rule without field")
		}
		if seen[r.Field] {
			return configErr(rs.Source, "field %s has more than one rule", r.Field)
		}
		seen[r.Field] = true
		if r.ThresholdPercent < 0 {
			return configErr(rs.Source, "field %s: threshold must not be negative", r.Field)
		}
	}
	return nil
}
