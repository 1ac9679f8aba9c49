package pattern

import (
	"fmt"

	"github.com/msageha/autopilot/internal/model"
)

type compiledRule struct {
	rule     model.PatternRule
	matchers []*Matcher
}

// Classifier maps changed paths to the first pattern rule that claims them.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier compiles every rule's globs once. Rule order is preserved and significant.
func NewClassifier(rules []model.PatternRule) (*Classifier, error) {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		cr := compiledRule{rule: r}
		for _, g := range r.Patterns {
			m, err := Compile(g)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.ID, err)
			}
			cr.matchers = append(cr.matchers, m)
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// AnalyzeContext returns the first rule with a pattern matching path.
// The boolean is false when no rule matches and the change should be ignored.
func (c *Classifier) AnalyzeContext(path string, _ model.ChangeType) (model.PatternRule, bool) {
	for _, cr := range c.rules {
		for _, m := range cr.matchers {
			if m.Match(path) {
				return cr.rule, true
			}
		}
	}
	return model.PatternRule{}, false
}

// Rules returns the configured rules in evaluation order.
func (c *Classifier) Rules() []model.PatternRule {
	out := make([]model.PatternRule, len(c.rules))
	for i, cr := range c.rules {
		out[i] = cr.rule
	}
	return out
}
