package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

// Rule is one rego-expressed policy rule evaluated by the Gate.
type Rule struct {
	// Name is the unique rule name.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the rego rule source. The rule's package must expose a
	// deny set; each member is either a message string or an object with
	// message and resource fields.
	Rego string `json:"rego"`

	// Enabled indicates whether the rule participates in evaluation.
	Enabled bool `json:"enabled"`

	// Source records where the rule was loaded from, if anywhere.
	Source string `json:"source,omitempty"`
}

// compiledRule is a rule with its parsed module.
type compiledRule struct {
	rule     *Rule
	module   *ast.Module
	compiled time.Time
}

// gateInput is the document handed to rego evaluation.
type gateInput struct {
	Recommendation *optimizer.Recommendation `json:"recommendation"`
	Policy         *CostPolicy               `json:"policy"`
}

// Gate evaluates rego rules against recommendations. The built-in rules
// mirror the typed CheckTarget logic and custom .rego files can extend them.
type Gate struct {
	mu     sync.RWMutex
	rules  map[string]*compiledRule
	logger zerolog.Logger
}

// NewGate creates a gate preloaded with the built-in rules.
func NewGate(logger zerolog.Logger) (*Gate, error) {
	g := &Gate{
		rules:  make(map[string]*compiledRule),
		logger: logger.With().Str("component", "policy-gate").Logger(),
	}

	for _, r := range BuiltinRules() {
		rule := r
		if err := g.compileAndStore(&rule); err != nil {
			return nil, fmt.Errorf("built-in rule %s: %w", rule.Name, err)
		}
	}

	g.logger.Debug().Int("count", len(g.rules)).Msg("Built-in rules loaded")
	return g, nil
}

// AddRule compiles and registers a rule, replacing any rule with the same name.
func (g *Gate) AddRule(rule *Rule) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.compileAndStore(rule)
}

// Rules returns the registered rules.
func (g *Gate) Rules() []Rule {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rules := make([]Rule, 0, len(g.rules))
	for _, cr := range g.rules {
		rules = append(rules, *cr.rule)
	}
	return rules
}

// Evaluate runs every enabled rule against a recommendation and its policy.
// A rule evaluation error is logged and skipped so one broken custom rule
// cannot take the gate down.
func (g *Gate) Evaluate(ctx context.Context, rec *optimizer.Recommendation, pol *CostPolicy) ([]Violation, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start := time.Now()
	input := &gateInput{Recommendation: rec, Policy: pol}

	var violations []Violation
	for _, cr := range g.rules {
		if !cr.rule.Enabled {
			continue
		}

		vs, err := g.evaluateRule(ctx, cr, input)
		if err != nil {
			g.logger.Error().Err(err).
				Str("rule", cr.rule.Name).
				Str("resource_id", rec.ResourceID).
				Msg("Rule evaluation failed")
			continue
		}
		violations = append(violations, vs...)
	}

	g.logger.Debug().
		Str("resource_id", rec.ResourceID).
		Int("violations", len(violations)).
		Dur("duration", time.Since(start)).
		Msg("Gate evaluation completed")

	return violations, nil
}

func (g *Gate) evaluateRule(ctx context.Context, cr *compiledRule, input *gateInput) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(cr.rule.Rego))

	r := rego.New(
		rego.Module(cr.rule.Name, cr.rule.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, makeViolation(cr.rule, d, input))
			}
		}
	}
	return violations, nil
}

// packageName extracts the package path from rego source.
func packageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "spendoptimo.policies"
}

func makeViolation(rule *Rule, result interface{}, input *gateInput) Violation {
	v := Violation{Rule: rule.Name}
	if input.Recommendation != nil {
		v.Resource = input.Recommendation.ResourceID
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if res, ok := r["resource"].(string); ok {
			v.Resource = res
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

func (g *Gate) compileAndStore(rule *Rule) error {
	module, err := ast.ParseModule(rule.Name, rule.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse rule: %w", err)
	}

	g.rules[rule.Name] = &compiledRule{
		rule:     rule,
		module:   module,
		compiled: time.Now(),
	}
	return nil
}
