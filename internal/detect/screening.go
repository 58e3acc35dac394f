package detect

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ScreeningEngine evaluates operator-defined CEL rules over the named
// feature map. Each firing rule adds its tag and weight to a single
// advisory finding reported alongside the built-in detectors.
type ScreeningEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledRule
}

type compiledRule struct {
	rule    *domain.ScreeningRule
	program cel.Program
}

// NewScreeningEngine creates an engine whose rules see the feature map
// bound under `f`, e.g. `f["Sent tnx"] > 100.0`.
func NewScreeningEngine() (*ScreeningEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("f", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &ScreeningEngine{
		env:      env,
		compiled: make(map[string]*compiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *ScreeningEngine) ValidateRule(rule *domain.ScreeningRule) error {
	if rule == nil {
		return fmt.Errorf("screening rule is required")
	}
	_, err := e.compile(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *ScreeningEngine) LoadRule(rule *domain.ScreeningRule) error {
	c, err := e.compile(rule)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.compiled[rule.ID] = c
	e.mu.Unlock()
	return nil
}

// ReloadRules replaces the loaded rule set atomically. Disabled rules
// are skipped.
func (e *ScreeningEngine) ReloadRules(rules []*domain.ScreeningRule) error {
	next := make(map[string]*compiledRule)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		c, err := e.compile(r)
		if err != nil {
			return err
		}
		next[r.ID] = c
	}
	e.mu.Lock()
	e.compiled = next
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *ScreeningEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// LoadedRules returns the currently loaded rule configurations.
func (e *ScreeningEngine) LoadedRules() []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rules := make([]*domain.ScreeningRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c.rule)
	}
	return rules
}

// Evaluate runs every loaded rule against the feature map and folds the
// firing rules into one screening finding. A rule that errors at
// evaluation is skipped; the rest still count.
func (e *ScreeningEngine) Evaluate(ctx context.Context, featureMap map[string]float64) (domain.PatternFinding, error) {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c)
	}
	e.mu.RUnlock()

	finding := domain.PatternFinding{Detector: domain.DetectorScreening}
	if len(rules) == 0 {
		return finding, nil
	}

	fm := make(map[string]any, len(featureMap))
	for k, v := range featureMap {
		fm[k] = v
	}
	activation := map[string]any{"f": fm}

	var risk float64
	for _, c := range rules {
		if err := ctx.Err(); err != nil {
			return finding, err
		}
		out, _, err := c.program.Eval(activation)
		if err != nil {
			continue
		}
		if fired(out) {
			finding.Tags = append(finding.Tags, domain.Tag(c.rule.Tag))
			risk += c.rule.Weight
		}
	}
	finding.RiskLevel = math.Min(risk, 1.0)
	return finding, nil
}

func fired(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}

func (e *ScreeningEngine) compile(rule *domain.ScreeningRule) (*compiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile screening rule %s: %w", rule.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("screening rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program for screening rule %s: %w", rule.ID, err)
	}
	return &compiledRule{rule: rule, program: program}, nil
}
