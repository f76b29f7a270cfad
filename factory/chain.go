/*
Package factory provides YAML to Go approval chain conversion.

PURPOSE:
  Converts YAML chain definitions into approval.ChainPolicy values. Every
  record walks manager → hr → admin, but which of those levels a record
  needs can be configured per kind, and each level can be made conditional
  on the record payload with a CEL expression. HR can change who signs off
  on what without a deploy.

YAML SCHEMA:
  chains:
    regularization:
      levels:
        - level: manager
        - level: hr
    reimbursement:
      levels:
        - level: manager
        - level: hr
        - level: admin
          when: 'double(payload.amount) > 5000.0'

  A level without `when` is always required. `when` is evaluated against:
    payload  map(string, dyn)  the record payload, decoded from JSON
    kind     string            the record kind ID

  Level order in the file does not matter; the chain order is fixed.

USAGE:
  f, err := factory.NewChainFactory()
  policies, err := f.Load("configs/chains.yaml")
  factory.Install(engine, policies)

SEE ALSO:
  - approval/chain.go: ChainPolicy and the state machine
  - configs/chains.yaml: shipped defaults
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/warp/approval-engine/approval"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// ChainsYAML is the top-level chain configuration document.
type ChainsYAML struct {
	Chains map[string]ChainYAML `yaml:"chains"`
}

type ChainYAML struct {
	Levels []LevelYAML `yaml:"levels"`
}

type LevelYAML struct {
	Level string `yaml:"level"`
	When  string `yaml:"when,omitempty"`
}

// DefaultChainsYAML requires the full chain for both record kinds.
const DefaultChainsYAML = `
chains:
  regularization:
    levels:
      - level: manager
      - level: hr
      - level: admin
  reimbursement:
    levels:
      - level: manager
      - level: hr
      - level: admin
`

// =============================================================================
// CHAIN FACTORY
// =============================================================================

// ChainFactory compiles chain definitions. The CEL environment is shared by
// every chain it builds.
type ChainFactory struct {
	env *cel.Env
}

func NewChainFactory() (*ChainFactory, error) {
	env, err := cel.NewEnv(
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("kind", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &ChainFactory{env: env}, nil
}

// Load reads and parses a chain file.
func (f *ChainFactory) Load(path string) (map[string]approval.ChainPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain file: %w", err)
	}
	return f.Parse(data)
}

// Parse compiles every chain in a YAML document, keyed by kind ID.
func (f *ChainFactory) Parse(data []byte) (map[string]approval.ChainPolicy, error) {
	var doc ChainsYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse chain YAML: %w", err)
	}
	if len(doc.Chains) == 0 {
		return nil, fmt.Errorf("chain file defines no chains")
	}

	out := make(map[string]approval.ChainPolicy, len(doc.Chains))
	for kind, cy := range doc.Chains {
		chain, err := f.Compile(kind, cy)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", kind, err)
		}
		out[kind] = chain
	}
	return out, nil
}

// Compile builds one chain. Unknown or repeated levels and CEL expressions
// that do not compile are rejected here, not at submission time.
func (f *ChainFactory) Compile(kind string, cy ChainYAML) (*Chain, error) {
	chain := &Chain{Kind: kind}
	seen := make(map[approval.Level]bool)
	for _, ly := range cy.Levels {
		level, ok := approval.ParseLevel(ly.Level)
		if !ok {
			return nil, fmt.Errorf("unknown level %q", ly.Level)
		}
		if seen[level] {
			return nil, fmt.Errorf("level %q listed twice", level)
		}
		seen[level] = true

		rule := levelRule{level: level, expr: ly.When}
		if ly.When != "" {
			ast, iss := f.env.Compile(ly.When)
			if iss != nil && iss.Err() != nil {
				return nil, fmt.Errorf("level %s: invalid condition: %w", level, iss.Err())
			}
			prg, err := f.env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("level %s: %w", level, err)
			}
			rule.prg = prg
		}
		chain.rules = append(chain.rules, rule)
	}
	sort.Slice(chain.rules, func(i, j int) bool {
		return chain.rules[i].level.Rank() < chain.rules[j].level.Rank()
	})
	return chain, nil
}

// =============================================================================
// CHAIN
// =============================================================================

// Chain is a compiled approval.ChainPolicy.
type Chain struct {
	Kind  string
	rules []levelRule
}

type levelRule struct {
	level approval.Level
	expr  string
	prg   cel.Program
}

// RequiredLevels evaluates each conditional level against the record payload.
func (c *Chain) RequiredLevels(rec approval.Record) ([]approval.Level, error) {
	var vars map[string]any
	levels := make([]approval.Level, 0, len(c.rules))
	for _, r := range c.rules {
		if r.prg == nil {
			levels = append(levels, r.level)
			continue
		}
		if vars == nil {
			payload := map[string]any{}
			if len(rec.Payload) > 0 {
				if err := json.Unmarshal(rec.Payload, &payload); err != nil {
					return nil, fmt.Errorf("decode payload for chain conditions: %w", err)
				}
			}
			vars = map[string]any{"payload": payload, "kind": c.Kind}
		}

		out, _, err := r.prg.Eval(vars)
		if err != nil {
			return nil, fmt.Errorf("evaluate %q for level %s: %w", r.expr, r.level, err)
		}
		required, ok := out.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("condition %q for level %s is not boolean", r.expr, r.level)
		}
		if required {
			levels = append(levels, r.level)
		}
	}
	return levels, nil
}

// Levels lists the configured levels and their conditions, in chain order.
func (c *Chain) Levels() []LevelYAML {
	out := make([]LevelYAML, len(c.rules))
	for i, r := range c.rules {
		out[i] = LevelYAML{Level: string(r.level), When: r.expr}
	}
	return out
}

var _ approval.ChainPolicy = (*Chain)(nil)

// Install registers each policy on the engine under its kind.
func Install(eng *approval.Engine, policies map[string]approval.ChainPolicy) {
	for kind, p := range policies {
		eng.SetChain(approval.GetOrCreateKind(kind), p)
	}
}

// DefaultChains compiles DefaultChainsYAML.
func DefaultChains() (map[string]approval.ChainPolicy, error) {
	f, err := NewChainFactory()
	if err != nil {
		return nil, err
	}
	return f.Parse([]byte(DefaultChainsYAML))
}
