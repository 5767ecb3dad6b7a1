// Package policy evaluates the mission intake policy with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// Input is the document the intake policy is evaluated against.
type Input struct {
	Service         string  `json:"service"`
	Description     string  `json:"description"`
	Price           float64 `json:"price"`
	ClientEmail     string  `json:"client_email"`
	Source          string  `json:"source"`
	ReviewThreshold float64 `json:"review_threshold"`
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Decision domain.PolicyDecision `json:"decision"`
	Reason   string                `json:"reason"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.mission_intake.decision"),
		rego.Module("mission_intake.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate decides whether a confirmed draft is accepted, needs review, or
// is blocked.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: domain.PolicyDecisionAllow, Reason: "default"}, nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return Decision{Decision: domain.PolicyDecision(val)}, nil
	case map[string]interface{}:
		d := Decision{}
		if s, ok := val["decision"].(string); ok {
			d.Decision = domain.PolicyDecision(s)
		}
		if s, ok := val["reason"].(string); ok {
			d.Reason = s
		}
		if d.Decision == "" {
			return Decision{}, fmt.Errorf("policy result has no decision")
		}
		return d, nil
	}

	return Decision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
}

// DefaultPolicy is the default intake policy content.
const DefaultPolicy = `
package mission_intake

default decision = {"decision": "allow", "reason": ""}

decision = {"decision": "block", "reason": "price must not be negative"} {
	input.price < 0
} else = {"decision": "block", "reason": "disposable email domain"} {
	endswith(lower(input.client_email), "@mailinator.com")
} else = {"decision": "require_review", "reason": "price above review threshold"} {
	input.review_threshold > 0
	input.price > input.review_threshold
}
`
