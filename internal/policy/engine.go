package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Input is the document evaluated by the authorization policy.
type Input struct {
	Action string `json:"action"`
	Role   string `json:"role"`
	Email  string `json:"email"`
}

// Engine is the OPA policy engine guarding admin actions.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	if policyContent == "" {
		policyContent = DefaultPolicy
	}
	r := rego.New(
		rego.Query("data.gallerybot.authz.allow"),
		rego.Module("gallerybot_authz.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Allow reports whether the caller may perform action.
func (e *Engine) Allow(ctx context.Context, in Input) (bool, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// An undefined result means the policy did not grant access.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy returned %T, want bool", results[0].Expressions[0].Value)
	}
	return allowed, nil
}

// DefaultPolicy grants every admin action to the admin role.
const DefaultPolicy = `
package gallerybot.authz

import rego.v1

default allow := false

allow if {
	input.role == "admin"
}
`
