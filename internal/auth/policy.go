package auth

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/calmisko/gatepipe/internal/core"
)

// policyEvaluator evaluates a CEL authorization expression against the
// authenticated identity and the request. The expression is compiled
// once at construction; a compile error is a configuration error.
type policyEvaluator struct {
	expression string
	program    cel.Program
}

func newPolicyEvaluator(expression string) (*policyEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("subject", cel.StringType),
		cel.Variable("tenant", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("scopes", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy expression: %w", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy program: %w", err)
	}

	return &policyEvaluator{
		expression: expression,
		program:    program,
	}, nil
}

// evaluate runs the policy for the identity and request. Returns
// whether the policy permits the request.
func (e *policyEvaluator) evaluate(identity *core.Identity, req *core.Request) (bool, error) {
	subject := ""
	tenant := ""
	var roles, scopes []string
	if identity != nil {
		subject = identity.Subject
		tenant = identity.TenantID
		roles = identity.Roles
		scopes = identity.Scopes
	}
	if roles == nil {
		roles = []string{}
	}
	if scopes == nil {
		scopes = []string{}
	}

	out, _, err := e.program.Eval(map[string]any{
		"subject": subject,
		"tenant":  tenant,
		"method":  req.Method,
		"path":    req.Path,
		"roles":   roles,
		"scopes":  scopes,
	})
	if err != nil {
		return false, fmt.Errorf("policy evaluation failed: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy expression returned %T, want bool", out.Value())
	}
	return allowed, nil
}
