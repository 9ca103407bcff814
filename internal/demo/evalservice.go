// Package demo provides EvalService, a target object meant to be attached to
// an rpc.Peer: a small CEL (Common Expression Language) expression evaluator
// reachable as a set of RPC methods, exercising the registry/binder/
// serializer pipeline against a real third-party library end to end.
package demo

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// EvalService evaluates CEL expressions over an optional set of named
// variables. Its CEL environment is built once, the way
// stefanvanburen-cells's LSP server builds one cel.Env per server instance
// rather than per request. Variables are left undeclared deliberately: the
// set of variables a caller supplies varies per call, so this only parses
// (never type-checks) before evaluating, the same tradeoff any dynamically
// typed CEL host takes when it can't know its variable set ahead of time.
type EvalService struct {
	env *cel.Env
}

// NewEvalService constructs an EvalService.
func NewEvalService() (*EvalService, error) {
	env, err := cel.NewEnv(cel.EnableMacroCallTracking())
	if err != nil {
		return nil, fmt.Errorf("demo: failed to create CEL environment: %w", err)
	}
	return &EvalService{env: env}, nil
}

// Eval evaluates expression with no variables bound. It is the zero-arity
// (besides the expression itself) overload exposed under the name "Eval" —
// its existence as a physical method is why EvalAsync's own alias creation
// skips "Eval" (see rpc.newRegistry's aliasing rule).
func (s *EvalService) Eval(expression string) (any, error) {
	return s.evalWithVars(expression, nil)
}

// EvalAsync evaluates expression against the given named variables. Despite
// the Async suffix, it runs synchronously like every other target method in
// this package — the suffix exists purely to exercise name-alias
// resolution. Reachable under "EvalAsync" only: a physical "Eval" method
// already owns the bare name, so no "Eval" alias for this one is created.
func (s *EvalService) EvalAsync(ctx context.Context, expression string, vars map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.evalWithVars(expression, vars)
}

func (s *EvalService) evalWithVars(expression string, vars map[string]any) (any, error) {
	parsed, issues := s.env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("demo: parse error: %w", issues.Err())
	}

	program, err := s.env.Program(parsed)
	if err != nil {
		return nil, fmt.Errorf("demo: failed to plan program: %w", err)
	}

	activation := map[string]any{}
	for k, v := range vars {
		activation[k] = v
	}

	out, _, err := program.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("demo: evaluation error: %w", err)
	}
	return out.Value(), nil
}

// CompileAsync reports whether expression parses as a valid CEL expression,
// without evaluating it. No physical "Compile" method exists on
// EvalService, so the registry's Async-suffix rule additionally registers
// this under the bare name "Compile".
func (s *EvalService) CompileAsync(ctx context.Context, expression string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, issues := s.env.Parse(expression)
	return issues == nil || issues.Err() == nil, nil
}
