// SPDX-License-Identifier: Apache-2.0

// Package celeval implements the CEL expression evaluator used to
// compute `x-lix-default` column defaults (spec §4.3). Compiled
// programs are cached process-wide keyed by expression string, behind a
// read/write lock (spec §5 "Shared resources").
package celeval

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opral/lix-sub005/internal/detfn"
)

// FunctionProvider supplies the two reserved deterministic functions
// `lix_uuid_v7()` and `lix_timestamp()` (spec §4.3).
type FunctionProvider interface {
	UUIDv7() (string, error)
	Timestamp() (string, error)
}

var _ FunctionProvider = (*detfn.Provider)(nil)

// Evaluator compiles and runs CEL expressions for column defaults.
type Evaluator struct {
	env *cel.Env

	mu      sync.RWMutex
	cache   map[string]cel.Program
	fns     FunctionProvider
}

// New builds an Evaluator bound to `fns` for the two reserved functions.
func New(fns FunctionProvider) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("entity", cel.MapType(cel.StringType, cel.DynType)),
		cel.Function("lix_uuid_v7",
			cel.Overload("lix_uuid_v7_string", []*cel.Type{}, cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return celErrorOrString(fns.UUIDv7())
				}),
			),
		),
		cel.Function("lix_timestamp",
			cel.Overload("lix_timestamp_string", []*cel.Type{}, cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return celErrorOrString(fns.Timestamp())
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CEL expression: %w", err)
	}

	return &Evaluator{env: env, cache: make(map[string]cel.Program), fns: fns}, nil
}

// Eval compiles (on cache miss) and runs `expr` against `entity`, the
// partially-constructed snapshot being defaulted (spec §4.2 step 5).
func (e *Evaluator) Eval(expr string, entity map[string]any) (any, error) {
	prg, err := e.compile(expr)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(map[string]any{"entity": entity})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	return out.Value(), nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expr]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to parse CEL expression: %w", issues.Err())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CEL expression: %w", err)
	}

	e.cache[expr] = prg
	return prg, nil
}

func celErrorOrString(s string, err error) ref.Val {
	if err != nil {
		return types.NewErr("%s", err)
	}
	return types.String(s)
}
