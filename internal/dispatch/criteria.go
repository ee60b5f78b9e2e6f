package dispatch

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dolphie-go/dolphie/internal/sample"
)

// KillCriteria evaluates a boolean predicate over a processlist thread,
// compiled with expr-lang/expr the way the teacher's rules engine compiles
// diagnosis conditions (internal/diagnosis/rules/engine.go): build an env map
// from the struct's fields, compile once, run per candidate.
//
// Expression fields available: user, host, age (TimeSeconds), query,
// include_sleeping is handled separately since it is a boolean flag rather
// than a predicate term.
type KillCriteria struct {
	Expression      string
	IncludeSleeping bool
}

// Compile validates the expression against the Thread env shape, returning a
// reusable matcher. Compilation errors surface immediately rather than on
// the first candidate, since an invalid kill predicate should never silently
// match nothing.
func (c KillCriteria) Compile() (*CompiledCriteria, error) {
	env := threadEnv(sample.Thread{})
	program, err := expr.Compile(c.Expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile kill criteria: %w", err)
	}
	return &CompiledCriteria{program: program, includeSleeping: c.IncludeSleeping}, nil
}

// CompiledCriteria is a validated, ready-to-run kill predicate.
type CompiledCriteria struct {
	program         *vm.Program
	includeSleeping bool
}

// Matches reports whether t satisfies the compiled predicate, applying the
// include-sleeping flag first: a Sleep-command thread is excluded unless
// explicitly opted in, regardless of what the expression itself says.
func (c *CompiledCriteria) Matches(t sample.Thread) (bool, error) {
	if !c.includeSleeping && t.Command == "Sleep" {
		return false, nil
	}
	out, err := expr.Run(c.program, threadEnv(t))
	if err != nil {
		return false, fmt.Errorf("evaluate kill criteria: %w", err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("kill criteria did not evaluate to bool: %T", out)
	}
	return matched, nil
}

func threadEnv(t sample.Thread) map[string]interface{} {
	return map[string]interface{}{
		"user":     t.User,
		"host":     t.Host,
		"db":       t.DB,
		"command":  t.Command,
		"state":    t.State,
		"age":      t.TimeSeconds,
		"query":    t.Query,
	}
}

// FilterCandidates returns the subset of threads matching a compiled kill
// criteria, the set the Tab Runtime then issues KILL against.
func FilterCandidates(c *CompiledCriteria, threads []sample.Thread) ([]sample.Thread, error) {
	out := make([]sample.Thread, 0, len(threads))
	for _, t := range threads {
		ok, err := c.Matches(t)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}
