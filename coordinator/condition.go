package coordinator

import (
	"fmt"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/milk9111/stagesync/phase"
)

const inlineResultVar = "__result"

// conditionModules are the tengo stdlib modules a condition may import.
// Conditions are predicates, so nothing that reaches the filesystem or
// processes is offered.
var conditionModules = []string{"math", "text", "times"}

// Condition is a compiled tengo predicate over the requested phase's
// metadata. Scripts see mood, intensity, tags, entity, phase and a has_tag
// helper. An inline expression is its own result; a script file must assign
// a global named result.
type Condition struct {
	source   string
	resultOf string
	compiled *tengo.Compiled
}

func CompileExpression(expr string) (*Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	src := inlineResultVar + " := (" + expr + ")"
	return compileCondition(expr, src, inlineResultVar)
}

func CompileScript(name string, src []byte) (*Condition, error) {
	return compileCondition(name, string(src), "result")
}

func compileCondition(label, src, resultOf string) (*Condition, error) {
	script := tengo.NewScript([]byte(src))
	_ = script.Add("mood", "")
	_ = script.Add("intensity", 0)
	_ = script.Add("tags", []interface{}{})
	_ = script.Add("entity", "")
	_ = script.Add("phase", "")
	_ = script.Add("has_tag", &tengo.UserFunction{Name: "has_tag", Value: noTag})
	script.SetImports(stdlib.GetModuleMap(conditionModules...))

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: condition %q: %v", ErrInvalidRule, label, err)
	}
	return &Condition{source: label, resultOf: resultOf, compiled: compiled}, nil
}

func noTag(args ...tengo.Object) (tengo.Object, error) {
	return tengo.FalseValue, nil
}

func (c *Condition) String() string {
	if c == nil {
		return "<always>"
	}
	return c.source
}

// Eval runs the condition against p. A nil condition always holds.
func (c *Condition) Eval(p *phase.Phase) (bool, error) {
	if c == nil {
		return true, nil
	}
	if p == nil {
		return false, nil
	}

	tags := make([]interface{}, 0, len(p.Meta.Tags))
	for _, t := range p.Meta.Tags {
		tags = append(tags, t)
	}
	hasTag := &tengo.UserFunction{Name: "has_tag", Value: func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 1 {
			return nil, tengo.ErrWrongNumArguments
		}
		s, ok := tengo.ToString(args[0])
		if ok && p.HasTag(s) {
			return tengo.TrueValue, nil
		}
		return tengo.FalseValue, nil
	}}

	vals := map[string]interface{}{
		"mood":      string(p.Meta.Mood),
		"intensity": p.Meta.Intensity,
		"tags":      tags,
		"entity":    p.EntityID,
		"phase":     p.ID,
	}
	for name, v := range vals {
		if err := c.compiled.Set(name, v); err != nil {
			return false, fmt.Errorf("coordinator: condition %q: set %s: %w", c.source, name, err)
		}
	}
	if err := c.compiled.Set("has_tag", hasTag); err != nil {
		return false, fmt.Errorf("coordinator: condition %q: set has_tag: %w", c.source, err)
	}
	if err := c.compiled.Run(); err != nil {
		return false, fmt.Errorf("coordinator: condition %q: %w", c.source, err)
	}
	return c.compiled.Get(c.resultOf).Bool(), nil
}
