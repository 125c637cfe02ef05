package coordinator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/milk9111/stagesync/phase"
)

var ErrInvalidRule = errors.New("coordinator: invalid rule")

// Mapping selects how a rule picks the target entity's destination phase.
type Mapping string

const (
	MappingCustom       Mapping = "custom"
	MappingSynchronized Mapping = "synchronized"
	MappingAutomatic    Mapping = "automatic"
)

// Rule binds a driving entity to one or more target entities. It persists
// until removed.
type Rule struct {
	ID      string
	From    string
	To      []string
	Mode    phase.Mode
	Mapping Mapping
	// Custom maps the driving entity's destination phase id to the target's.
	Custom    map[string]string
	Condition *Condition
	// Priority overrides the driving request's priority when set.
	Priority phase.Priority
	Delay    time.Duration
	// Stagger offsets the i-th target by i*Stagger.
	Stagger time.Duration
}

// defaultMapping is used when a rule leaves Mapping empty.
func defaultMapping(m phase.Mode) Mapping {
	switch m {
	case phase.ModeComplementary, phase.ModeContrasting:
		return MappingAutomatic
	}
	return MappingSynchronized
}

func (r *Rule) normalize() {
	if r.Mode == "" {
		r.Mode = phase.ModeSynchronized
	}
	if r.Mapping == "" {
		r.Mapping = defaultMapping(r.Mode)
	}
}

func (r *Rule) validate(cat Catalog) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	switch r.Mode {
	case phase.ModeSynchronized, phase.ModeResponsive, phase.ModeIndependent, phase.ModeComplementary, phase.ModeContrasting:
	default:
		return fmt.Errorf("%w: %s: unknown mode %q", ErrInvalidRule, r.ID, r.Mode)
	}
	switch r.Mapping {
	case MappingCustom, MappingSynchronized, MappingAutomatic:
	default:
		return fmt.Errorf("%w: %s: unknown mapping %q", ErrInvalidRule, r.ID, r.Mapping)
	}
	if r.Delay < 0 || r.Stagger < 0 {
		return fmt.Errorf("%w: %s: negative delay", ErrInvalidRule, r.ID)
	}
	if !cat.HasEntity(r.From) {
		return fmt.Errorf("%w: %s: from %q: %w", ErrInvalidRule, r.ID, r.From, phase.ErrEntityNotFound)
	}
	if len(r.To) == 0 {
		return fmt.Errorf("%w: %s: no target entities", ErrInvalidRule, r.ID)
	}
	for _, to := range r.To {
		if to == r.From {
			return fmt.Errorf("%w: %s: %q targets itself", ErrInvalidRule, r.ID, to)
		}
		if !cat.HasEntity(to) {
			return fmt.Errorf("%w: %s: to %q: %w", ErrInvalidRule, r.ID, to, phase.ErrEntityNotFound)
		}
		if r.Mapping != MappingCustom {
			continue
		}
		for _, dst := range r.Custom {
			if _, ok := cat.Phase(to, dst); !ok {
				return fmt.Errorf("%w: %s: custom mapping to %s/%s: %w", ErrInvalidRule, r.ID, to, dst, phase.ErrPhaseNotFound)
			}
		}
	}
	if r.Mapping == MappingCustom && len(r.Custom) == 0 {
		return fmt.Errorf("%w: %s: custom mapping without entries", ErrInvalidRule, r.ID)
	}
	return nil
}

// RuleFromSpec compiles a rule read from a stage file. loadScript resolves
// condition_script paths.
func RuleFromSpec(rs phase.RuleSpec, loadScript func(name string) ([]byte, error)) (Rule, error) {
	r := Rule{
		ID:      rs.ID,
		From:    rs.From,
		To:      append([]string(nil), rs.To...),
		Mode:    phase.Mode(strings.ToLower(strings.TrimSpace(rs.Mode))),
		Mapping: Mapping(strings.ToLower(strings.TrimSpace(rs.Mapping))),
	}
	if len(rs.Custom) > 0 {
		r.Custom = make(map[string]string, len(rs.Custom))
		for k, v := range rs.Custom {
			r.Custom[k] = v
		}
	}

	prio, err := phase.ParsePriority(rs.Priority)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %s: %v", ErrInvalidRule, rs.ID, err)
	}
	if strings.TrimSpace(rs.Priority) != "" {
		r.Priority = prio
	}

	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{{rs.Delay, &r.Delay}, {rs.Stagger, &r.Stagger}} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %s: %v", ErrInvalidRule, rs.ID, err)
		}
		*d.dst = v
	}

	switch {
	case rs.Condition != "" && rs.ConditionScript != "":
		return Rule{}, fmt.Errorf("%w: %s: both condition and condition_script set", ErrInvalidRule, rs.ID)
	case rs.Condition != "":
		c, err := CompileExpression(rs.Condition)
		if err != nil {
			return Rule{}, err
		}
		r.Condition = c
	case rs.ConditionScript != "":
		if loadScript == nil {
			return Rule{}, fmt.Errorf("%w: %s: no script loader", ErrInvalidRule, rs.ID)
		}
		src, err := loadScript(rs.ConditionScript)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %s: %v", ErrInvalidRule, rs.ID, err)
		}
		c, err := CompileScript(rs.ConditionScript, src)
		if err != nil {
			return Rule{}, err
		}
		r.Condition = c
	}
	return r, nil
}
