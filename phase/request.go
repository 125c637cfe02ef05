package phase

import (
	"fmt"
	"strings"
	"time"
)

// Timing says when a requested phase change should execute.
type Timing string

const (
	TimingImmediate   Timing = "immediate"
	TimingNextBeat    Timing = "next-beat"
	TimingNextMeasure Timing = "next-measure"
	TimingDeferred    Timing = "deferred"
)

// Priority orders requests that become due at the same instant.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityNormal, 0:
		return "normal"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Normalize maps the zero value to PriorityNormal.
func (p Priority) Normalize() Priority {
	if p < PriorityLow || p > PriorityHigh {
		return PriorityNormal
	}
	return p
}

func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "low":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("phase: unknown priority %q", s)
}

func ParseTiming(s string) (Timing, error) {
	switch t := Timing(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TimingImmediate, nil
	case TimingImmediate, TimingNextBeat, TimingNextMeasure, TimingDeferred:
		return t, nil
	}
	return "", fmt.Errorf("phase: unknown timing %q", s)
}

// Mode is how a coordination rule propagates a change to related entities.
type Mode string

const (
	ModeSynchronized  Mode = "synchronized"
	ModeResponsive    Mode = "responsive"
	ModeIndependent   Mode = "independent"
	ModeComplementary Mode = "complementary"
	ModeContrasting   Mode = "contrasting"
)

// ChangeRequest asks for one entity to move to a phase. It is consumed by the
// coordinator and discarded once scheduled.
type ChangeRequest struct {
	EntityID    string
	FromPhaseID string
	ToPhaseID   string
	Timing      Timing
	BeatAlign   bool
	Priority    Priority
	Mode        Mode
	// Delay is added to the resolved execution time; staggered group changes
	// set it per entity.
	Delay time.Duration
	// Queue waits for a running transition to finish instead of superseding it.
	Queue bool
	// Rule is the id of the coordination rule that derived this request, empty
	// for the caller's own request.
	Rule string
}

func (r ChangeRequest) String() string {
	s := fmt.Sprintf("%s:%s->%s %s", r.EntityID, r.FromPhaseID, r.ToPhaseID, r.Timing)
	if r.BeatAlign {
		s += " beat-aligned"
	}
	if r.Delay > 0 {
		s += " +" + r.Delay.String()
	}
	return s
}

// Synchronous reports whether the request runs inline instead of being queued.
func (r ChangeRequest) Synchronous() bool {
	return (r.Timing == "" || r.Timing == TimingImmediate) && !r.BeatAlign && r.Delay <= 0
}
