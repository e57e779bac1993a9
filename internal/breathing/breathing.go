// Package breathing implements the cyclic breathing-phase countdown.
package breathing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Phase is one step of a breathing cycle.
type Phase string

const (
	Inhale Phase = "inhale"
	Hold   Phase = "hold"
	Exhale Phase = "exhale"
	Pause  Phase = "pause"
)

var phaseOrder = [4]Phase{Inhale, Hold, Exhale, Pause}

// ErrEmptyPattern is returned for a pattern with no positive phase.
var ErrEmptyPattern = errors.New("breathing pattern has no positive phase")

// Pattern is a named timing template: inhale, hold, exhale, pause seconds.
type Pattern struct {
	Name      string `json:"name" yaml:"name"`
	Durations [4]int `json:"durations" yaml:"durations"`
}

// DefaultPattern is box breathing.
const DefaultPattern = "4-4-4-4"

var patterns = map[string]Pattern{
	"4-4-4-4": {Name: "4-4-4-4", Durations: [4]int{4, 4, 4, 4}},
	"4-7-8":   {Name: "4-7-8", Durations: [4]int{4, 7, 8, 0}},
	"slow":    {Name: "slow", Durations: [4]int{5, 2, 6, 2}},
}

// Lookup returns the named pattern, falling back to box breathing.
func Lookup(name string) Pattern {
	if p, ok := patterns[name]; ok {
		return p
	}
	return patterns[DefaultPattern]
}

// Patterns returns every named pattern sorted by name.
func Patterns() []Pattern {
	out := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PatternFor picks a pattern from a quick-action description.
func PatternFor(description string) Pattern {
	switch {
	case strings.Contains(description, "4-7-8"):
		return patterns["4-7-8"]
	case strings.Contains(description, "Slow"):
		return patterns["slow"]
	default:
		return patterns[DefaultPattern]
	}
}

type step struct {
	phase    Phase
	duration int
}

// Machine is the breathing countdown as an immutable value. Transitions
// return a new Machine.
type Machine struct {
	steps []step
	index int
	count int
}

// NewMachine builds a machine for p, skipping zero-duration phases. The
// machine starts on the first positive phase with its full count.
func NewMachine(p Pattern) (Machine, error) {
	var steps []step
	for i, d := range p.Durations {
		if d < 0 {
			return Machine{}, fmt.Errorf("breathing pattern %q: negative %s duration", p.Name, phaseOrder[i])
		}
		if d > 0 {
			steps = append(steps, step{phase: phaseOrder[i], duration: d})
		}
	}
	if len(steps) == 0 {
		return Machine{}, ErrEmptyPattern
	}
	return Machine{steps: steps, count: steps[0].duration}, nil
}

// Start rewinds to the first positive phase with its full count.
func (m Machine) Start() Machine {
	m.index = 0
	m.count = m.steps[0].duration
	return m
}

// Display is the (phase, count) pair currently shown.
func (m Machine) Display() (Phase, int) {
	return m.steps[m.index].phase, m.count
}

// Tick advances one second. When the countdown reaches zero the machine
// moves to the next phase and resets the count to that phase's duration.
func (m Machine) Tick() Machine {
	m.count--
	if m.count <= 0 {
		m.index = (m.index + 1) % len(m.steps)
		m.count = m.steps[m.index].duration
	}
	return m
}

// CycleLength is the number of ticks in one full cycle.
func (m Machine) CycleLength() int {
	n := 0
	for _, s := range m.steps {
		n += s.duration
	}
	return n
}
