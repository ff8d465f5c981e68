package sweep

import (
	"errors"
	"fmt"

	"github.com/KarDB/QuPyt/qupyt/failure"
)

var (
	// ErrNotBuilt is returned when advancing a Stepper with no tables.
	ErrNotBuilt = errors.New("sweep not built")
	// ErrExhausted is returned when advancing past the last step.
	ErrExhausted = errors.New("sweep exhausted")
)

// A State is the lifecycle position of a Stepper.
type State int

const (
	Uninitialized State = iota
	Ready
	Exhausted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// A Snapshot is the configuration of one step, indexed by device, parameter
// and channel.
type Snapshot map[string]map[string]map[string]float64

// A Stepper walks through a sweep one step at a time. It is driven by a
// single measurement loop and is not safe for concurrent use.
type Stepper struct {
	tables []Table
	steps  int
	cursor int
	state  State
}

// Build replaces the stepper's tables with those of devices and rewinds to
// the first step.
func (s *Stepper) Build(devices []Device, steps int) error {
	tables, err := Build(devices, steps)
	if err != nil {
		return err
	}
	s.tables = tables
	s.steps = steps
	s.cursor = 0
	s.state = Ready
	return nil
}

// Advance returns the configuration of the current step and moves to the
// next one.
func (s *Stepper) Advance() (Snapshot, error) {
	const op = "advance sweep"
	switch s.state {
	case Uninitialized:
		return nil, failure.Wrap(failure.Specification, op, ErrNotBuilt)
	case Exhausted:
		return nil, failure.Wrap(failure.Specification, op, ErrExhausted)
	}
	snap := make(Snapshot, len(s.tables))
	for _, t := range s.tables {
		dev := make(map[string]map[string]float64)
		for _, e := range t.Entries {
			if dev[e.Parameter] == nil {
				dev[e.Parameter] = make(map[string]float64)
			}
			dev[e.Parameter][e.Channel] = e.Values[s.cursor]
		}
		snap[t.Device] = dev
	}
	s.cursor++
	if s.cursor >= s.steps {
		s.state = Exhausted
	}
	return snap, nil
}

// State returns the stepper's lifecycle position.
func (s *Stepper) State() State {
	return s.state
}

// Step returns the index of the step the next Advance yields.
func (s *Stepper) Step() int {
	return s.cursor
}

// Steps returns the length of the sweep.
func (s *Stepper) Steps() int {
	return s.steps
}

// Release discards the tables, e.g. when the swept devices are closed.
func (s *Stepper) Release() {
	*s = Stepper{}
}
