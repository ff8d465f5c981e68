// Package sweep generates the per-step device settings of a measurement whose
// signal sources change between steps, and walks through them one step at a
// time.
package sweep

import (
	"fmt"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"gonum.org/v1/gonum/floats"
)

// A Source produces the values one parameter takes over a sweep.
type Source interface {
	Values(steps int) ([]float64, error)
}

type linear struct {
	start, stop float64
}

// Linear returns a Source of evenly spaced values from start to stop,
// inclusive.
func Linear(start, stop float64) Source {
	return linear{start: start, stop: stop}
}

func (l linear) Values(steps int) ([]float64, error) {
	if steps < 1 {
		return nil, failure.New(failure.Specification, "sweep values", "need at least one step, got %d", steps)
	}
	if steps == 1 {
		return []float64{l.start}, nil
	}
	return floats.Span(make([]float64, steps), l.start, l.stop), nil
}

type list []float64

// List returns a Source that yields values as given. The list must hold
// exactly one value per step.
func List(values ...float64) Source {
	return list(append([]float64(nil), values...))
}

func (l list) Values(steps int) ([]float64, error) {
	if steps < 1 {
		return nil, failure.New(failure.Specification, "sweep values", "need at least one step, got %d", steps)
	}
	if len(l) != steps {
		return nil, failure.New(failure.Specification, "sweep values",
			"explicit sweep has %d values but the measurement has %d steps", len(l), steps)
	}
	return append([]float64(nil), l...), nil
}

// A Parameter is one swept setting of one device channel.
type Parameter struct {
	Name    string
	Channel string
	Source  Source
}

// A Device is a signal source whose parameters change between steps.
type Device struct {
	Name       string
	Type       string
	Address    string
	Parameters []Parameter
}

// An Entry holds the values of one parameter on one channel, indexed by step.
type Entry struct {
	Parameter string
	Channel   string
	Values    []float64
}

// A Table holds the sweep of every parameter of one device.
type Table struct {
	Device  string
	Entries []Entry
}

// Build evaluates every parameter source of devices for steps steps.
func Build(devices []Device, steps int) ([]Table, error) {
	tables := make([]Table, 0, len(devices))
	for _, d := range devices {
		t := Table{Device: d.Name}
		for _, p := range d.Parameters {
			if p.Source == nil {
				return nil, failure.New(failure.Specification, "build sweep",
					"device %q channel %s parameter %s has no values", d.Name, p.Channel, p.Name)
			}
			values, err := p.Source.Values(steps)
			if err != nil {
				return nil, fmt.Errorf("device %q channel %s parameter %s: %w", d.Name, p.Channel, p.Name, err)
			}
			t.Entries = append(t.Entries, Entry{Parameter: p.Name, Channel: p.Channel, Values: values})
		}
		tables = append(tables, t)
	}
	return tables, nil
}
