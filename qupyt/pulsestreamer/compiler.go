// Package pulsestreamer compiles pulse sequences into run-length patterns for
// a digital pattern generator with a 1 ns grid. Only on/off pulses can be
// expressed.
package pulsestreamer

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/KarDB/QuPyt/qupyt/sequence"
)

// Options configures a Compiler.
type Options struct {
	// Outputs is the number of digital outputs.
	Outputs int
	Logger  *log.Logger
}

// DefaultOptions are the settings used for zero-valued fields.
var DefaultOptions = Options{
	Outputs: 8,
}

// gridSlack absorbs floating point error when converting µs to ns.
const gridSlack = 1e-6

// A Compiler turns sequence specs into patterns. It is not safe for concurrent
// use.
type Compiler struct {
	opts     Options
	log      *log.Logger
	warnings int
}

// NewCompiler returns a Compiler configured by opts.
func NewCompiler(opts Options) (*Compiler, error) {
	if opts.Outputs == 0 {
		opts.Outputs = DefaultOptions.Outputs
	}
	if opts.Outputs < 0 {
		return nil, fmt.Errorf("invalid output count %d", opts.Outputs)
	}
	l := opts.Logger
	if l == nil {
		l = log.Default()
	}
	return &Compiler{opts: opts, log: l}, nil
}

// Warnings returns the number of times that had to be rounded to the grid.
func (c *Compiler) Warnings() int {
	return c.warnings
}

// Nanos converts us to whole nanoseconds, rounding and logging a warning when
// us is off the grid.
func (c *Compiler) Nanos(us float64) int64 {
	ns := us * 1e3
	r := math.Round(ns)
	if math.Abs(ns-r) > gridSlack {
		c.warnings++
		c.log.Printf("warning: %vµs is not a whole number of nanoseconds, rounding to %dns", us, int64(r))
	}
	return int64(r)
}

// CompileBlock writes one pattern per channel of block: a low gap before each
// pulse, the pulse itself and, for capped sequences, a low tail up to total.
func (c *Compiler) CompileBlock(block sequence.Block, channels sequence.ChannelMap, total sequence.Duration) (*Block, error) {
	const op = "compile pulse streamer block"
	var totalNs int64
	if !total.Uncapped {
		totalNs = c.Nanos(total.Micros)
	}
	b := &Block{Name: block.Name, Patterns: make(map[int]Pattern, len(block.Channels)), Duration: totalNs}
	for _, ch := range block.Channels {
		out, err := channels.Lookup(ch.Name)
		if err != nil {
			return nil, err
		}
		if out < 0 || out >= c.opts.Outputs {
			return nil, failure.New(failure.Specification, op,
				"channel %q maps to output %d, outputs are 0-%d", ch.Name, out, c.opts.Outputs-1)
		}
		if _, dup := b.Patterns[out]; dup {
			return nil, failure.New(failure.Specification, op, "channel %q shares output %d with another channel", ch.Name, out)
		}
		pulses := append([]sequence.Pulse(nil), ch.Pulses...)
		sort.SliceStable(pulses, func(i, j int) bool { return pulses[i].Start < pulses[j].Start })

		var pat Pattern
		var pointer int64
		for _, p := range pulses {
			if !p.IsBinary() {
				return nil, failure.New(failure.Specification, op,
					"pulse %q on %q has amplitude %v, frequency %v, phase %v: only on/off pulses can be generated",
					p.Name, ch.Name, p.Amplitude, p.Frequency, p.Phase)
			}
			start, dur := c.Nanos(p.Start), c.Nanos(p.Duration)
			if start < pointer {
				return nil, failure.New(failure.Specification, op,
					"pulse %q on %q starts at %dns, before the previous pulse ends at %dns", p.Name, ch.Name, start, pointer)
			}
			if gap := start - pointer; gap > 0 {
				pat = append(pat, Run{Duration: gap})
			}
			if dur > 0 {
				pat = append(pat, Run{Duration: dur, High: true})
			}
			pointer = start + dur
		}
		if total.Uncapped {
			if pointer > b.Duration {
				b.Duration = pointer
			}
		} else {
			if pointer > totalNs {
				return nil, failure.New(failure.Specification, op,
					"channel %q runs to %dns, past the total duration of %dns", ch.Name, pointer, totalNs)
			}
			if tail := totalNs - pointer; tail > 0 {
				pat = append(pat, Run{Duration: tail})
			}
		}
		b.Patterns[out] = pat
	}
	return b, nil
}

// Compile compiles every distinct block of spec once and records the playback
// order.
func (c *Compiler) Compile(spec *sequence.Spec, channels sequence.ChannelMap) (*Program, error) {
	const op = "compile pulse streamer"
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	p := &Program{
		Blocks:  make(map[string]*Block),
		Order:   append([]string(nil), spec.Order...),
		Repeats: append([]int(nil), spec.Repeats...),
	}
	for _, name := range spec.UniqueBlocks() {
		blk, _ := spec.Block(name)
		b, err := c.CompileBlock(blk, channels, spec.TotalDuration)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", name, err)
		}
		p.Blocks[name] = b
	}
	if p.Duration() == 0 {
		return nil, failure.New(failure.Specification, op, "sequence has no duration")
	}
	c.log.Printf("compiled %d blocks into %dns of patterns on %d outputs", len(p.Blocks), p.Duration(), len(p.Outputs()))
	return p, nil
}
