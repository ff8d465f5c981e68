// Package pulseblaster compiles pulse sequences into instruction lists for a
// TTL pulse generator that holds a bitmask of outputs for each instruction.
package pulseblaster

import (
	"fmt"
	"log"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/KarDB/QuPyt/qupyt/sequence"
)

// Options configures a Compiler.
type Options struct {
	// ClockMHz is the core clock of the board.
	ClockMHz float64
	// MinInstructionCycles is the shortest instruction, in clock periods.
	MinInstructionCycles int
	// TimeResolution is the grid, in µs, edge times are snapped to.
	TimeResolution float64
	Logger         *log.Logger
}

// DefaultOptions are the settings used for zero-valued fields.
var DefaultOptions = Options{
	ClockMHz:             500,
	MinInstructionCycles: 5,
	TimeResolution:       1e-6,
}

// A Compiler turns sequence specs into pulse programs. It is not safe for
// concurrent use.
type Compiler struct {
	opts     Options
	log      *log.Logger
	warnings int
}

// NewCompiler returns a Compiler configured by opts.
func NewCompiler(opts Options) (*Compiler, error) {
	if opts.ClockMHz == 0 {
		opts.ClockMHz = DefaultOptions.ClockMHz
	}
	if opts.MinInstructionCycles == 0 {
		opts.MinInstructionCycles = DefaultOptions.MinInstructionCycles
	}
	if opts.TimeResolution == 0 {
		opts.TimeResolution = DefaultOptions.TimeResolution
	}
	if opts.ClockMHz < 0 {
		return nil, fmt.Errorf("invalid clock frequency %vMHz", opts.ClockMHz)
	}
	if opts.MinInstructionCycles < 0 {
		return nil, fmt.Errorf("invalid minimum instruction length %d", opts.MinInstructionCycles)
	}
	if opts.TimeResolution < 0 {
		return nil, fmt.Errorf("invalid time resolution %v", opts.TimeResolution)
	}
	l := opts.Logger
	if l == nil {
		l = log.Default()
	}
	return &Compiler{opts: opts, log: l}, nil
}

// ClockPeriod returns the board's clock period in µs.
func (c *Compiler) ClockPeriod() float64 {
	return 1 / c.opts.ClockMHz
}

// MinInstructionTime returns the shortest instruction duration in µs.
func (c *Compiler) MinInstructionTime() float64 {
	return float64(c.opts.MinInstructionCycles) * c.ClockPeriod()
}

// Warnings returns the number of short pulses that had to be rounded.
func (c *Compiler) Warnings() int {
	return c.warnings
}

// CompileBlock returns the non-empty output segments of block.
func (c *Compiler) CompileBlock(block sequence.Block, channels sequence.ChannelMap, total sequence.Duration) ([]Segment, error) {
	events, err := c.BuildTimeline(block, channels)
	if err != nil {
		return nil, err
	}
	durations, err := c.DeriveDurations(events, total)
	if err != nil {
		return nil, err
	}
	return PruneZeroLength(ComputeBitmasks(events, durations)), nil
}

// Compile compiles every distinct block of spec once, then lays the blocks out
// in playback order. The last instruction branches back to the first, and a
// STOP follows.
func (c *Compiler) Compile(spec *sequence.Spec, channels sequence.ChannelMap) (*Program, error) {
	const op = "compile pulseblaster"
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	c.warnings = 0
	blocks := make(map[string][]Segment)
	for _, name := range spec.UniqueBlocks() {
		blk, _ := spec.Block(name)
		segs, err := c.CompileBlock(blk, channels, spec.TotalDuration)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", name, err)
		}
		for i, s := range segs {
			if segs[i], err = c.EncodeShortPulse(s); err != nil {
				return nil, fmt.Errorf("block %q: %w", name, err)
			}
		}
		blocks[name] = segs
	}

	p := &Program{}
	for i, name := range spec.Order {
		for r := 0; r < spec.Repeats[i]; r++ {
			for _, s := range blocks[name] {
				p.Instructions = append(p.Instructions, Instruction{
					Flags:    s.Flags,
					Op:       Continue,
					Duration: s.Duration,
				})
			}
		}
	}
	if len(p.Instructions) == 0 {
		return nil, failure.New(failure.Specification, op, "sequence produces no instructions")
	}
	last := &p.Instructions[len(p.Instructions)-1]
	last.Op = Branch
	last.Data = 0
	p.Instructions = append(p.Instructions, Instruction{
		Flags:    0,
		Op:       Stop,
		Duration: c.MinInstructionTime(),
	})
	c.log.Printf("compiled %d pulse program instructions with %d short-pulse warnings", len(p.Instructions), c.warnings)
	return p, nil
}
