// Package awg compiles pulse sequences into sampled waveforms for an
// arbitrary waveform generator with per-output digital marker lines.
package awg

import (
	"fmt"
	"log"
	"math"

	"github.com/KarDB/QuPyt/qupyt/bitmap"
	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/KarDB/QuPyt/qupyt/sequence"
	"gonum.org/v1/gonum/mat"
)

const (
	// RowsPerOutput is the number of logical rows driven by one physical
	// output: one analog row followed by MarkersPerOutput marker rows.
	RowsPerOutput    = 5
	MarkersPerOutput = 4
)

// Options configures a Compiler.
type Options struct {
	// SampleRate in samples per second.
	SampleRate float64
	// Outputs is the number of physical AWG outputs.
	Outputs int
	// Tolerance is the relative deviation from an integer sample count above
	// which a time is reported as off-grid.
	Tolerance float64
	// StrictTiming turns off-grid times into failure.Timing errors.
	StrictTiming bool
	Logger       *log.Logger
}

// DefaultOptions are the settings used for zero-valued fields.
var DefaultOptions = Options{
	SampleRate: 5e9,
	Outputs:    2,
	Tolerance:  1e-6,
}

// A Compiler turns sequence specs into waveform bundles. It is not safe for
// concurrent use.
type Compiler struct {
	opts     Options
	log      *log.Logger
	warnings int
}

// NewCompiler returns a Compiler configured by opts.
func NewCompiler(opts Options) (*Compiler, error) {
	if opts.SampleRate == 0 {
		opts.SampleRate = DefaultOptions.SampleRate
	}
	if opts.Outputs == 0 {
		opts.Outputs = DefaultOptions.Outputs
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = DefaultOptions.Tolerance
	}
	if opts.SampleRate < 0 || math.IsInf(opts.SampleRate, 0) || math.IsNaN(opts.SampleRate) {
		return nil, fmt.Errorf("invalid sample rate %v", opts.SampleRate)
	}
	if opts.Outputs < 0 {
		return nil, fmt.Errorf("invalid output count %d", opts.Outputs)
	}
	if opts.Tolerance < 0 {
		return nil, fmt.Errorf("invalid timing tolerance %v", opts.Tolerance)
	}
	l := opts.Logger
	if l == nil {
		l = log.Default()
	}
	return &Compiler{opts: opts, log: l}, nil
}

// Rows returns the number of logical rows a block is rasterized into.
func (c *Compiler) Rows() int {
	return RowsPerOutput * c.opts.Outputs
}

// SampleRate returns the configured sample rate in samples per second.
func (c *Compiler) SampleRate() float64 {
	return c.opts.SampleRate
}

// Warnings returns the number of off-grid times seen so far.
func (c *Compiler) Warnings() int {
	return c.warnings
}

// QuantizeTime converts us microseconds to the nearest sample index. Times
// that are not within tolerance of the sample grid are logged and counted
// but still rounded.
func (c *Compiler) QuantizeTime(us float64) int {
	n, _ := c.quantize(us)
	return n
}

func (c *Compiler) quantize(us float64) (int, error) {
	x := c.opts.SampleRate * us * 1e-6
	r := math.Round(x)
	if math.Abs(x-r) > c.opts.Tolerance*math.Max(1, math.Abs(x)) {
		c.warnings++
		c.log.Printf("warning: %vµs is %v samples, not an integer multiple of the sample period; rounding to %v", us, x, r)
		if c.opts.StrictTiming {
			return int(r), failure.New(failure.Timing, "quantize",
				"%vµs is not an integer number of samples at %v S/s", us, c.opts.SampleRate)
		}
	}
	return int(r), nil
}

// Rasterize writes p into row of block. The written value is
// amplitude·cos(2π·frequency·t + phase) at t = i/SampleRate seconds, or the
// plain amplitude when frequency is zero. Earlier writes to the same samples
// are overwritten.
func (c *Compiler) Rasterize(block *mat.Dense, row int, p sequence.Pulse) error {
	const op = "rasterize"
	start, err := c.quantize(p.Start)
	if err != nil {
		return err
	}
	n, err := c.quantize(p.Duration)
	if err != nil {
		return err
	}
	rows, cols := block.Dims()
	if row < 0 || row >= rows {
		return failure.New(failure.Specification, op, "row %d outside [0, %d)", row, rows)
	}
	if start < 0 || n < 0 || start+n > cols {
		return failure.New(failure.HardwareLimit, op,
			"pulse %q covers samples [%d, %d), block has %d", p.Name, start, start+n, cols)
	}
	for i := start; i < start+n; i++ {
		v := p.Amplitude
		if p.Frequency != 0 {
			t := float64(i) / c.opts.SampleRate
			v *= math.Cos(2*math.Pi*p.Frequency*t + p.Phase)
		}
		block.Set(row, i, v)
	}
	return nil
}

// Compile rasterizes every distinct block of spec once and returns the
// resulting bundle. channels maps channel names to logical rows.
func (c *Compiler) Compile(spec *sequence.Spec, channels sequence.ChannelMap) (*Bundle, error) {
	const op = "compile awg"
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.TotalDuration.Uncapped {
		return nil, failure.New(failure.Specification, op, "AWG sequences require a capped total duration")
	}
	c.warnings = 0
	samples, err := c.quantize(spec.TotalDuration.Micros)
	if err != nil {
		return nil, err
	}
	if samples <= 0 {
		return nil, failure.New(failure.Specification, op,
			"total duration %vµs is shorter than one sample", spec.TotalDuration.Micros)
	}

	b := &Bundle{
		Waveforms:  make(map[string]*Waveform),
		Names:      spec.UniqueBlocks(),
		Order:      append([]string(nil), spec.Order...),
		Repeats:    append([]int(nil), spec.Repeats...),
		SampleRate: c.opts.SampleRate,
		Samples:    samples,
	}
	for _, name := range b.Names {
		blk, _ := spec.Block(name)
		raw, err := c.rasterizeBlock(blk, channels, samples)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", name, err)
		}
		w, err := c.reduce(name, raw)
		if err != nil {
			return nil, failure.Wrap(failure.Specification, op, fmt.Errorf("block %q: %w", name, err))
		}
		b.Waveforms[name] = w
	}
	b.Warnings = c.warnings
	b.Hash = b.contentHash()
	c.log.Printf("compiled %d waveforms of %d samples with %d timing warnings", len(b.Names), samples, c.warnings)
	return b, nil
}

func (c *Compiler) rasterizeBlock(blk sequence.Block, channels sequence.ChannelMap, samples int) (*mat.Dense, error) {
	raw := mat.NewDense(c.Rows(), samples, nil)
	for _, ch := range blk.Channels {
		row, err := channels.Lookup(ch.Name)
		if err != nil {
			return nil, err
		}
		if row < 0 || row >= c.Rows() {
			return nil, failure.New(failure.Specification, "map channel",
				"channel %q maps to row %d, but %d outputs only provide rows [0, %d)", ch.Name, row, c.opts.Outputs, c.Rows())
		}
		marker := row%RowsPerOutput != 0
		for _, p := range ch.Pulses {
			if marker && !p.IsBinary() {
				return nil, failure.New(failure.Specification, "map channel",
					"pulse %q on marker channel %q must have unit amplitude and no carrier", p.Name, ch.Name)
			}
			if err := c.Rasterize(raw, row, p); err != nil {
				return nil, err
			}
		}
	}
	return raw, nil
}

// reduce folds the RowsPerOutput rows of every output into an analog row and a
// packed marker row.
func (c *Compiler) reduce(name string, raw *mat.Dense) (*Waveform, error) {
	_, samples := raw.Dims()
	rows := mat.NewDense(2*c.opts.Outputs, samples, nil)
	for o := 0; o < c.opts.Outputs; o++ {
		base := RowsPerOutput * o
		rows.SetRow(2*o, raw.RawRowView(base))
		var markers [MarkersPerOutput]bitmap.Dense
		for k := range markers {
			d, err := bitmap.FromSamples(raw.RawRowView(base + 1 + k))
			if err != nil {
				return nil, fmt.Errorf("output %d marker %d: %w", o, k, err)
			}
			markers[k] = d
		}
		packed := PackMarkers(markers)
		mrow := rows.RawRowView(2*o + 1)
		for i, v := range packed {
			mrow[i] = float64(v)
		}
	}
	return &Waveform{Name: name, Rows: rows}, nil
}
