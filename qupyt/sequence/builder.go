package sequence

import (
	"fmt"
	"math"
)

// DefaultBlock is the block pulses are added to when no block is named.
const DefaultBlock = "block_0"

// A Builder assembles a Spec pulse by pulse, the way experiment-specific
// sequence generators (Rabi, ODMR, ...) describe them.
type Builder struct {
	total   Duration
	blocks  []Block
	index   map[string]int
	order   []string
	repeats []int
}

// NewBuilder returns a Builder for a sequence whose blocks last total.
func NewBuilder(total Duration) *Builder {
	return &Builder{total: total, index: make(map[string]int)}
}

// AddPulse adds a unit-amplitude pulse without carrier to channel in each of
// blocks (DefaultBlock if none are given).
func (b *Builder) AddPulse(channel string, start, duration float64, blocks ...string) {
	b.Add(channel, Pulse{Start: start, Duration: duration, Amplitude: 1}, blocks...)
}

// Add adds p to channel in each of blocks (DefaultBlock if none are given).
// Unnamed pulses are named pulse1, pulse2, ... per block and channel.
func (b *Builder) Add(channel string, p Pulse, blocks ...string) {
	if len(blocks) == 0 {
		blocks = []string{DefaultBlock}
	}
	for _, name := range blocks {
		blk := b.block(name)
		ci := -1
		for i, ch := range blk.Channels {
			if ch.Name == channel {
				ci = i
				break
			}
		}
		if ci < 0 {
			blk.Channels = append(blk.Channels, Channel{Name: channel})
			ci = len(blk.Channels) - 1
		}
		np := p
		if np.Name == "" {
			np.Name = fmt.Sprintf("pulse%d", len(blk.Channels[ci].Pulses)+1)
		}
		blk.Channels[ci].Pulses = append(blk.Channels[ci].Pulses, np)
	}
}

// CopyBlock defines block to as a copy of block from, leaving out the named
// channels. It is used for preparation blocks that share most pulses with a
// measurement block, e.g. polarisation without readout.
func (b *Builder) CopyBlock(from, to string, without ...string) error {
	i, ok := b.index[from]
	if !ok {
		return fmt.Errorf("copying undefined block %q", from)
	}
	skip := make(map[string]bool, len(without))
	for _, w := range without {
		skip[w] = true
	}
	dst := b.block(to)
	dst.Channels = nil
	for _, ch := range b.blocks[i].Channels {
		if skip[ch.Name] {
			continue
		}
		dst.Channels = append(dst.Channels, Channel{
			Name:   ch.Name,
			Pulses: append([]Pulse(nil), ch.Pulses...),
		})
	}
	return nil
}

// Sequencing sets the playback order and the repeat count of each entry.
func (b *Builder) Sequencing(order []string, repeats []int) {
	b.order = append([]string(nil), order...)
	b.repeats = append([]int(nil), repeats...)
}

// Build returns the validated Spec.
func (b *Builder) Build() (*Spec, error) {
	s := &Spec{
		TotalDuration: b.total,
		Order:         b.order,
		Repeats:       b.repeats,
		Blocks:        b.blocks,
	}
	s = s.Clone()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (b *Builder) block(name string) *Block {
	if i, ok := b.index[name]; ok {
		return &b.blocks[i]
	}
	b.index[name] = len(b.blocks)
	b.blocks = append(b.blocks, Block{Name: name})
	return &b.blocks[len(b.blocks)-1]
}

// A DecouplingKind selects a dynamical-decoupling pulse train.
type DecouplingKind int

const (
	XY8 DecouplingKind = iota
	CPMG
)

func (k DecouplingKind) String() string {
	switch k {
	case XY8:
		return "XY8"
	case CPMG:
		return "CPMG"
	}
	return fmt.Sprintf("DecouplingKind(%d)", int(k))
}

// ParseDecouplingKind converts a sequence type name into a DecouplingKind.
func ParseDecouplingKind(s string) (DecouplingKind, error) {
	switch s {
	case "XY8":
		return XY8, nil
	case "CPMG":
		return CPMG, nil
	}
	return 0, fmt.Errorf("decoupling sequence type %q not supported, options are XY8, CPMG", s)
}

// A Decoupling writes N repetitions of a dynamical-decoupling unit onto one
// channel. Delays are centre-to-centre spacings: delay[0] precedes the first
// pulse of each repetition and delay[k+1] follows pulse k.
type Decoupling struct {
	Channel    string
	N          int
	Pi         float64
	PiHalf     float64
	Tau        float64
	MixingFreq float64
	Blocks     []string

	delays     []float64
	durations  []float64
	amplitudes []float64
	phases     []float64
}

// Prepare fills in the pulse table for kind and returns the length of the
// resulting pulse train in µs.
func (d *Decoupling) Prepare(kind DecouplingKind) (float64, error) {
	switch kind {
	case XY8:
		d.delays = []float64{d.Tau}
		for i := 0; i < 7; i++ {
			d.delays = append(d.delays, 2*d.Tau)
		}
		d.delays = append(d.delays, d.Tau)
		d.durations = repeat(d.Pi, 8)
		d.amplitudes = repeat(1, 8)
		d.phases = []float64{0, math.Pi / 2, 0, math.Pi / 2, math.Pi / 2, 0, math.Pi / 2, 0}
	case CPMG:
		d.delays = []float64{d.Tau, d.Tau}
		d.durations = []float64{d.Pi}
		d.amplitudes = []float64{1}
		d.phases = []float64{0}
	default:
		return 0, fmt.Errorf("decoupling sequence type %v not supported", kind)
	}
	var sum float64
	for _, v := range d.delays {
		sum += v
	}
	return sum*float64(d.N) + d.PiHalf, nil
}

// Write adds the prepared pulse train to b starting at start and returns the
// time after the final delay.
func (d *Decoupling) Write(b *Builder, start float64) float64 {
	running := start
	for n := 0; n < d.N; n++ {
		running += d.delays[0]
		for k := range d.durations {
			b.Add(d.Channel, Pulse{
				Start:     running,
				Duration:  d.durations[k],
				Amplitude: d.amplitudes[k],
				Frequency: d.MixingFreq,
				Phase:     d.phases[k],
			}, d.Blocks...)
			running += d.delays[k+1]
		}
	}
	return running
}

func repeat(v float64, n int) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = v
	}
	return r
}
