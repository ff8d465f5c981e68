// Package sequence provides the in-memory model of a pulse sequence: named
// blocks of per-channel pulses, plus the order in which blocks are played back.
package sequence

import (
	"reflect"
	"sort"
	"strconv"

	"github.com/KarDB/QuPyt/qupyt/failure"
)

// A Pulse is a single pulse on one channel. Times are in microseconds,
// frequency in Hz and phase in radians.
type Pulse struct {
	Name      string
	Start     float64
	Duration  float64
	Amplitude float64
	Frequency float64
	Phase     float64
}

// End returns the time at which p stops.
func (p Pulse) End() float64 {
	return p.Start + p.Duration
}

// IsBinary reports whether p is a plain on/off pulse, i.e. unit amplitude with
// no carrier.
func (p Pulse) IsBinary() bool {
	return p.Amplitude == 1 && p.Frequency == 0 && p.Phase == 0
}

// A Channel holds the ordered pulses on one logical output line.
type Channel struct {
	Name   string
	Pulses []Pulse
}

// A Block is a named, reusable group of per-channel pulses.
type Block struct {
	Name     string
	Channels []Channel
}

// Channel returns the channel with the given name.
func (b Block) Channel(name string) (Channel, bool) {
	for _, c := range b.Channels {
		if c.Name == name {
			return c, true
		}
	}
	return Channel{}, false
}

// A Duration bounds the length of every block. An Uncapped duration declares
// that the sequence is not time-capped; only the PulseBlaster target accepts
// it.
type Duration struct {
	Micros   float64
	Uncapped bool
}

// Capped returns a Duration of us microseconds.
func Capped(us float64) Duration {
	return Duration{Micros: us}
}

// Uncapped returns the "no hard time cap" sentinel.
func Uncapped() Duration {
	return Duration{Uncapped: true}
}

// A Spec is a complete pulse sequence.
type Spec struct {
	TotalDuration Duration
	// Order lists block names in playback order; names may repeat.
	Order []string
	// Repeats is zipped positionally with Order.
	Repeats []int
	Blocks  []Block
}

// Block returns the block with the given name.
func (s *Spec) Block(name string) (Block, bool) {
	for _, b := range s.Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return Block{}, false
}

// UniqueBlocks returns the distinct block names referenced by Order, sorted.
func (s *Spec) UniqueBlocks() []string {
	seen := make(map[string]bool, len(s.Order))
	var names []string
	for _, n := range s.Order {
		if seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether s and other describe the same sequence.
func (s *Spec) Equal(other *Spec) bool {
	if s == nil || other == nil {
		return s == other
	}
	return reflect.DeepEqual(s.normalized(), other.normalized())
}

// normalized returns a copy of s in which empty and nil slices are
// indistinguishable, so that decoded and built specs compare equal.
func (s *Spec) normalized() *Spec {
	c := s.Clone()
	if len(c.Order) == 0 {
		c.Order = nil
	}
	if len(c.Repeats) == 0 {
		c.Repeats = nil
	}
	if len(c.Blocks) == 0 {
		c.Blocks = nil
	}
	for i := range c.Blocks {
		if len(c.Blocks[i].Channels) == 0 {
			c.Blocks[i].Channels = nil
		}
		for j := range c.Blocks[i].Channels {
			pulses := c.Blocks[i].Channels[j].Pulses
			if len(pulses) == 0 {
				c.Blocks[i].Channels[j].Pulses = nil
			}
			for k := range pulses {
				if pulses[k].Name == "" {
					pulses[k].Name = "pulse" + strconv.Itoa(k+1)
				}
			}
		}
	}
	if c.TotalDuration.Uncapped {
		c.TotalDuration.Micros = 0
	}
	return c
}

// Clone returns a deep copy of s.
func (s *Spec) Clone() *Spec {
	c := &Spec{
		TotalDuration: s.TotalDuration,
		Order:         append([]string(nil), s.Order...),
		Repeats:       append([]int(nil), s.Repeats...),
		Blocks:        make([]Block, len(s.Blocks)),
	}
	for i, b := range s.Blocks {
		nb := Block{Name: b.Name, Channels: make([]Channel, len(b.Channels))}
		for j, ch := range b.Channels {
			nb.Channels[j] = Channel{
				Name:   ch.Name,
				Pulses: append([]Pulse(nil), ch.Pulses...),
			}
		}
		c.Blocks[i] = nb
	}
	return c
}

// Validate checks the structural invariants of s. Violations are caller bugs
// and are reported, never repaired.
func (s *Spec) Validate() error {
	const op = "validate sequence"
	if len(s.Order) != len(s.Repeats) {
		return failure.New(failure.Specification, op,
			"sequencing_order has %d entries but sequencing_repeats has %d", len(s.Order), len(s.Repeats))
	}
	if !s.TotalDuration.Uncapped && s.TotalDuration.Micros <= 0 {
		return failure.New(failure.Specification, op, "total duration must be positive, got %v", s.TotalDuration.Micros)
	}
	for i, r := range s.Repeats {
		if r < 0 {
			return failure.New(failure.Specification, op, "negative repeat count %d for block %q", r, s.Order[i])
		}
	}
	names := make(map[string]bool, len(s.Blocks))
	for _, b := range s.Blocks {
		if names[b.Name] {
			return failure.New(failure.Specification, op, "duplicate block %q", b.Name)
		}
		names[b.Name] = true
		if err := b.validate(); err != nil {
			return failure.Wrap(failure.Specification, op, err)
		}
	}
	for _, n := range s.Order {
		if !names[n] {
			return failure.New(failure.Specification, op, "sequencing_order references undefined block %q", n)
		}
	}
	return nil
}
