package pulseblaster

import (
	"math"
	"sort"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/KarDB/QuPyt/qupyt/sequence"
)

// An Event is a rising or falling edge on one output bit.
type Event struct {
	Time    float64
	Channel string
	Bit     uint
	Up      bool
}

// A Segment holds the output bits for Duration microseconds.
type Segment struct {
	Flags    uint32
	Duration float64
}

// BuildTimeline flattens every pulse of block into an up and a down edge and
// sorts the edges by time. Edges at equal times keep channel order, then pulse
// order. Times are snapped to the compiler's time resolution.
func (c *Compiler) BuildTimeline(block sequence.Block, channels sequence.ChannelMap) ([]Event, error) {
	const op = "build timeline"
	var events []Event
	for _, ch := range block.Channels {
		idx, err := channels.Lookup(ch.Name)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= ShortPulseShift {
			return nil, failure.New(failure.Specification, op,
				"channel %q maps to bit %d, want a bit in [0, %d)", ch.Name, idx, ShortPulseShift)
		}
		for _, p := range ch.Pulses {
			if !p.IsBinary() {
				return nil, failure.New(failure.Specification, op,
					"pulse %q on channel %q has amplitude %v, frequency %v and phase %v; only unit-amplitude pulses without carrier can be played",
					p.Name, ch.Name, p.Amplitude, p.Frequency, p.Phase)
			}
			bit := uint(idx)
			events = append(events,
				Event{Time: c.snap(p.Start), Channel: ch.Name, Bit: bit, Up: true},
				Event{Time: c.snap(p.End()), Channel: ch.Name, Bit: bit, Up: false},
			)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })
	return events, nil
}

func (c *Compiler) snap(t float64) float64 {
	res := c.opts.TimeResolution
	return math.Round(t/res) * res
}

// DeriveDurations returns the gaps between consecutive events. For a capped
// total a trailing segment up to total is added unless the last event already
// lies there.
func (c *Compiler) DeriveDurations(events []Event, total sequence.Duration) ([]float64, error) {
	const op = "derive durations"
	eps := c.opts.TimeResolution / 2
	if len(events) == 0 {
		if total.Uncapped {
			return nil, nil
		}
		return []float64{total.Micros}, nil
	}
	durations := make([]float64, 0, len(events))
	for i := 1; i < len(events); i++ {
		durations = append(durations, events[i].Time-events[i-1].Time)
	}
	if total.Uncapped {
		return durations, nil
	}
	end := c.snap(total.Micros)
	last := events[len(events)-1].Time
	switch {
	case last > end+eps:
		return nil, failure.New(failure.Specification, op,
			"edge of channel %q at %vµs lies after the total duration %vµs", events[len(events)-1].Channel, last, total.Micros)
	case last < end-eps:
		durations = append(durations, end-last)
	}
	return durations, nil
}

// ComputeBitmasks replays events, setting and clearing their bits, and pairs
// the state after event i with durations[i]. If the first event is not at
// zero, an all-low segment covering the lead-in is prepended.
func ComputeBitmasks(events []Event, durations []float64) []Segment {
	if len(events) == 0 {
		segs := make([]Segment, 0, len(durations))
		for _, d := range durations {
			segs = append(segs, Segment{Duration: d})
		}
		return segs
	}
	segs := make([]Segment, 0, len(durations)+1)
	if t0 := events[0].Time; t0 != 0 {
		segs = append(segs, Segment{Flags: 0, Duration: t0})
	}
	var state int64
	for i, e := range events {
		if e.Up {
			state += 1 << e.Bit
		} else {
			state -= 1 << e.Bit
		}
		if i < len(durations) {
			segs = append(segs, Segment{Flags: uint32(state), Duration: durations[i]})
		}
	}
	return segs
}

// PruneZeroLength drops segments that last no time at all.
func PruneZeroLength(segs []Segment) []Segment {
	r := segs[:0:0]
	for _, s := range segs {
		if s.Duration != 0 {
			r = append(r, s)
		}
	}
	return r
}
