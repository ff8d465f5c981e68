package pulseblaster

import (
	"math"

	"github.com/KarDB/QuPyt/qupyt/failure"
)

const (
	// ShortPulseShift is the lowest of the three flag bits that select the
	// short-pulse length. Output channels must map below it.
	ShortPulseShift = 21
	// MaxShortPulse is the longest short pulse, in clock periods, the flag
	// bits can request.
	MaxShortPulse = 5
)

// EncodeShortPulse rewrites a segment shorter than the minimum instruction
// time into the short-pulse form: the outputs stay high for k clock periods,
// where k is seg.Duration rounded to the nearest period (halves round down),
// while the instruction itself lasts MinInstructionTime.
func (c *Compiler) EncodeShortPulse(seg Segment) (Segment, error) {
	const op = "encode short pulse"
	minTime := c.MinInstructionTime()
	if seg.Duration <= 0 || seg.Duration >= minTime-c.opts.TimeResolution/2 {
		return seg, nil
	}
	if seg.Flags>>ShortPulseShift != 0 {
		return Segment{}, failure.New(failure.Specification, op, "flags %#x already use the short-pulse bits", seg.Flags)
	}
	periods := seg.Duration / c.ClockPeriod()
	k := int(math.Ceil(periods - 0.5 - 1e-6))
	if k < 1 {
		k = 1
	}
	if k > MaxShortPulse {
		return Segment{}, failure.New(failure.HardwareLimit, op,
			"%vµs needs %d clock periods, short pulses allow at most %d", seg.Duration, k, MaxShortPulse)
	}
	if math.Abs(periods-math.Round(periods)) > 1e-6 {
		c.warnings++
		c.log.Printf("warning: pulse duration of %vµs not possible, setting to %vµs", seg.Duration, float64(k)*c.ClockPeriod())
	}
	return Segment{
		Flags:    seg.Flags | uint32(k)<<ShortPulseShift,
		Duration: minTime,
	}, nil
}
