package sequence

import (
	"fmt"
	"sort"

	"github.com/KarDB/QuPyt/qupyt/failure"
)

// overlapSlack absorbs floating-point noise when comparing the end of one
// pulse against the start of the next (µs).
const overlapSlack = 1e-9

// A ChannelMap maps logical channel names, e.g. "LASER" or "MW_I", to the
// physical channel or bit index of the target device.
type ChannelMap map[string]int

// Lookup returns the index mapped to name.
func (m ChannelMap) Lookup(name string) (int, error) {
	idx, ok := m[name]
	if !ok {
		return 0, failure.New(failure.Specification, "lookup channel", "unknown channel %q (known: %v)", name, m.Names())
	}
	return idx, nil
}

// Names returns the mapped channel names, sorted.
func (m ChannelMap) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (b Block) validate() error {
	seen := make(map[string]bool, len(b.Channels))
	for _, ch := range b.Channels {
		if seen[ch.Name] {
			return fmt.Errorf("block %q: duplicate channel %q", b.Name, ch.Name)
		}
		seen[ch.Name] = true
		for _, p := range ch.Pulses {
			if p.Start < 0 {
				return fmt.Errorf("block %q channel %q: pulse %q starts at negative time %v", b.Name, ch.Name, p.Name, p.Start)
			}
			if p.Duration < 0 {
				return fmt.Errorf("block %q channel %q: pulse %q has negative duration %v", b.Name, ch.Name, p.Name, p.Duration)
			}
		}
		// Documents key pulses by name, so list order need not be time order.
		byStart := append([]Pulse(nil), ch.Pulses...)
		sort.SliceStable(byStart, func(i, j int) bool { return byStart[i].Start < byStart[j].Start })
		for i := 1; i < len(byStart); i++ {
			prev, p := byStart[i-1], byStart[i]
			if prev.End() > p.Start+overlapSlack {
				return fmt.Errorf("block %q channel %q: pulse %q [%v, %v) overlaps pulse %q starting at %v",
					b.Name, ch.Name, prev.Name, prev.Start, prev.End(), p.Name, p.Start)
			}
		}
	}
	return nil
}
