package sweep

import (
	"context"
	"fmt"
	"sort"

	"github.com/KarDB/QuPyt/qupyt/failure"
)

// A Setter applies one parameter value to one channel of a device.
type Setter interface {
	Set(ctx context.Context, parameter, channel string, value float64) error
}

// Apply pushes snap to the devices in setters. Devices, parameters and
// channels are visited in sorted order, and Apply stops at the first error.
func Apply(ctx context.Context, snap Snapshot, setters map[string]Setter) error {
	for _, dev := range sortedKeys(snap) {
		s, ok := setters[dev]
		if !ok {
			return failure.New(failure.Specification, "apply sweep", "no device %q to apply sweep values to", dev)
		}
		params := snap[dev]
		names := make([]string, 0, len(params))
		for p := range params {
			names = append(names, p)
		}
		sort.Strings(names)
		for _, p := range names {
			channels := make([]string, 0, len(params[p]))
			for ch := range params[p] {
				channels = append(channels, ch)
			}
			sort.Strings(channels)
			for _, ch := range channels {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := s.Set(ctx, p, ch, params[p][ch]); err != nil {
					return fmt.Errorf("setting %s of %q channel %s: %w", p, dev, ch, err)
				}
			}
		}
	}
	return nil
}

func sortedKeys(snap Snapshot) []string {
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
