package sequence

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"gopkg.in/yaml.v2"
)

const (
	keyTotalDuration = "total_duration"
	keyOrder         = "sequencing_order"
	keyRepeats       = "sequencing_repeats"

	// UncappedSentinel is written for uncapped total durations. "uncapped" is
	// accepted on input as well.
	UncappedSentinel = "ignore"
)

// ReadFile decodes the sequence document at path.
func ReadFile(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a sequence document: total_duration, sequencing_order,
// sequencing_repeats, and one entry per block mapping channel names to
// named pulses. Numeric fields may be given as numeric strings. The returned
// Spec is not validated.
func Decode(r io.Reader) (*Spec, error) {
	const op = "decode sequence"
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, failure.Wrap(failure.Specification, op, err)
	}

	s := &Spec{}
	var haveDuration, haveOrder, haveRepeats bool
	for _, item := range doc {
		key := fmt.Sprint(item.Key)
		switch key {
		case keyTotalDuration:
			d, err := decodeDuration(item.Value)
			if err != nil {
				return nil, failure.Wrap(failure.Specification, op, err)
			}
			s.TotalDuration = d
			haveDuration = true
		case keyOrder:
			order, err := decodeStrings(item.Value)
			if err != nil {
				return nil, failure.Wrap(failure.Specification, op, fmt.Errorf("%s: %w", keyOrder, err))
			}
			s.Order = order
			haveOrder = true
		case keyRepeats:
			repeats, err := decodeInts(item.Value)
			if err != nil {
				return nil, failure.Wrap(failure.Specification, op, fmt.Errorf("%s: %w", keyRepeats, err))
			}
			s.Repeats = repeats
			haveRepeats = true
		default:
			b, err := decodeBlock(key, item.Value)
			if err != nil {
				return nil, failure.Wrap(failure.Specification, op, err)
			}
			s.Blocks = append(s.Blocks, b)
		}
	}
	switch {
	case !haveDuration:
		return nil, failure.New(failure.Specification, op, "missing %s", keyTotalDuration)
	case !haveOrder:
		return nil, failure.New(failure.Specification, op, "missing %s", keyOrder)
	case !haveRepeats:
		return nil, failure.New(failure.Specification, op, "missing %s", keyRepeats)
	}
	return s, nil
}

func decodeDuration(v interface{}) (Duration, error) {
	if str, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(str)) {
		case UncappedSentinel, "uncapped":
			return Uncapped(), nil
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return Duration{}, fmt.Errorf("%s: %w", keyTotalDuration, err)
	}
	return Capped(f), nil
}

func decodeBlock(name string, v interface{}) (Block, error) {
	b := Block{Name: name}
	channels, ok := v.(yaml.MapSlice)
	if !ok {
		return Block{}, fmt.Errorf("block %q: expected a mapping of channels, got %T", name, v)
	}
	for _, chItem := range channels {
		ch := Channel{Name: fmt.Sprint(chItem.Key)}
		pulses, ok := chItem.Value.(yaml.MapSlice)
		if !ok && chItem.Value != nil {
			return Block{}, fmt.Errorf("block %q channel %q: expected a mapping of pulses, got %T", name, ch.Name, chItem.Value)
		}
		for _, pItem := range pulses {
			p, err := decodePulse(fmt.Sprint(pItem.Key), pItem.Value)
			if err != nil {
				return Block{}, fmt.Errorf("block %q channel %q: %w", name, ch.Name, err)
			}
			ch.Pulses = append(ch.Pulses, p)
		}
		b.Channels = append(b.Channels, ch)
	}
	return b, nil
}

func decodePulse(name string, v interface{}) (Pulse, error) {
	fields, ok := v.(yaml.MapSlice)
	if !ok {
		return Pulse{}, fmt.Errorf("pulse %q: expected a mapping, got %T", name, v)
	}
	p := Pulse{Name: name, Amplitude: 1}
	var haveStart, haveDuration bool
	for _, f := range fields {
		key := fmt.Sprint(f.Key)
		val, err := toFloat(f.Value)
		if err != nil {
			return Pulse{}, fmt.Errorf("pulse %q field %s: %w", name, key, err)
		}
		switch key {
		case "start":
			p.Start = val
			haveStart = true
		case "duration":
			p.Duration = val
			haveDuration = true
		case "amplitude":
			p.Amplitude = val
		case "frequency":
			p.Frequency = val
		case "phase":
			p.Phase = val
		default:
			return Pulse{}, fmt.Errorf("pulse %q: unknown field %q", name, key)
		}
	}
	if !haveStart || !haveDuration {
		return Pulse{}, fmt.Errorf("pulse %q: start and duration are required", name)
	}
	return p, nil
}

func decodeStrings(v interface{}) ([]string, error) {
	items, ok := v.([]interface{})
	if !ok && v != nil {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	r := make([]string, 0, len(items))
	for _, it := range items {
		r = append(r, fmt.Sprint(it))
	}
	return r, nil
}

func decodeInts(v interface{}) ([]int, error) {
	items, ok := v.([]interface{})
	if !ok && v != nil {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	r := make([]int, 0, len(items))
	for _, it := range items {
		f, err := toFloat(it)
		if err != nil {
			return nil, err
		}
		if f != float64(int(f)) {
			return nil, fmt.Errorf("repeat count %v is not an integer", f)
		}
		r = append(r, int(f))
	}
	return r, nil
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%v (%T) is not numeric", v, v)
}

// Encode writes s as a sequence document that Decode reads back to an equal
// Spec. Unnamed pulses are keyed pulse1, pulse2, ... per channel.
func Encode(w io.Writer, s *Spec) error {
	var doc yaml.MapSlice
	if s.TotalDuration.Uncapped {
		doc = append(doc, yaml.MapItem{Key: keyTotalDuration, Value: UncappedSentinel})
	} else {
		doc = append(doc, yaml.MapItem{Key: keyTotalDuration, Value: s.TotalDuration.Micros})
	}
	for _, b := range s.Blocks {
		var channels yaml.MapSlice
		for _, ch := range b.Channels {
			var pulses yaml.MapSlice
			for i, p := range ch.Pulses {
				name := p.Name
				if name == "" {
					name = "pulse" + strconv.Itoa(i+1)
				}
				pulses = append(pulses, yaml.MapItem{Key: name, Value: yaml.MapSlice{
					{Key: "start", Value: p.Start},
					{Key: "duration", Value: p.Duration},
					{Key: "amplitude", Value: p.Amplitude},
					{Key: "frequency", Value: p.Frequency},
					{Key: "phase", Value: p.Phase},
				}})
			}
			channels = append(channels, yaml.MapItem{Key: ch.Name, Value: pulses})
		}
		doc = append(doc, yaml.MapItem{Key: b.Name, Value: channels})
	}
	order := s.Order
	if order == nil {
		order = []string{}
	}
	repeats := s.Repeats
	if repeats == nil {
		repeats = []int{}
	}
	doc = append(doc,
		yaml.MapItem{Key: keyOrder, Value: order},
		yaml.MapItem{Key: keyRepeats, Value: repeats},
	)
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
