package sweep

import (
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"gopkg.in/yaml.v2"
)

// A Config is the dynamic part of a measurement configuration.
type Config struct {
	// Steps is the number of dynamic steps; 1 when unset.
	Steps   int
	Devices []Device
}

// DecodeDevices reads the dynamic_steps and dynamic_devices sections of a
// measurement configuration:
//
//	dynamic_steps: 5
//	dynamic_devices:
//	  mw_source:
//	    device_type: SMB100A
//	    address: TCPIP::192.168.0.2
//	    channels:
//	      channel_1:
//	        min_frequency: 2.8e9
//	        max_frequency: 2.9e9
//	        amplitude_values: [0.1, 0.1, 0.2, 0.2, 0.3]
//
// A parameter p is swept linearly from min_p to max_p, takes the explicit
// list p_values, or follows the expression functional_p of x in [0, 1] (see
// Expression). Channels are named by the suffix of their key.
func DecodeDevices(r io.Reader) (*Config, error) {
	const op = "decode sweep"
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Steps   interface{}   `yaml:"dynamic_steps"`
		Devices yaml.MapSlice `yaml:"dynamic_devices"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, failure.Wrap(failure.Specification, op, err)
	}
	cfg := &Config{Steps: 1}
	if doc.Steps != nil {
		n, err := toFloat(doc.Steps)
		if err != nil || n != float64(int(n)) {
			return nil, failure.New(failure.Specification, op, "dynamic_steps %v is not an integer", doc.Steps)
		}
		cfg.Steps = int(n)
	}
	for _, item := range doc.Devices {
		d, err := decodeDevice(fmt.Sprint(item.Key), item.Value)
		if err != nil {
			return nil, failure.Wrap(failure.Specification, op, err)
		}
		cfg.Devices = append(cfg.Devices, d)
	}
	return cfg, nil
}

func decodeDevice(name string, v interface{}) (Device, error) {
	fields, ok := v.(yaml.MapSlice)
	if !ok {
		return Device{}, fmt.Errorf("device %q: expected a mapping, got %T", name, v)
	}
	d := Device{Name: name}
	for _, f := range fields {
		switch key := fmt.Sprint(f.Key); key {
		case "device_type":
			d.Type = fmt.Sprint(f.Value)
		case "address":
			d.Address = fmt.Sprint(f.Value)
		case "channels":
			channels, ok := f.Value.(yaml.MapSlice)
			if !ok {
				return Device{}, fmt.Errorf("device %q: channels must be a mapping, got %T", name, f.Value)
			}
			for _, ch := range channels {
				params, err := decodeChannel(fmt.Sprint(ch.Key), ch.Value)
				if err != nil {
					return Device{}, fmt.Errorf("device %q: %w", name, err)
				}
				d.Parameters = append(d.Parameters, params...)
			}
		}
	}
	return d, nil
}

// decodeChannel groups the min_/max_/_values keys of one channel by
// parameter, keeping first-seen order.
func decodeChannel(key string, v interface{}) ([]Parameter, error) {
	fields, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, fmt.Errorf("channel %q: expected a mapping, got %T", key, v)
	}
	channel := key
	if i := strings.LastIndex(key, "_"); i >= 0 {
		channel = key[i+1:]
	}
	type bounds struct {
		min, max   *float64
		values     []float64
		haveValues bool
		expression string
	}
	var order []string
	byName := make(map[string]*bounds)
	get := func(p string) *bounds {
		if b, ok := byName[p]; ok {
			return b
		}
		order = append(order, p)
		byName[p] = &bounds{}
		return byName[p]
	}
	for _, f := range fields {
		k := fmt.Sprint(f.Key)
		switch {
		case strings.HasPrefix(k, "functional_"):
			if f.Value == nil {
				continue
			}
			src, ok := f.Value.(string)
			if !ok {
				src = fmt.Sprint(f.Value)
			}
			get(strings.TrimPrefix(k, "functional_")).expression = src
		case strings.HasPrefix(k, "min_") || strings.HasPrefix(k, "max_"):
			if f.Value == nil {
				continue
			}
			x, err := toFloat(f.Value)
			if err != nil {
				return nil, fmt.Errorf("channel %q: %s: %w", key, k, err)
			}
			b := get(k[4:])
			if k[:4] == "min_" {
				b.min = &x
			} else {
				b.max = &x
			}
		case strings.HasSuffix(k, "_values"):
			items, ok := f.Value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("channel %q: %s: expected a list, got %T", key, k, f.Value)
			}
			b := get(strings.TrimSuffix(k, "_values"))
			b.haveValues = true
			for _, it := range items {
				x, err := toFloat(it)
				if err != nil {
					return nil, fmt.Errorf("channel %q: %s: %w", key, k, err)
				}
				b.values = append(b.values, x)
			}
		default:
			return nil, fmt.Errorf("channel %q: unknown key %q", key, k)
		}
	}
	var params []Parameter
	for _, name := range order {
		b := byName[name]
		p := Parameter{Name: name, Channel: channel}
		switch {
		case b.min != nil && b.max != nil:
			p.Source = Linear(*b.min, *b.max)
		case b.min != nil || b.max != nil:
			return nil, fmt.Errorf("channel %q: %s needs both min_%s and max_%s", key, name, name, name)
		case b.haveValues:
			p.Source = List(b.values...)
		case b.expression != "":
			src, err := Expression(b.expression)
			if err != nil {
				return nil, fmt.Errorf("channel %q: functional_%s: %w", key, name, err)
			}
			p.Source = src
		}
		params = append(params, p)
	}
	return params, nil
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
