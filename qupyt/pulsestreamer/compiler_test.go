package pulsestreamer

import (
	"bytes"
	"io/ioutil"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/KarDB/QuPyt/qupyt/sequence"
)

func quietCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := NewCompiler(Options{Logger: log.New(ioutil.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	return c
}

func on(start, duration float64) sequence.Pulse {
	return sequence.Pulse{Start: start, Duration: duration, Amplitude: 1}
}

func low(ns int64) Run { return Run{Duration: ns} }
func high(ns int64) Run { return Run{Duration: ns, High: true} }

func TestCompileBlock(t *testing.T) {
	tcs := []struct {
		name     string
		pulses   []sequence.Pulse
		total    sequence.Duration
		want     Pattern
		duration int64
	}{
		{"lead and tail", []sequence.Pulse{on(2, 3), on(6, 3)}, sequence.Capped(10),
			Pattern{low(2000), high(3000), low(1000), high(3000), low(1000)}, 10000},
		{"starts at zero", []sequence.Pulse{on(0, 1)}, sequence.Capped(2),
			Pattern{high(1000), low(1000)}, 2000},
		{"fills total", []sequence.Pulse{on(1, 1)}, sequence.Capped(2),
			Pattern{low(1000), high(1000)}, 2000},
		{"uncapped has no tail", []sequence.Pulse{on(2, 3), on(6, 3)}, sequence.Uncapped(),
			Pattern{low(2000), high(3000), low(1000), high(3000)}, 9000},
		{"unordered pulses", []sequence.Pulse{on(6, 3), on(2, 3)}, sequence.Capped(10),
			Pattern{low(2000), high(3000), low(1000), high(3000), low(1000)}, 10000},
		{"no pulses", nil, sequence.Capped(1), Pattern{low(1000)}, 1000},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			blk := sequence.Block{Name: "b", Channels: []sequence.Channel{{Name: "LASER", Pulses: tc.pulses}}}
			b, err := quietCompiler(t).CompileBlock(blk, sequence.ChannelMap{"LASER": 3}, tc.total)
			if err != nil {
				t.Fatalf("CompileBlock: %v", err)
			}
			if got := b.Patterns[3]; !reflect.DeepEqual(got, tc.want) {
				t.Errorf("pattern == %v, want %v", got, tc.want)
			}
			if b.Duration != tc.duration {
				t.Errorf("Duration == %d, want %d", b.Duration, tc.duration)
			}
		})
	}
}

func TestCompileBlockErrors(t *testing.T) {
	tcs := []struct {
		name     string
		channels []sequence.Channel
		mapping  sequence.ChannelMap
	}{
		{"overrun", []sequence.Channel{{Name: "A", Pulses: []sequence.Pulse{on(2, 6)}}}, sequence.ChannelMap{"A": 0}},
		{"overlap", []sequence.Channel{{Name: "A", Pulses: []sequence.Pulse{on(0, 2), on(1, 1)}}}, sequence.ChannelMap{"A": 0}},
		{"amplitude", []sequence.Channel{{Name: "A", Pulses: []sequence.Pulse{{Start: 0, Duration: 1, Amplitude: 0.5}}}}, sequence.ChannelMap{"A": 0}},
		{"carrier", []sequence.Channel{{Name: "A", Pulses: []sequence.Pulse{{Start: 0, Duration: 1, Amplitude: 1, Frequency: 1e8}}}}, sequence.ChannelMap{"A": 0}},
		{"phase", []sequence.Channel{{Name: "A", Pulses: []sequence.Pulse{{Start: 0, Duration: 1, Amplitude: 1, Phase: 1}}}}, sequence.ChannelMap{"A": 0}},
		{"unmapped", []sequence.Channel{{Name: "A"}}, sequence.ChannelMap{"B": 0}},
		{"output range", []sequence.Channel{{Name: "A"}}, sequence.ChannelMap{"A": 8}},
		{"shared output", []sequence.Channel{{Name: "A"}, {Name: "B"}}, sequence.ChannelMap{"A": 1, "B": 1}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			blk := sequence.Block{Name: "b", Channels: tc.channels}
			_, err := quietCompiler(t).CompileBlock(blk, tc.mapping, sequence.Capped(5))
			if k := failure.KindOf(err); k != failure.Specification {
				t.Errorf("KindOf(%v) == %v, want %v", err, k, failure.Specification)
			}
		})
	}
}

func TestCompileBlockRounding(t *testing.T) {
	var logs bytes.Buffer
	c, err := NewCompiler(Options{Logger: log.New(&logs, "", 0)})
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	blk := sequence.Block{Name: "b", Channels: []sequence.Channel{{Name: "A", Pulses: []sequence.Pulse{on(0.0016, 0.003)}}}}
	b, err := c.CompileBlock(blk, sequence.ChannelMap{"A": 0}, sequence.Capped(0.01))
	if err != nil {
		t.Fatalf("CompileBlock: %v", err)
	}
	if want := (Pattern{low(2), high(3), low(5)}); !reflect.DeepEqual(b.Patterns[0], want) {
		t.Errorf("pattern == %v, want %v", b.Patterns[0], want)
	}
	if c.Warnings() != 1 {
		t.Errorf("Warnings() == %d, want 1", c.Warnings())
	}
	if !strings.Contains(logs.String(), "warning:") {
		t.Errorf("rounding not logged: %q", logs.String())
	}
}

func twoBlockSpec(total sequence.Duration) *sequence.Spec {
	return &sequence.Spec{
		TotalDuration: total,
		Order:         []string{"a", "b"},
		Repeats:       []int{2, 1},
		Blocks: []sequence.Block{
			{Name: "a", Channels: []sequence.Channel{{Name: "LASER", Pulses: []sequence.Pulse{on(0, 0.004)}}}},
			{Name: "b", Channels: []sequence.Channel{{Name: "READ", Pulses: []sequence.Pulse{on(0.005, 0.003)}}}},
		},
	}
}

func TestCompile(t *testing.T) {
	p, err := quietCompiler(t).Compile(twoBlockSpec(sequence.Capped(0.01)), sequence.ChannelMap{"LASER": 0, "READ": 1})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := p.Outputs(); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("Outputs() == %v", got)
	}
	if p.Duration() != 30 {
		t.Errorf("Duration() == %d, want 30", p.Duration())
	}
	tcs := []struct {
		out  int
		want Pattern
	}{
		{0, Pattern{high(4), low(6), high(4), low(16)}},
		{1, Pattern{low(25), high(3), low(2)}},
	}
	for _, tc := range tcs {
		got := p.Pattern(tc.out)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Pattern(%d) == %v, want %v", tc.out, got, tc.want)
		}
		if got.Duration() != p.Duration() {
			t.Errorf("Pattern(%d) lasts %dns, program lasts %dns", tc.out, got.Duration(), p.Duration())
		}
	}
}

func TestCompileUncapped(t *testing.T) {
	p, err := quietCompiler(t).Compile(twoBlockSpec(sequence.Uncapped()), sequence.ChannelMap{"LASER": 0, "READ": 1})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Blocks["a"].Duration != 4 || p.Blocks["b"].Duration != 8 {
		t.Errorf("block durations == %d, %d, want 4, 8", p.Blocks["a"].Duration, p.Blocks["b"].Duration)
	}
	if want := (Pattern{high(8), low(8)}); !reflect.DeepEqual(p.Pattern(0), want) {
		t.Errorf("Pattern(0) == %v, want %v", p.Pattern(0), want)
	}
}

func TestCompileEmpty(t *testing.T) {
	spec := &sequence.Spec{TotalDuration: sequence.Uncapped()}
	if _, err := quietCompiler(t).Compile(spec, sequence.ChannelMap{}); failure.KindOf(err) != failure.Specification {
		t.Errorf("Compile(empty) error == %v, want specification error", err)
	}
}

func TestCompileRejectsInvalid(t *testing.T) {
	spec := twoBlockSpec(sequence.Capped(0.01))
	spec.Repeats = spec.Repeats[:1]
	if _, err := quietCompiler(t).Compile(spec, sequence.ChannelMap{"LASER": 0, "READ": 1}); failure.KindOf(err) != failure.Specification {
		t.Errorf("Compile error == %v, want specification error", err)
	}
}
