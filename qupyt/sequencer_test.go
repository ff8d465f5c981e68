package qupyt

import (
	"context"
	"errors"
	"io/ioutil"
	"log"
	"testing"

	"github.com/KarDB/QuPyt/qupyt/awg"
	"github.com/KarDB/QuPyt/qupyt/cache"
	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/KarDB/QuPyt/qupyt/hardware"
	"github.com/KarDB/QuPyt/qupyt/pulsestreamer"
	"github.com/KarDB/QuPyt/qupyt/sequence"
)

var quiet = log.New(ioutil.Discard, "", 0)

func laserSpec(t *testing.T, duration float64) *sequence.Spec {
	t.Helper()
	b := sequence.NewBuilder(sequence.Capped(4))
	b.AddPulse("LASER", 1, duration)
	b.AddPulse("READ", 2, 1)
	b.Sequencing([]string{sequence.DefaultBlock}, []int{3})
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s
}

type devices struct {
	awg *hardware.SimulatedAWG
	pb  *hardware.SimulatedPulseBlaster
	ps  *hardware.SimulatedPulseStreamer
}

func newDevices() devices {
	return devices{&hardware.SimulatedAWG{}, &hardware.SimulatedPulseBlaster{}, &hardware.SimulatedPulseStreamer{}}
}

func newTestSequencer(t *testing.T, target hardware.Kind, d devices) Sequencer {
	t.Helper()
	s, err := NewSequencer(SequencerOpts{
		Target:             target,
		Channels:           sequence.ChannelMap{"LASER": 1, "READ": 2},
		Cache:              cache.New(&cache.MemoryStore{}, quiet),
		AWG:                awg.Options{SampleRate: 1e9},
		AWGDevice:           d.awg,
		PulseBlasterDevice:  d.pb,
		PulseStreamerDevice: d.ps,
		Logger:              quiet,
	})
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	return s
}

func TestNewSequencerValidation(t *testing.T) {
	c := cache.New(&cache.MemoryStore{}, quiet)
	chans := sequence.ChannelMap{"LASER": 1}
	tcs := []struct {
		name string
		opts SequencerOpts
	}{
		{"no cache", SequencerOpts{Target: hardware.Mock}},
		{"no channels", SequencerOpts{Target: hardware.AWG, Cache: c, AWGDevice: &hardware.SimulatedAWG{}}},
		{"no awg device", SequencerOpts{Target: hardware.AWG, Cache: c, Channels: chans}},
		{"no pulse blaster", SequencerOpts{Target: hardware.PulseBlaster, Cache: c, Channels: chans}},
		{"no pulse streamer", SequencerOpts{Target: hardware.PulseStreamer, Cache: c, Channels: chans}},
		{"bad output count", SequencerOpts{Target: hardware.PulseStreamer, Cache: c, Channels: chans,
			PulseStreamerDevice: &hardware.SimulatedPulseStreamer{}, PulseStreamer: pulsestreamer.Options{Outputs: -1}}},
		{"bad sample rate", SequencerOpts{Target: hardware.AWG, Cache: c, Channels: chans,
			AWGDevice: &hardware.SimulatedAWG{}, AWG: awg.Options{SampleRate: -1}}},
		{"unknown target", SequencerOpts{Target: hardware.Kind(42), Cache: c, Channels: chans}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSequencer(tc.opts); err == nil {
				t.Errorf("NewSequencer succeeded, want error")
			}
		})
	}
}

func TestLoadSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	d := newDevices()
	for _, target := range []hardware.Kind{hardware.AWG, hardware.PulseBlaster, hardware.PulseStreamer, hardware.Mock} {
		t.Run(target.String(), func(t *testing.T) {
			s := newTestSequencer(t, target, d)
			before := [3]int{len(d.awg.Uploads()), len(d.pb.Programs()), len(d.ps.Streams())}

			st, err := s.Load(ctx, laserSpec(t, 0.5))
			if err != nil {
				t.Fatalf("first Load: %v", err)
			}
			if st.Skipped {
				t.Errorf("first Load skipped")
			}
			st, err = s.Load(ctx, laserSpec(t, 0.5))
			if err != nil {
				t.Fatalf("second Load: %v", err)
			}
			if !st.Skipped {
				t.Errorf("unchanged sequence recompiled")
			}
			st, err = s.Load(ctx, laserSpec(t, 0.75))
			if err != nil {
				t.Fatalf("third Load: %v", err)
			}
			if st.Skipped {
				t.Errorf("changed sequence skipped")
			}

			want := map[hardware.Kind][3]int{
				hardware.AWG:           {2, 0, 0},
				hardware.PulseBlaster:  {0, 2, 0},
				hardware.PulseStreamer: {0, 0, 2},
				hardware.Mock:          {0, 0, 0},
			}[target]
			got := [3]int{
				len(d.awg.Uploads()) - before[0],
				len(d.pb.Programs()) - before[1],
				len(d.ps.Streams()) - before[2],
			}
			if got != want {
				t.Errorf("AWG, PulseBlaster, PulseStreamer loads == %v, want %v", got, want)
			}
		})
	}
}

func TestLoadStats(t *testing.T) {
	ctx := context.Background()
	d := newDevices()
	st, err := newTestSequencer(t, hardware.AWG, d).Load(ctx, laserSpec(t, 0.5))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Blocks != 1 || st.Samples != 4000 || st.Hash == "" {
		t.Errorf("AWG stats == %+v", st)
	}
	if b, ok := d.awg.Waveforms(d.awg.Uploads()[0].ID().String()); !ok || b.Hash != st.Hash {
		t.Errorf("uploaded bundle not found under its ID")
	}

	st, err = newTestSequencer(t, hardware.PulseBlaster, d).Load(ctx, laserSpec(t, 0.5))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Blocks != 1 || st.Instructions != len(d.pb.Programs()[0].Instructions) {
		t.Errorf("PulseBlaster stats == %+v", st)
	}

	st, err = newTestSequencer(t, hardware.PulseStreamer, d).Load(ctx, laserSpec(t, 0.5))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Three repeats of low-high-low on LASER and READ, merged across repeats.
	if st.Blocks != 1 || st.Runs != 14 {
		t.Errorf("PulseStreamer stats == %+v", st)
	}
}

func TestLoadAnalogOnPulseStreamer(t *testing.T) {
	d := newDevices()
	s := newTestSequencer(t, hardware.PulseStreamer, d)
	spec := laserSpec(t, 0.5)
	spec.Blocks[0].Channels[0].Pulses[0].Frequency = 1e8
	if _, err := s.Load(context.Background(), spec); failure.KindOf(err) != failure.Specification {
		t.Errorf("Load error == %v, want specification error", err)
	}
	if len(d.ps.Streams()) != 0 {
		t.Errorf("analog sequence reached the device")
	}
}

func TestLoadFailureInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	d := newDevices()
	d.awg.Err = errors.New("instrument offline")
	s := newTestSequencer(t, hardware.AWG, d)
	if _, err := s.Load(ctx, laserSpec(t, 0.5)); err == nil {
		t.Fatalf("Load succeeded with failing device")
	}
	d.awg.Err = nil
	st, err := s.Load(ctx, laserSpec(t, 0.5))
	if err != nil {
		t.Fatalf("Load after recovery: %v", err)
	}
	if st.Skipped {
		t.Errorf("sequence skipped after failed load")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestSequencer(t, hardware.Mock, newDevices())
	bad := laserSpec(t, 0.5)
	bad.Repeats = nil
	for i := 0; i < 2; i++ {
		_, err := s.Load(ctx, bad)
		if k := failure.KindOf(err); k != failure.Specification {
			t.Errorf("Load %d: KindOf(%v) == %v, want %v", i, err, k, failure.Specification)
		}
	}
}

func TestLoadUncappedAWG(t *testing.T) {
	s := newTestSequencer(t, hardware.AWG, newDevices())
	spec := laserSpec(t, 0.5)
	spec.TotalDuration = sequence.Uncapped()
	if _, err := s.Load(context.Background(), spec); failure.KindOf(err) != failure.Specification {
		t.Errorf("Load(uncapped) error == %v, want specification error", err)
	}
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestSequencer(t, hardware.Mock, newDevices()).Load(ctx, laserSpec(t, 0.5)); !errors.Is(err, context.Canceled) {
		t.Errorf("Load error == %v, want %v", err, context.Canceled)
	}
}
