// Package qupyt compiles pulse sequences for the synchroniser of a quantum
// sensing experiment and loads them onto it, skipping both steps when the
// sequence has not changed since the last load.
package qupyt

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/KarDB/QuPyt/qupyt/awg"
	"github.com/KarDB/QuPyt/qupyt/cache"
	"github.com/KarDB/QuPyt/qupyt/hardware"
	"github.com/KarDB/QuPyt/qupyt/pulseblaster"
	"github.com/KarDB/QuPyt/qupyt/pulsestreamer"
	"github.com/KarDB/QuPyt/qupyt/sequence"
)

// Stats packages together a collection of potentially interesting metrics
// pertaining to one sequence load.
type Stats struct {
	// Skipped is set when the sequence matched the cached baseline and nothing
	// was compiled or loaded.
	Skipped bool
	// Blocks is the number of distinct blocks compiled.
	Blocks int
	// Samples is the per-block sample count of an AWG load.
	Samples int
	// Instructions is the program length of a PulseBlaster load.
	Instructions int
	// Runs counts the pattern runs, over all outputs, of a PulseStreamer
	// load.
	Runs int
	// Warnings counts timing values that had to be rounded.
	Warnings int
	// Hash identifies the loaded AWG bundle.
	Hash string
}

// A Sequencer loads pulse sequences onto one synchroniser.
type Sequencer interface {
	// Load compiles spec and hands the result to the device, unless spec
	// equals the previously loaded sequence. On failure nothing is loaded and
	// the next Load recompiles.
	Load(ctx context.Context, spec *sequence.Spec) (Stats, error)
}

// A SequencerOpts packages together the arguments necessary to construct a
// new Sequencer. Fields without a stated default must be set.
type SequencerOpts struct {
	// Target selects the synchroniser.
	Target hardware.Kind

	// Channels maps channel names to AWG rows or PulseBlaster bits.
	Channels sequence.ChannelMap

	// Cache gates recompilation.
	Cache *cache.Cache

	// AWG, PulseBlaster and PulseStreamer configure the compiler of the
	// matching target. Zero fields take the compiler defaults.
	AWG           awg.Options
	PulseBlaster  pulseblaster.Options
	PulseStreamer pulsestreamer.Options

	// The device matching Target receives the compiled program and must be
	// non-nil.
	AWGDevice           hardware.WaveformUploader
	PulseBlasterDevice  hardware.Programmer
	PulseStreamerDevice hardware.PatternLoader

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// NewSequencer returns a new Sequencer, configured in accordance with opts, or
// an error if the options are nonsensical.
func NewSequencer(opts SequencerOpts) (Sequencer, error) {
	if opts.Cache == nil {
		return nil, errors.New("must provide Cache")
	}
	if opts.Target != hardware.Mock && len(opts.Channels) == 0 {
		return nil, errors.New("must provide Channels")
	}
	l := opts.Logger
	if l == nil {
		l = log.Default()
	}
	base := gate{cache: opts.Cache, log: l}

	switch opts.Target {
	case hardware.AWG:
		if opts.AWGDevice == nil {
			return nil, errors.New("must provide AWGDevice for the awg target")
		}
		aOpts := opts.AWG
		if aOpts.Logger == nil {
			aOpts.Logger = l
		}
		c, err := awg.NewCompiler(aOpts)
		if err != nil {
			return nil, fmt.Errorf("configuring awg compiler: %w", err)
		}
		return &awgSequencer{gate: base, compiler: c, channels: opts.Channels, device: opts.AWGDevice}, nil
	case hardware.PulseBlaster:
		if opts.PulseBlasterDevice == nil {
			return nil, errors.New("must provide PulseBlasterDevice for the pulseblaster target")
		}
		pOpts := opts.PulseBlaster
		if pOpts.Logger == nil {
			pOpts.Logger = l
		}
		c, err := pulseblaster.NewCompiler(pOpts)
		if err != nil {
			return nil, fmt.Errorf("configuring pulseblaster compiler: %w", err)
		}
		return &pbSequencer{gate: base, compiler: c, channels: opts.Channels, device: opts.PulseBlasterDevice}, nil
	case hardware.PulseStreamer:
		if opts.PulseStreamerDevice == nil {
			return nil, errors.New("must provide PulseStreamerDevice for the pulsestreamer target")
		}
		psOpts := opts.PulseStreamer
		if psOpts.Logger == nil {
			psOpts.Logger = l
		}
		c, err := pulsestreamer.NewCompiler(psOpts)
		if err != nil {
			return nil, fmt.Errorf("configuring pulse streamer compiler: %w", err)
		}
		return &psSequencer{gate: base, compiler: c, channels: opts.Channels, device: opts.PulseStreamerDevice}, nil
	case hardware.Mock:
		return &mockSequencer{gate: base}, nil
	}
	return nil, fmt.Errorf("unsupported target %v", opts.Target)
}
