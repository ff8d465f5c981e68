package qupyt

import (
	"context"
	"fmt"
	"log"

	"github.com/KarDB/QuPyt/qupyt/awg"
	"github.com/KarDB/QuPyt/qupyt/cache"
	"github.com/KarDB/QuPyt/qupyt/hardware"
	"github.com/KarDB/QuPyt/qupyt/pulseblaster"
	"github.com/KarDB/QuPyt/qupyt/pulsestreamer"
	"github.com/KarDB/QuPyt/qupyt/sequence"
)

// A gate runs a load only when the cache reports a change, and rolls the
// cache back when the load fails.
type gate struct {
	cache *cache.Cache
	log   *log.Logger
}

func (g gate) run(ctx context.Context, spec *sequence.Spec, load func() (Stats, error)) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	// An invalid spec must never become the baseline.
	if err := spec.Validate(); err != nil {
		return Stats{}, err
	}
	if !g.cache.ShouldRecompile(spec) {
		g.log.Printf("sequence unchanged, skipping compilation")
		return Stats{Skipped: true}, nil
	}
	stats, err := load()
	if err != nil {
		if cerr := g.cache.Invalidate(); cerr != nil {
			g.log.Printf("warning: invalidating sequence baseline: %v", cerr)
		}
		return Stats{}, err
	}
	return stats, nil
}

type awgSequencer struct {
	gate
	compiler *awg.Compiler
	channels sequence.ChannelMap
	device   hardware.WaveformUploader
}

// Load implements the Sequencer interface.
func (s *awgSequencer) Load(ctx context.Context, spec *sequence.Spec) (Stats, error) {
	return s.run(ctx, spec, func() (Stats, error) {
		b, err := s.compiler.Compile(spec, s.channels)
		if err != nil {
			return Stats{}, err
		}
		if err := s.device.UploadWaveforms(ctx, b); err != nil {
			return Stats{}, fmt.Errorf("uploading waveforms: %w", err)
		}
		s.log.Printf("loaded waveforms %v (%d blocks)", b.ID(), len(b.Names))
		return Stats{
			Blocks:   len(b.Names),
			Samples:  b.Samples,
			Warnings: b.Warnings,
			Hash:     b.Hash,
		}, nil
	})
}

type pbSequencer struct {
	gate
	compiler *pulseblaster.Compiler
	channels sequence.ChannelMap
	device   hardware.Programmer
}

// Load implements the Sequencer interface.
func (s *pbSequencer) Load(ctx context.Context, spec *sequence.Spec) (Stats, error) {
	return s.run(ctx, spec, func() (Stats, error) {
		p, err := s.compiler.Compile(spec, s.channels)
		if err != nil {
			return Stats{}, err
		}
		if err := s.device.Program(ctx, p); err != nil {
			return Stats{}, fmt.Errorf("programming pulse blaster: %w", err)
		}
		return Stats{
			Blocks:       len(spec.UniqueBlocks()),
			Instructions: len(p.Instructions),
			Warnings:     s.compiler.Warnings(),
		}, nil
	})
}

type psSequencer struct {
	gate
	compiler *pulsestreamer.Compiler
	channels sequence.ChannelMap
	device   hardware.PatternLoader
}

// Load implements the Sequencer interface.
func (s *psSequencer) Load(ctx context.Context, spec *sequence.Spec) (Stats, error) {
	return s.run(ctx, spec, func() (Stats, error) {
		p, err := s.compiler.Compile(spec, s.channels)
		if err != nil {
			return Stats{}, err
		}
		if err := s.device.LoadPatterns(ctx, p); err != nil {
			return Stats{}, fmt.Errorf("loading pulse streamer patterns: %w", err)
		}
		var runs int
		for _, o := range p.Outputs() {
			runs += len(p.Pattern(o))
		}
		return Stats{
			Blocks:   len(p.Blocks),
			Runs:     runs,
			Warnings: s.compiler.Warnings(),
		}, nil
	})
}

type mockSequencer struct {
	gate
}

// Load implements the Sequencer interface.
func (s *mockSequencer) Load(ctx context.Context, spec *sequence.Spec) (Stats, error) {
	return s.run(ctx, spec, func() (Stats, error) {
		return Stats{Blocks: len(spec.UniqueBlocks())}, nil
	})
}
