// Package hardware defines the devices compiled programs and sweep values are
// handed to, along with simulated implementations of each.
package hardware

import (
	"context"
	"fmt"
	"strings"

	"github.com/KarDB/QuPyt/qupyt/awg"
	"github.com/KarDB/QuPyt/qupyt/pulseblaster"
	"github.com/KarDB/QuPyt/qupyt/pulsestreamer"
)

// A Kind selects the synchroniser a sequence is compiled for.
type Kind int

const (
	AWG Kind = iota + 1
	PulseBlaster
	PulseStreamer
	// Mock accepts every valid sequence without compiling it.
	Mock
)

func (k Kind) String() string {
	switch k {
	case AWG:
		return "awg"
	case PulseBlaster:
		return "pulseblaster"
	case PulseStreamer:
		return "pulsestreamer"
	case Mock:
		return "mock"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a synchroniser name, as used in measurement
// configurations, into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "awg", "tekawg":
		return AWG, nil
	case "pulseblaster":
		return PulseBlaster, nil
	case "pulsestreamer", "swabinstps":
		return PulseStreamer, nil
	case "mock", "mocksynchroniser":
		return Mock, nil
	}
	return 0, fmt.Errorf("unknown synchroniser type %q, options are awg, pulseblaster, pulsestreamer, mock", s)
}

// A WaveformUploader loads compiled waveforms onto an arbitrary waveform
// generator.
type WaveformUploader interface {
	UploadWaveforms(ctx context.Context, b *awg.Bundle) error
}

// A Programmer writes a pulse program into a PulseBlaster's instruction
// memory.
type Programmer interface {
	Program(ctx context.Context, p *pulseblaster.Program) error
}

// A PatternLoader streams digital patterns from a pattern generator.
type PatternLoader interface {
	LoadPatterns(ctx context.Context, p *pulsestreamer.Program) error
}
