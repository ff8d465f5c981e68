package hardware

import (
	"bytes"
	"context"
	"fmt"

	"github.com/KarDB/QuPyt/qupyt/awg"
	"github.com/KarDB/QuPyt/qupyt/pulseblaster"
	"github.com/KarDB/QuPyt/qupyt/pulsestreamer"
)

// A SimulatedAWG stands in for an arbitrary waveform generator. Uploaded
// bundles pass through the bundle wire framing, so a bundle that would not
// survive transfer fails to upload.
type SimulatedAWG struct {
	// Err, if set, is returned by every upload.
	Err error

	uploads []*awg.Bundle
	memory  map[string]*awg.Bundle
}

// UploadWaveforms implements the WaveformUploader interface.
func (s *SimulatedAWG) UploadWaveforms(ctx context.Context, b *awg.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Err != nil {
		return s.Err
	}
	var wire bytes.Buffer
	if err := awg.WriteBundle(&wire, b); err != nil {
		return fmt.Errorf("sending bundle: %w", err)
	}
	received, err := awg.ReadBundle(&wire)
	if err != nil {
		return fmt.Errorf("receiving bundle: %w", err)
	}
	if s.memory == nil {
		s.memory = make(map[string]*awg.Bundle)
	}
	s.memory[received.ID().String()] = received
	s.uploads = append(s.uploads, received)
	return nil
}

// Uploads returns the bundles received so far, oldest first.
func (s *SimulatedAWG) Uploads() []*awg.Bundle {
	return s.uploads
}

// Waveforms returns the stored bundle with the given upload ID.
func (s *SimulatedAWG) Waveforms(id string) (*awg.Bundle, bool) {
	b, ok := s.memory[id]
	return b, ok
}

// A SimulatedPulseBlaster stands in for a PulseBlaster board and rejects
// programs that would not loop.
type SimulatedPulseBlaster struct {
	// Err, if set, is returned by every Program call.
	Err error

	programs []*pulseblaster.Program
}

// Program implements the Programmer interface.
func (s *SimulatedPulseBlaster) Program(ctx context.Context, p *pulseblaster.Program) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Err != nil {
		return s.Err
	}
	if err := p.CheckLoop(); err != nil {
		return fmt.Errorf("programming pulse blaster: %w", err)
	}
	s.programs = append(s.programs, p)
	return nil
}

// Programs returns the programs written so far, oldest first.
func (s *SimulatedPulseBlaster) Programs() []*pulseblaster.Program {
	return s.programs
}

// A SimulatedPulseStreamer stands in for a digital pattern generator. It
// expands every program it is given and rejects outputs whose patterns do not
// span the whole program.
type SimulatedPulseStreamer struct {
	// Err, if set, is returned by every LoadPatterns call.
	Err error

	streams []map[int]pulsestreamer.Pattern
}

// LoadPatterns implements the PatternLoader interface.
func (s *SimulatedPulseStreamer) LoadPatterns(ctx context.Context, p *pulsestreamer.Program) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Err != nil {
		return s.Err
	}
	total := p.Duration()
	stream := make(map[int]pulsestreamer.Pattern)
	for _, o := range p.Outputs() {
		pat := p.Pattern(o)
		if d := pat.Duration(); d != total {
			return fmt.Errorf("output %d pattern lasts %dns, sequence lasts %dns", o, d, total)
		}
		stream[o] = pat
	}
	s.streams = append(s.streams, stream)
	return nil
}

// Streams returns the expanded patterns of every program loaded so far,
// oldest first.
func (s *SimulatedPulseStreamer) Streams() []map[int]pulsestreamer.Pattern {
	return s.streams
}

// A SimulatedSource stands in for a swept signal source. It records every
// value it is set to.
type SimulatedSource struct {
	// Err, if set, is returned by every Set call.
	Err error

	history map[string][]float64
}

// Set implements the sweep.Setter interface.
func (s *SimulatedSource) Set(ctx context.Context, parameter, channel string, value float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Err != nil {
		return s.Err
	}
	if s.history == nil {
		s.history = make(map[string][]float64)
	}
	key := parameter + "/" + channel
	s.history[key] = append(s.history[key], value)
	return nil
}

// History returns the values parameter was set to on channel, oldest first.
func (s *SimulatedSource) History(parameter, channel string) []float64 {
	return s.history[parameter+"/"+channel]
}
