// seqc compiles a pulse sequence document for one synchroniser and prints the
// result: the instruction listing for a PulseBlaster, or a per-block summary
// of the waveform bundle for an AWG. With --baseline or --baseline-db an
// unchanged sequence is reported and not recompiled.
package main

import (
	"context"
	"fmt"
	"log"
	"io"
	"os"
	"text/template"

	"github.com/KarDB/QuPyt/qupyt"
	"github.com/KarDB/QuPyt/qupyt/awg"
	"github.com/KarDB/QuPyt/qupyt/cache"
	"github.com/KarDB/QuPyt/qupyt/hardware"
	"github.com/KarDB/QuPyt/qupyt/pulseblaster"
	"github.com/KarDB/QuPyt/qupyt/pulsestreamer"
	"github.com/KarDB/QuPyt/qupyt/sequence"
	"github.com/KarDB/QuPyt/qupyt/sweep"
	flag "github.com/spf13/pflag"
)

var (
	seqPath  = flag.String("sequence", "", "Path of the sequence document to compile.")
	target   = flag.String("target", "pulseblaster", "Synchroniser to compile for: awg, pulseblaster, pulsestreamer or mock.")
	channels = flag.StringToInt("channels", nil,
		"Channel mapping, e.g. LASER=1,READ=2. AWG rows for awg, flag bits for pulseblaster, outputs for pulsestreamer.")
	samprate   = flag.Float64("samprate", awg.DefaultOptions.SampleRate, "AWG sample rate in samples per second.")
	outputs    = flag.Int("outputs", awg.DefaultOptions.Outputs, "Number of physical AWG outputs.")
	clockMHz   = flag.Float64("clock-mhz", pulseblaster.DefaultOptions.ClockMHz, "PulseBlaster clock in MHz.")
	minCycles  = flag.Int("min-cycles", pulseblaster.DefaultOptions.MinInstructionCycles, "Minimum PulseBlaster instruction length in clock cycles.")
	psOutputs  = flag.Int("ps-outputs", pulsestreamer.DefaultOptions.Outputs, "Number of PulseStreamer digital outputs.")
	baseline   = flag.String("baseline", "", "File holding the previously compiled sequence.")
	baselineDB = flag.String("baseline-db", "", "SQLite database holding the previously compiled sequence, keyed by target.")
	out        = flag.String("out", "", "Write the compiled AWG bundle to this file.")
	strict     = flag.Bool("strict", false, "Fail on AWG times that are not a whole number of samples.")
	sweepPath  = flag.String("sweep", "", "Optional dynamic device configuration; its sweep table is printed after compiling.")
)

const (
	programTmpl = `{{range $i, $in := .Instructions}}{{$i}}	{{printf "0x%06x" $in.Flags}}	{{$in.Op}}	{{$in.Data}}	{{printf "%.6f" $in.Duration}}
{{end}}`
	bundleTmpl = `bundle {{.ID}} at {{.SampleRate}} S/s, {{.Samples}} samples per block
{{range .Names}}  {{.}}
{{end}}`
	patternTmpl = `{{range $o, $runs := .}}output {{$o}}:{{range $runs}} ({{.Duration}}, {{if .High}}1{{else}}0{{end}}){{end}}
{{end}}`
	statsTmpl = "blocks: {{.Blocks}}, samples: {{.Samples}}, instructions: {{.Instructions}}, warnings: {{.Warnings}}\n"
)

func main() {
	flag.Parse()
	if *seqPath == "" {
		log.Fatalf("--sequence is required")
	}
	kind, err := hardware.ParseKind(*target)
	if err != nil {
		log.Fatalf("Parsing --target: %v", err)
	}
	spec, err := sequence.ReadFile(*seqPath)
	if err != nil {
		log.Fatalf("Reading %s: %v", *seqPath, err)
	}

	store, closeStore, err := openStore(kind, *baseline, *baselineDB)
	if err != nil {
		log.Fatalf("Opening baseline: %v", err)
	}
	defer closeStore()

	a := &hardware.SimulatedAWG{}
	pb := &hardware.SimulatedPulseBlaster{}
	ps := &hardware.SimulatedPulseStreamer{}
	s, err := qupyt.NewSequencer(qupyt.SequencerOpts{
		Target:   kind,
		Channels: sequence.ChannelMap(*channels),
		Cache:    cache.New(store, nil),
		AWG: awg.Options{
			SampleRate:   *samprate,
			Outputs:      *outputs,
			StrictTiming: *strict,
		},
		PulseBlaster: pulseblaster.Options{
			ClockMHz:             *clockMHz,
			MinInstructionCycles: *minCycles,
		},
		PulseStreamer:       pulsestreamer.Options{Outputs: *psOutputs},
		AWGDevice:           a,
		PulseBlasterDevice:  pb,
		PulseStreamerDevice: ps,
	})
	if err != nil {
		log.Fatalf("Configuring sequencer: %v", err)
	}
	stats, err := s.Load(context.Background(), spec)
	if err != nil {
		log.Fatalf("Compiling %s: %v", *seqPath, err)
	}
	if stats.Skipped {
		fmt.Println("sequence unchanged")
		return
	}

	switch kind {
	case hardware.AWG:
		b := a.Uploads()[0]
		template.Must(template.New("bundle").Parse(bundleTmpl)).Execute(os.Stdout, b)
		if *out != "" {
			if err := awg.SaveBundle(*out, b); err != nil {
				log.Fatalf("Writing %s: %v", *out, err)
			}
		}
	case hardware.PulseBlaster:
		template.Must(template.New("program").Parse(programTmpl)).Execute(os.Stdout, pb.Programs()[0])
	case hardware.PulseStreamer:
		template.Must(template.New("patterns").Parse(patternTmpl)).Execute(os.Stdout, ps.Streams()[0])
	}
	template.Must(template.New("stats").Parse(statsTmpl)).Execute(os.Stdout, stats)

	if *sweepPath != "" {
		if err := printSweep(os.Stdout, *sweepPath); err != nil {
			log.Fatalf("Sweep %s: %v", *sweepPath, err)
		}
	}
}

// openStore returns the baseline store selected by the flags, preferring the
// database, and a function releasing it.
func openStore(kind hardware.Kind, file, db string) (cache.Store, func(), error) {
	switch {
	case db != "":
		s, err := cache.OpenSQLite(db, kind.String())
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case file != "":
		return &cache.FileStore{Path: file}, func() {}, nil
	}
	return &cache.MemoryStore{}, func() {}, nil
}

func printSweep(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cfg, err := sweep.DecodeDevices(f)
	if err != nil {
		return err
	}
	var st sweep.Stepper
	if err := st.Build(cfg.Devices, cfg.Steps); err != nil {
		return err
	}
	defer st.Release()
	for st.State() == sweep.Ready {
		i := st.Step()
		snap, err := st.Advance()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "step %d: %v\n", i, snap)
	}
	return nil
}
