// bench.go compiles a synthetic pulse sequence for each entry in the cartesian
// product of a collection of different tuning parameters, e.g. sample rate and
// pulses per block, and outputs a CSV of relevant statistics for each
// different combination, e.g. compile time and bundle size.
package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/KarDB/QuPyt/qupyt/awg"
	"github.com/KarDB/QuPyt/qupyt/pulseblaster"
	"github.com/KarDB/QuPyt/qupyt/sequence"
	flag "github.com/spf13/pflag"
)

var (
	samprates = flag.Float64Slice("samprates", []float64{1.2e9, 5e9}, "AWG sample rates in samples per second.")
	blocks    = flag.IntSlice("blocks", []int{2}, "The number of distinct blocks in the sequence.")
	pulses    = flag.IntSlice("pulses", []int{10, 100}, "The number of pulses per channel in each block.")
	spacing   = flag.Float64Slice("spacing", []float64{0.1}, "The pulse period in µs.")
)

var (
	inputs  = []string{"samprates", "blocks", "pulses", "spacing"}
	columns = []string{"SampleRate", "Blocks", "Pulses", "Spacing",
		"Samples", "BundleBytes", "AWGMillis", "Instructions", "PBMillis",
		"Warnings", "Succeeded"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	SampleRate float64
	Blocks     int
	Pulses     int
	Spacing    float64

	// Fields corresponding to experiment results
	Samples      int
	BundleBytes  int
	AWGMillis    float64
	Instructions int
	PBMillis     float64
	Warnings     int
	Succeeded    bool
}

func main() {
	flag.Parse()
	fmt.Println(header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(inp))
	}
	applyCartesian(func(args []interface{}) {
		exp := &Experiment{
			SampleRate: args[inpIndex("samprates")].(float64),
			Blocks:     args[inpIndex("blocks")].(int),
			Pulses:     args[inpIndex("pulses")].(int),
			Spacing:    args[inpIndex("spacing")].(float64),
		}
		if err := bench(exp); err != nil {
			log.Printf("Benching %+v: %v", exp, err)
		}
		if err := tmpl.Execute(os.Stdout, exp); err != nil {
			log.Fatalf("BUG: could not fill in line template: %v", err)
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

// synthetic returns a sequence with exp.Blocks blocks, each holding
// exp.Pulses laser and readout pulses, plus carrier pulses when withCarrier.
func synthetic(exp *Experiment, withCarrier bool) (*sequence.Spec, error) {
	b := sequence.NewBuilder(sequence.Capped(exp.Spacing * float64(exp.Pulses+1)))
	var order []string
	var repeats []int
	for i := 0; i < exp.Blocks; i++ {
		name := fmt.Sprintf("block_%d", i)
		for k := 0; k < exp.Pulses; k++ {
			t := exp.Spacing * float64(k)
			b.AddPulse("LASER", t, exp.Spacing/2, name)
			b.AddPulse("READ", t+exp.Spacing/2, exp.Spacing/4, name)
			if withCarrier {
				b.Add("MW_I", sequence.Pulse{
					Start:     t,
					Duration:  exp.Spacing / 2,
					Amplitude: 0.5,
					Frequency: 1e8 * float64(i+1),
				}, name)
			}
		}
		order = append(order, name)
		repeats = append(repeats, i+1)
	}
	b.Sequencing(order, repeats)
	return b.Build()
}

func bench(exp *Experiment) error {
	spec, err := synthetic(exp, true)
	if err != nil {
		return err
	}
	discard := log.New(ioutil.Discard, "", 0)
	ac, err := awg.NewCompiler(awg.Options{SampleRate: exp.SampleRate, Logger: discard})
	if err != nil {
		return err
	}
	start := time.Now()
	bundle, err := ac.Compile(spec, sequence.ChannelMap{"MW_I": 0, "LASER": 1, "READ": 2})
	if err != nil {
		return err
	}
	exp.AWGMillis = float64(time.Since(start).Microseconds()) / 1e3
	exp.Samples = bundle.Samples
	data, err := bundle.MarshalBinary()
	if err != nil {
		return err
	}
	exp.BundleBytes = len(data)

	spec, err = synthetic(exp, false)
	if err != nil {
		return err
	}
	pc, err := pulseblaster.NewCompiler(pulseblaster.Options{Logger: discard})
	if err != nil {
		return err
	}
	start = time.Now()
	prog, err := pc.Compile(spec, sequence.ChannelMap{"LASER": 0, "READ": 1})
	if err != nil {
		return err
	}
	exp.PBMillis = float64(time.Since(start).Microseconds()) / 1e3
	exp.Instructions = len(prog.Instructions)
	exp.Warnings = ac.Warnings() + pc.Warnings()
	exp.Succeeded = true
	return nil
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatalf("Unknown type for input %s", name)
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
