package awg

import (
	"bytes"
	"math"
	"net"
	"path/filepath"
	"testing"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/KarDB/QuPyt/qupyt/sequence"
)

func testBundle(t *testing.T) *Bundle {
	t.Helper()
	spec := &sequence.Spec{
		TotalDuration: sequence.Capped(0.05),
		Order:         []string{"ref", "sig", "ref"},
		Repeats:       []int{1, 20, 1},
		Blocks: []sequence.Block{
			{Name: "sig", Channels: []sequence.Channel{
				{Name: "MW_I", Pulses: []sequence.Pulse{{Start: 0.002, Duration: 0.02, Amplitude: 0.8, Frequency: 1e8, Phase: 0.5}}},
				{Name: "LASER", Pulses: []sequence.Pulse{{Start: 0.03, Duration: 0.01, Amplitude: 1}}},
			}},
			{Name: "ref", Channels: []sequence.Channel{
				{Name: "LASER", Pulses: []sequence.Pulse{{Start: 0.03, Duration: 0.01, Amplitude: 1}}},
			}},
		},
	}
	b, err := quietCompiler(t, Options{SampleRate: 1e9}).Compile(spec, sequence.ChannelMap{"MW_I": 0, "LASER": 3})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return b
}

func assertBundlesMatch(t *testing.T, got, want *Bundle) {
	t.Helper()
	if got.Hash != want.Hash {
		t.Errorf("Hash == %s, want %s", got.Hash, want.Hash)
	}
	if got.ID() != want.ID() {
		t.Errorf("ID() == %v, want %v", got.ID(), want.ID())
	}
	if got.SampleRate != want.SampleRate || got.Samples != want.Samples || got.Warnings != want.Warnings {
		t.Errorf("got rate %v samples %d warnings %d, want %v %d %d",
			got.SampleRate, got.Samples, got.Warnings, want.SampleRate, want.Samples, want.Warnings)
	}
	if len(got.Names) != len(want.Names) || len(got.Order) != len(want.Order) || len(got.Repeats) != len(want.Repeats) {
		t.Fatalf("got names %v order %v repeats %v, want %v %v %v",
			got.Names, got.Order, got.Repeats, want.Names, want.Order, want.Repeats)
	}
	for i := range want.Order {
		if got.Order[i] != want.Order[i] || got.Repeats[i] != want.Repeats[i] {
			t.Errorf("entry %d == %s×%d, want %s×%d", i, got.Order[i], got.Repeats[i], want.Order[i], want.Repeats[i])
		}
	}
	for _, name := range want.Names {
		gw, ww := got.Waveforms[name], want.Waveforms[name]
		if gw == nil {
			t.Fatalf("waveform %q missing", name)
		}
		for o := 0; o < ww.Outputs(); o++ {
			ga, wa := gw.Analog(o), ww.Analog(o)
			for i := range wa {
				if math.Abs(ga[i]-wa[i]) > 1e-6 {
					t.Fatalf("%s output %d sample %d == %v, want %v", name, o, i, ga[i], wa[i])
				}
			}
			if !bytes.Equal(gw.Markers(o), ww.Markers(o)) {
				t.Errorf("%s output %d markers differ", name, o)
			}
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	b := testBundle(t)
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got, err := UnmarshalBundle(data)
	if err != nil {
		t.Fatalf("UnmarshalBundle: %v", err)
	}
	assertBundlesMatch(t, got, b)
}

func TestUnmarshalDetectsTampering(t *testing.T) {
	b := testBundle(t)
	b.Repeats[1] = 21
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if _, err := UnmarshalBundle(data); failure.KindOf(err) != failure.Cache {
		t.Errorf("UnmarshalBundle error == %v, want cache error", err)
	}
	if _, err := UnmarshalBundle([]byte{0xFF}); failure.KindOf(err) != failure.Cache {
		t.Errorf("UnmarshalBundle(garbage) error == %v, want cache error", err)
	}
}

func TestUnmarshalRejectsReservedMarkerBits(t *testing.T) {
	b := testBundle(t)
	b.Waveforms["ref"].Rows.Set(1, 0, 0x11)
	b.Hash = b.contentHash()
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if _, err := UnmarshalBundle(data); failure.KindOf(err) != failure.Cache {
		t.Errorf("UnmarshalBundle error == %v, want cache error", err)
	}
}

func TestSendReceive(t *testing.T) {
	l, r := net.Pipe()
	b := testBundle(t)

	// net.Pipe() doesn't do any sort of buffering, so we perform these
	// operations asynchronously.
	wErr := make(chan error, 1)
	rErr := make(chan error, 1)
	var got *Bundle
	go func() { wErr <- WriteBundle(l, b) }()
	go func() {
		var err error
		got, err = ReadBundle(r)
		rErr <- err
	}()

	if err := <-wErr; err != nil {
		t.Fatalf("error writing bundle: %v", err)
	}
	if err := <-rErr; err != nil {
		t.Fatalf("error reading bundle: %v", err)
	}
	assertBundlesMatch(t, got, b)
}

func TestDigestVerification(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBundle(&buf, testBundle(t)); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	data := buf.Bytes()
	data[10] ^= 0x01
	if _, err := ReadBundle(bytes.NewReader(data)); failure.KindOf(err) != failure.Cache {
		t.Errorf("ReadBundle of corrupt frame: %v, want cache error", err)
	}
}

func TestSaveLoadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sequence.bundle")
	b := testBundle(t)
	if err := SaveBundle(path, b); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	got, err := LoadBundle(path)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	assertBundlesMatch(t, got, b)
}
