package awg

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/encoding/protowire"
)

// A Waveform is the compiled form of one block. Rows holds, for every output
// o, the analog samples in row 2o and the packed markers in row 2o+1.
type Waveform struct {
	Name string
	Rows *mat.Dense
}

// Outputs returns the number of physical outputs w drives.
func (w *Waveform) Outputs() int {
	r, _ := w.Rows.Dims()
	return r / 2
}

// Samples returns the number of samples per row.
func (w *Waveform) Samples() int {
	_, c := w.Rows.Dims()
	return c
}

// Analog returns a copy of the analog samples of output o.
func (w *Waveform) Analog(o int) []float64 {
	return mat.Row(nil, 2*o, w.Rows)
}

// Markers returns the packed marker bytes of output o.
func (w *Waveform) Markers(o int) []byte {
	row := w.Rows.RawRowView(2*o + 1)
	r := make([]byte, len(row))
	for i, v := range row {
		r[i] = byte(v)
	}
	return r
}

// A Bundle is a compiled AWG program: one waveform per distinct block plus the
// playback order.
type Bundle struct {
	Waveforms map[string]*Waveform
	// Names lists the keys of Waveforms, sorted.
	Names      []string
	Order      []string
	Repeats    []int
	SampleRate float64
	Samples    int
	// Warnings counts the off-grid times seen during compilation.
	Warnings int
	// Hash identifies the bundle contents, as a hex sha1.
	Hash string
}

// ID returns a stable name under which the bundle can be uploaded. Bundles
// with equal hashes share an ID.
func (b *Bundle) ID() uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("qupyt:awg:"+b.Hash))
}

// contentHash is sha1 over the hex digests of the serialized samples, the
// repeat list and the order list.
func (b *Bundle) contentHash() string {
	samples := sha1.New()
	for _, name := range b.Names {
		w := b.Waveforms[name]
		for o := 0; o < w.Outputs(); o++ {
			samples.Write(encodeAnalog(w.Rows.RawRowView(2 * o)))
			samples.Write(w.Markers(o))
		}
	}
	h1 := hex.EncodeToString(samples.Sum(nil))
	h2 := hexSHA1(fmt.Sprint(b.Repeats))
	h3 := hexSHA1(fmt.Sprint(b.Order))
	return hexSHA1(h1 + h2 + h3)
}

func hexSHA1(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Analog samples travel as 32-bit floats, the resolution of the instrument.
func encodeAnalog(row []float64) []byte {
	r := make([]byte, 4*len(row))
	for i, v := range row {
		binary.LittleEndian.PutUint32(r[4*i:], math.Float32bits(float32(v)))
	}
	return r
}

func decodeAnalog(data []byte) []float64 {
	r := make([]float64, len(data)/4)
	for i := range r {
		r[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	return r
}

const (
	bundleWaveform   protowire.Number = 1
	bundleOrder      protowire.Number = 2
	bundleRepeats    protowire.Number = 3
	bundleSampleRate protowire.Number = 4
	bundleHash       protowire.Number = 5
	bundleWarnings   protowire.Number = 6

	waveformName    protowire.Number = 1
	waveformSamples protowire.Number = 2
	waveformAnalog  protowire.Number = 3
	waveformMarkers protowire.Number = 4
)

// MarshalBinary encodes b in protocol buffer wire format.
func (b *Bundle) MarshalBinary() ([]byte, error) {
	var buf []byte
	for _, name := range b.Names {
		w, ok := b.Waveforms[name]
		if !ok {
			return nil, fmt.Errorf("bundle lists waveform %q but does not hold it", name)
		}
		buf = protowire.AppendTag(buf, bundleWaveform, protowire.BytesType)
		buf = protowire.AppendBytes(buf, marshalWaveform(w))
	}
	for _, name := range b.Order {
		buf = protowire.AppendTag(buf, bundleOrder, protowire.BytesType)
		buf = protowire.AppendString(buf, name)
	}
	var packed []byte
	for _, r := range b.Repeats {
		packed = protowire.AppendVarint(packed, uint64(r))
	}
	buf = protowire.AppendTag(buf, bundleRepeats, protowire.BytesType)
	buf = protowire.AppendBytes(buf, packed)
	buf = protowire.AppendTag(buf, bundleSampleRate, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(b.SampleRate))
	buf = protowire.AppendTag(buf, bundleHash, protowire.BytesType)
	buf = protowire.AppendString(buf, b.Hash)
	buf = protowire.AppendTag(buf, bundleWarnings, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(b.Warnings))
	return buf, nil
}

func marshalWaveform(w *Waveform) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, waveformName, protowire.BytesType)
	buf = protowire.AppendString(buf, w.Name)
	buf = protowire.AppendTag(buf, waveformSamples, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(w.Samples()))
	for o := 0; o < w.Outputs(); o++ {
		buf = protowire.AppendTag(buf, waveformAnalog, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeAnalog(w.Rows.RawRowView(2*o)))
		buf = protowire.AppendTag(buf, waveformMarkers, protowire.BytesType)
		buf = protowire.AppendBytes(buf, w.Markers(o))
	}
	return buf
}

// UnmarshalBundle decodes a bundle written by MarshalBinary and checks its
// hash against the decoded contents.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	const op = "decode bundle"
	b := &Bundle{Waveforms: make(map[string]*Waveform)}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, failure.Wrap(failure.Cache, op, protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == bundleWaveform && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, failure.Wrap(failure.Cache, op, protowire.ParseError(n))
			}
			w, err := unmarshalWaveform(v)
			if err != nil {
				return nil, failure.Wrap(failure.Cache, op, err)
			}
			if _, dup := b.Waveforms[w.Name]; dup {
				return nil, failure.New(failure.Cache, op, "duplicate waveform %q", w.Name)
			}
			b.Waveforms[w.Name] = w
			b.Names = append(b.Names, w.Name)
			data = data[n:]
		case num == bundleOrder && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, failure.Wrap(failure.Cache, op, protowire.ParseError(n))
			}
			b.Order = append(b.Order, v)
			data = data[n:]
		case num == bundleRepeats && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, failure.Wrap(failure.Cache, op, protowire.ParseError(n))
			}
			for len(v) > 0 {
				r, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return nil, failure.Wrap(failure.Cache, op, protowire.ParseError(m))
				}
				b.Repeats = append(b.Repeats, int(r))
				v = v[m:]
			}
			data = data[n:]
		case num == bundleSampleRate && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, failure.Wrap(failure.Cache, op, protowire.ParseError(n))
			}
			b.SampleRate = math.Float64frombits(v)
			data = data[n:]
		case num == bundleHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, failure.Wrap(failure.Cache, op, protowire.ParseError(n))
			}
			b.Hash = v
			data = data[n:]
		case num == bundleWarnings && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, failure.Wrap(failure.Cache, op, protowire.ParseError(n))
			}
			b.Warnings = int(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, failure.Wrap(failure.Cache, op, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	sort.Strings(b.Names)
	for _, name := range b.Names {
		if b.Samples == 0 {
			b.Samples = b.Waveforms[name].Samples()
		}
		if s := b.Waveforms[name].Samples(); s != b.Samples {
			return nil, failure.New(failure.Cache, op, "waveform %q has %d samples, want %d", name, s, b.Samples)
		}
	}
	if h := b.contentHash(); h != b.Hash {
		return nil, failure.New(failure.Cache, op, "content hash %s does not match recorded hash %s", h, b.Hash)
	}
	return b, nil
}

func unmarshalWaveform(data []byte) (*Waveform, error) {
	var (
		name    string
		samples int
		analog  [][]float64
		markers [][]byte
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == waveformName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			name = v
			data = data[n:]
		case num == waveformSamples && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			samples = int(v)
			data = data[n:]
		case num == waveformAnalog && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			analog = append(analog, decodeAnalog(v))
			data = data[n:]
		case num == waveformMarkers && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			if err := checkMarkers(v); err != nil {
				return nil, fmt.Errorf("waveform %q: %w", name, err)
			}
			markers = append(markers, append([]byte(nil), v...))
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	if samples <= 0 || len(analog) == 0 {
		return nil, fmt.Errorf("waveform %q is empty", name)
	}
	if len(analog) != len(markers) {
		return nil, fmt.Errorf("waveform %q has %d analog rows but %d marker rows", name, len(analog), len(markers))
	}
	rows := mat.NewDense(2*len(analog), samples, nil)
	for o := range analog {
		if len(analog[o]) != samples || len(markers[o]) != samples {
			return nil, fmt.Errorf("waveform %q output %d: row length does not match %d samples", name, o, samples)
		}
		rows.SetRow(2*o, analog[o])
		mrow := rows.RawRowView(2*o + 1)
		for i, v := range markers[o] {
			mrow[i] = float64(v)
		}
	}
	return &Waveform{Name: name, Rows: rows}, nil
}
