package awg

import (
	"bytes"
	"testing"

	"github.com/KarDB/QuPyt/qupyt/bitmap"
)

// markerLine parses a string of '1's and '0's, ignoring spaces.
func markerLine(t *testing.T, s string) bitmap.Dense {
	t.Helper()
	var samples []float64
	for _, c := range s {
		switch c {
		case '1':
			samples = append(samples, 1)
		case '0':
			samples = append(samples, 0)
		case ' ':
		default:
			t.Fatalf("bugged test setup: invalid marker string %q", s)
		}
	}
	d, err := bitmap.FromSamples(samples)
	if err != nil {
		t.Fatalf("bugged test setup: %v", err)
	}
	return d
}

func TestPackMarkers(t *testing.T) {
	tcs := []struct {
		name    string
		markers [MarkersPerOutput]string
		want    []byte
	}{
		{"none", [4]string{"000", "000", "000", "000"}, []byte{0, 0, 0}},
		{"marker 0", [4]string{"100", "000", "000", "000"}, []byte{0x10, 0, 0}},
		{"marker 3", [4]string{"000", "000", "000", "001"}, []byte{0, 0, 0x80}},
		{"all", [4]string{"111", "011", "001", "101"}, []byte{0x90, 0x30, 0xF0}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var in [MarkersPerOutput]bitmap.Dense
			for k, s := range tc.markers {
				in[k] = markerLine(t, s)
			}
			got := PackMarkers(in)
			if !bytes.Equal(got, tc.want) {
				t.Errorf("PackMarkers(%v) == %x, want %x", tc.markers, got, tc.want)
			}
			for i, b := range got {
				if b&0x0F != 0 {
					t.Errorf("byte %d == %#x sets a low bit", i, b)
				}
			}
		})
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	in := [MarkersPerOutput]bitmap.Dense{
		markerLine(t, "10110000 1"),
		markerLine(t, "01001000 0"),
		markerLine(t, "00000000 1"),
		markerLine(t, "11111111 1"),
	}
	out := UnpackMarkers(PackMarkers(in))
	for k := range in {
		if out[k].Size() != in[k].Size() {
			t.Fatalf("marker %d has %d bits, want %d", k, out[k].Size(), in[k].Size())
		}
		for i := 0; i < in[k].Size(); i++ {
			if out[k].Get(i) != in[k].Get(i) {
				t.Errorf("marker %d bit %d == %t, want %t", k, i, out[k].Get(i), in[k].Get(i))
			}
		}
	}
}

func TestCheckMarkers(t *testing.T) {
	tcs := []struct {
		name    string
		packed  []byte
		wantErr bool
	}{
		{"empty", nil, false},
		{"markers only", []byte{0x10, 0xF0, 0x00, 0x80}, false},
		{"reserved bit", []byte{0x10, 0x01}, true},
		{"reserved nibble", []byte{0x0F}, true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if err := checkMarkers(tc.packed); (err != nil) != tc.wantErr {
				t.Errorf("checkMarkers(%x) == %v, want error: %t", tc.packed, err, tc.wantErr)
			}
		})
	}
}
