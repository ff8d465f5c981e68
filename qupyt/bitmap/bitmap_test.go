package bitmap

import (
	"testing"
)

// mustDense parses a string of '1's and '0's, ignoring spaces.
func mustDense(t *testing.T, s string) Dense {
	t.Helper()
	var on []int
	n := 0
	for _, c := range s {
		switch c {
		case '1':
			on = append(on, n)
			n++
		case '0':
			n++
		case ' ':
		default:
			t.Fatalf("bugged test setup: invalid bitmap string rep: %s", s)
		}
	}
	d := NewDense(nil, n)
	for _, i := range on {
		d.Set(i, true)
	}
	return d
}

func sameBits(a, b Dense) bool {
	if a.Size() != b.Size() {
		return false
	}
	for i := 0; i < a.Size(); i++ {
		if a.Get(i) != b.Get(i) {
			return false
		}
	}
	return true
}

func TestFromSamples(t *testing.T) {
	tcs := []struct {
		name    string
		samples []float64
		eout    Dense
		wantErr bool
	}{
		{"empty", nil, Dense{}, false},
		{"aligned", []float64{1, 0, 1, 0, 1, 0, 1, 0}, mustDense(t, "10101010"), false},
		{"multibyte", []float64{0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 1}, mustDense(t, "00000000 101"), false},
		{"non binary", []float64{0, 0.5}, Dense{}, true},
		{"negative", []float64{-1}, Dense{}, true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out, err := FromSamples(tc.samples)
			if (err != nil) != tc.wantErr {
				t.Fatalf("FromSamples(%v) error == %v, want error: %t", tc.samples, err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if !sameBits(out, tc.eout) {
				t.Errorf("FromSamples(%v) == %v, want %v", tc.samples, out, tc.eout)
			}
		})
	}
}

func TestCountOnes(t *testing.T) {
	tcs := []struct {
		name string
		data Dense
		want int
	}{
		{"empty", Dense{}, 0},
		{"aligned", mustDense(t, "10101010"), 4},
		{"unaligned", mustDense(t, "11111111 101"), 10},
		{"masked tail", NewDense([]byte{0xFF}, 3), 3},
		{"inferred length", NewDense([]byte{0xF0, 0x01}, -1), 5},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if got := CountOnes(tc.data); got != tc.want {
				t.Errorf("CountOnes(%v) == %d, want %d", tc.data, got, tc.want)
			}
		})
	}
}

func TestBytesFor(t *testing.T) {
	for bits, want := range map[int]int{0: 0, 1: 1, 8: 1, 9: 2, 16: 2} {
		if got := bytesFor(bits); got != want {
			t.Errorf("bytesFor(%d) == %d, want %d", bits, got, want)
		}
	}
	if d := NewDense(nil, 9); d.SizeBytes() != 2 || len(d.bits) != 2 {
		t.Errorf("NewDense(nil, 9) holds %d bytes", len(d.bits))
	}
}
