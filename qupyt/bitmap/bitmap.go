// Package bitmap provides densely-packed arrays of booleans, used to carry
// digital marker lines alongside analog waveforms.
package bitmap

import (
	"fmt"
	"math/bits"
)

const byteSize = 8

// FromSamples converts a rasterized marker line to a Dense. Every sample must
// be exactly 0 or 1.
func FromSamples(samples []float64) (Dense, error) {
	d := NewDense(nil, len(samples))
	for i, v := range samples {
		switch v {
		case 0:
		case 1:
			d.Set(i, true)
		default:
			return Dense{}, fmt.Errorf("marker sample %d is %v, want 0 or 1", i, v)
		}
	}
	return d, nil
}

// CountOnes returns the total number of bits set in d.
func CountOnes(d Dense) int {
	var sum int
	for i := 0; i < d.SizeBytes(); i++ {
		sum += bits.OnesCount8(d.byteAt(i))
	}
	return sum
}

func bytesFor(bits int) int {
	return (bits + byteSize - 1) / byteSize
}
