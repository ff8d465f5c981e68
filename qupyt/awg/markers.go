package awg

import (
	"fmt"

	"github.com/KarDB/QuPyt/qupyt/bitmap"
)

// markerShift is the bit of the packed byte that carries marker 0.
const markerShift = 4

// PackMarkers combines the marker lines of one output into a byte per sample.
// Marker k sets bit 4+k; bits 0-3 are always clear.
func PackMarkers(markers [MarkersPerOutput]bitmap.Dense) []byte {
	var n int
	for _, m := range markers {
		if m.Size() > n {
			n = m.Size()
		}
	}
	r := make([]byte, n)
	for k, m := range markers {
		for i := 0; i < m.Size(); i++ {
			if m.Get(i) {
				r[i] |= 1 << (markerShift + k)
			}
		}
	}
	return r
}

// UnpackMarkers is the inverse of PackMarkers.
func UnpackMarkers(packed []byte) [MarkersPerOutput]bitmap.Dense {
	var r [MarkersPerOutput]bitmap.Dense
	for k := range r {
		r[k] = bitmap.NewDense(nil, len(packed))
		for i, b := range packed {
			if b&(1<<(markerShift+k)) != 0 {
				r[k].Set(i, true)
			}
		}
	}
	return r
}

// checkMarkers rejects packed marker bytes that set any of bits 0-3.
func checkMarkers(packed []byte) error {
	var set int
	for _, m := range UnpackMarkers(packed) {
		set += bitmap.CountOnes(m)
	}
	if all := bitmap.CountOnes(bitmap.NewDense(packed, -1)); all != set {
		return fmt.Errorf("%d reserved marker bits set", all-set)
	}
	return nil
}
