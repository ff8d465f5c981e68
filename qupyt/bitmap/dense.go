package bitmap

// A Dense is a bitmap where every bit is explicitly represented.
type Dense struct {
	bits []byte
	len  int
}

// NewDense returns a new dense bitmap whose contents are a view of data, and
// whose length is bitLen. If bitLen is longer than data, then trailing zeros
// are added. If bitLen is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	r := Dense{
		bits: data,
		len:  bitLen,
	}
	for len(r.bits) < r.SizeBytes() {
		r.bits = append(r.bits, 0)
	}
	return r
}

// Get returns the i-th bit in this bitmap.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	j, pos := i/byteSize, i%byteSize
	return 0 < d.bits[j]&(1<<pos)
}

// Size returns the number of bits in this bitmap.
func (d Dense) Size() int {
	return d.len
}

// SizeBytes returns the number of bytes needed to hold this bitmap.
func (d Dense) SizeBytes() int {
	return bytesFor(d.len)
}

// Set sets the i-th bit to bit. It panics if i is out of range.
func (d *Dense) Set(i int, bit bool) {
	j, pos := i/byteSize, i%byteSize
	if bit {
		d.bits[j] |= 1 << pos
	} else {
		d.bits[j] &= ^(1 << pos)
	}
}

// byteAt returns the i-th byte with bits past the end masked off.
func (d Dense) byteAt(i int) byte {
	b := d.bits[i]
	if i == d.SizeBytes()-1 {
		if off := d.len % byteSize; off != 0 {
			b &= 0xFF >> (byteSize - off)
		}
	}
	return b
}
