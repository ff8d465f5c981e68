package awg

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"io"
	"os"

	"github.com/KarDB/QuPyt/qupyt/failure"
)

// maxFrame bounds the length prefix accepted by ReadBundle.
const maxFrame = 1 << 30

// WriteBundle writes b to w as a single frame. The structure of the frame is
// trivial: length | bundle | sha1(bundle)
func WriteBundle(w io.Writer, b *Bundle) error {
	marshalled, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(marshalled))); err != nil {
		return err
	}
	if _, err := w.Write(marshalled); err != nil {
		return err
	}
	digest := sha1.Sum(marshalled)
	if _, err := w.Write(digest[:]); err != nil {
		return err
	}
	return nil
}

// ReadBundle reads a frame written by WriteBundle.
func ReadBundle(r io.Reader) (*Bundle, error) {
	const op = "read bundle"
	var mLen int32
	if err := binary.Read(r, binary.LittleEndian, &mLen); err != nil {
		return nil, err
	}
	if mLen < 0 || mLen > maxFrame {
		return nil, failure.New(failure.Cache, op, "invalid frame length %d", mLen)
	}
	marshalled := make([]byte, mLen)
	if _, err := io.ReadFull(r, marshalled); err != nil {
		return nil, err
	}
	digest := make([]byte, sha1.Size)
	if _, err := io.ReadFull(r, digest); err != nil {
		return nil, err
	}
	if edigest := sha1.Sum(marshalled); !bytes.Equal(digest, edigest[:]) {
		return nil, failure.New(failure.Cache, op, "invalid digest: got %x, expected %x", digest, edigest)
	}
	return UnmarshalBundle(marshalled)
}

// SaveBundle writes b to the file at path.
func SaveBundle(path string, b *Bundle) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteBundle(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadBundle reads the bundle stored at path.
func LoadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBundle(f)
}
