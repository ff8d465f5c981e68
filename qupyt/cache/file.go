package cache

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/KarDB/QuPyt/qupyt/failure"
	"github.com/KarDB/QuPyt/qupyt/sequence"
)

// A FileStore keeps the baseline as a sequence document on disk, usually next
// to the sequence it shadows.
type FileStore struct {
	Path string
}

// Load implements the Store interface.
func (f *FileStore) Load() (*sequence.Spec, error) {
	spec, err := sequence.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, ErrNoBaseline
	}
	if err != nil {
		return nil, failure.Wrap(failure.Cache, "load baseline", err)
	}
	return spec, nil
}

// Save implements the Store interface. The document is written to a temporary
// file and renamed into place.
func (f *FileStore) Save(spec *sequence.Spec) error {
	tmp, err := ioutil.TempFile(filepath.Dir(f.Path), filepath.Base(f.Path)+".*")
	if err != nil {
		return failure.Wrap(failure.Cache, "save baseline", err)
	}
	defer os.Remove(tmp.Name())
	if err := sequence.Encode(tmp, spec); err != nil {
		tmp.Close()
		return failure.Wrap(failure.Cache, "save baseline", err)
	}
	if err := tmp.Close(); err != nil {
		return failure.Wrap(failure.Cache, "save baseline", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return failure.Wrap(failure.Cache, "save baseline", err)
	}
	return nil
}

// Clear implements the Store interface.
func (f *FileStore) Clear() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return failure.Wrap(failure.Cache, "clear baseline", err)
	}
	return nil
}
