package cache

import "github.com/KarDB/QuPyt/qupyt/sequence"

// A MemoryStore keeps the baseline in process memory.
type MemoryStore struct {
	spec *sequence.Spec
}

// Load implements the Store interface.
func (m *MemoryStore) Load() (*sequence.Spec, error) {
	if m.spec == nil {
		return nil, ErrNoBaseline
	}
	return m.spec.Clone(), nil
}

// Save implements the Store interface.
func (m *MemoryStore) Save(spec *sequence.Spec) error {
	m.spec = spec.Clone()
	return nil
}

// Clear implements the Store interface.
func (m *MemoryStore) Clear() error {
	m.spec = nil
	return nil
}
