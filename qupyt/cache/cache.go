// Package cache decides whether a pulse sequence must be recompiled by
// comparing it against the last sequence that was compiled.
package cache

import (
	"errors"
	"log"

	"github.com/KarDB/QuPyt/qupyt/sequence"
)

// ErrNoBaseline is returned by Store.Load when nothing has been saved yet.
var ErrNoBaseline = errors.New("no baseline sequence stored")

// A Store persists the baseline sequence.
type Store interface {
	// Load returns the saved baseline, or ErrNoBaseline.
	Load() (*sequence.Spec, error)
	Save(spec *sequence.Spec) error
	// Clear removes the baseline, if any.
	Clear() error
}

// A Cache gates compilation on changes to the sequence. It is owned by a
// single caller and is not safe for concurrent use.
type Cache struct {
	store Store
	log   *log.Logger
}

// New returns a Cache backed by store. A nil logger logs to log.Default().
func New(store Store, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{store: store, log: logger}
}

// ShouldRecompile reports whether spec differs from the baseline, and makes
// spec the new baseline either way. A missing or unreadable baseline counts as
// a change.
func (c *Cache) ShouldRecompile(spec *sequence.Spec) bool {
	prev, err := c.store.Load()
	switch {
	case errors.Is(err, ErrNoBaseline):
		prev = nil
	case err != nil:
		c.log.Printf("warning: reading sequence baseline: %v; recompiling", err)
		prev = nil
	}
	if err := c.store.Save(spec); err != nil {
		c.log.Printf("warning: saving sequence baseline: %v", err)
	}
	if prev == nil {
		return true
	}
	return !prev.Equal(spec)
}

// Invalidate drops the baseline so that the next ShouldRecompile reports a
// change. It is used when compiling or uploading the new baseline failed.
func (c *Cache) Invalidate() error {
	return c.store.Clear()
}
