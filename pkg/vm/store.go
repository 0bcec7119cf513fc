package vm

import (
	"errors"
	"fmt"
)

// Deferred store errors.
var (
	ErrStoreDuplicate = errors.New("start already deferred for this map and script")
	ErrStoreFull      = errors.New("deferred start store is full")
)

// StoreEntry is a start request for a map that is not loaded.
type StoreEntry struct {
	Map    int     `cbor:"map"`
	Script int32   `cbor:"script"`
	Args   [4]byte `cbor:"args"`
}

// DeferredStore holds cross-map start requests until their map loads.
// It lives in the Session and survives map transitions.
type DeferredStore struct {
	entries []StoreEntry
	max     int
}

// NewDeferredStore creates a store holding at most max entries.
// A non-positive max means unbounded.
func NewDeferredStore(max int) *DeferredStore {
	return &DeferredStore{max: max}
}

// Add queues e. Duplicates of the same (map, script) pair are rejected.
func (d *DeferredStore) Add(e StoreEntry) error {
	for _, x := range d.entries {
		if x.Map == e.Map && x.Script == e.Script {
			return fmt.Errorf("map %d script %d: %w", e.Map, e.Script, ErrStoreDuplicate)
		}
	}
	if d.max > 0 && len(d.entries) >= d.max {
		return fmt.Errorf("%d entries: %w", d.max, ErrStoreFull)
	}
	d.entries = append(d.entries, e)
	return nil
}

// Take removes and returns every entry for mapID, in insertion order.
func (d *DeferredStore) Take(mapID int) []StoreEntry {
	var taken []StoreEntry
	kept := d.entries[:0]
	for _, e := range d.entries {
		if e.Map == mapID {
			taken = append(taken, e)
		} else {
			kept = append(kept, e)
		}
	}
	clear(d.entries[len(kept):])
	d.entries = kept
	return taken
}

// Entries returns a copy of the queued entries.
func (d *DeferredStore) Entries() []StoreEntry {
	out := make([]StoreEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len returns the number of queued entries.
func (d *DeferredStore) Len() int {
	return len(d.entries)
}

// Clear drops every entry.
func (d *DeferredStore) Clear() {
	d.entries = nil
}
