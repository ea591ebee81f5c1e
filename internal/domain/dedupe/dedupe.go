// Package dedupe provides a bounded in-memory duplicate filter used to reject
// replayed conversion webhooks before they reach the store. The store's
// unique index stays the source of truth; this filter just short-circuits the
// common case.
package dedupe

import "sync"

// Deduper remembers recently seen keys up to a fixed capacity, evicting the
// oldest key once full.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded, recording it
	// either way.
	SeenAndRecord(key string) bool
	// Size returns the number of remembered keys.
	Size() int
}

type deduper struct {
	mu    sync.Mutex
	set   map[string]struct{}
	order []string
	head  int
	full  bool
}

// New builds a Deduper holding up to capacity keys.
func New(capacity int) Deduper {
	if capacity < 1 {
		capacity = 1
	}
	return &deduper{
		set:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
	}
}

func (d *deduper) SeenAndRecord(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.set[key]; ok {
		return true
	}
	if d.full {
		delete(d.set, d.order[d.head])
	}
	d.order[d.head] = key
	d.head++
	if d.head == len(d.order) {
		d.head = 0
		d.full = true
	}
	d.set[key] = struct{}{}
	return false
}

func (d *deduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.set)
}
