// Package refs reads references from a repoSpanner server. The full listing
// is fetched once per backend, parsed as it streams in, and cached in a
// name-sorted table.
package refs

import (
	"github.com/emirpasic/gods/maps/treemap"

	"github.com/wolfeidau/repospanner"
)

// Reference is a named pointer to an object. Symbolic references are stored
// already resolved, so Target always holds an object id.
type Reference struct {
	Name   string
	Target repospanner.ObjectID

	// Peeled and Flags are reserved and never populated.
	Peeled repospanner.ObjectID
	Flags  uint8
}

// Table is a name-sorted collection of references. It is not safe for
// concurrent use; Cache provides the locking.
type Table struct {
	m *treemap.Map
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{m: treemap.NewWithStringComparator()}
}

// Upsert inserts ref, replacing any existing entry with the same name.
func (t *Table) Upsert(ref Reference) {
	t.m.Put(ref.Name, ref)
}

// Get returns the reference stored under name.
func (t *Table) Get(name string) (Reference, bool) {
	v, ok := t.m.Get(name)
	if !ok {
		return Reference{}, false
	}
	return v.(Reference), true
}

// Len returns the number of references.
func (t *Table) Len() int {
	return t.m.Size()
}

// Each calls fn for every reference in name order until fn returns false.
func (t *Table) Each(fn func(Reference) bool) {
	it := t.m.Iterator()
	for it.Next() {
		if !fn(it.Value().(Reference)) {
			return
		}
	}
}

// Copy returns an independent copy of the table.
func (t *Table) Copy() *Table {
	cp := NewTable()
	t.Each(func(ref Reference) bool {
		cp.m.Put(ref.Name, ref)
		return true
	})
	return cp
}

func (t *Table) iterator() treemap.Iterator {
	return t.m.Iterator()
}
