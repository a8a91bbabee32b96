package lookup

import (
	"fmt"

	"InvoiceRecon/internal/normalize"
)

// Conflict records a reference row whose key was already taken. The first
// row seen is kept; the rejected one is reported for clean-up.
type Conflict struct {
	Table       string
	Key         string
	KeptRow     int
	RejectedRow int
	Kept        string
	Rejected    string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s key %q: kept row %d (%s), rejected row %d (%s)",
		c.Table, c.Key, c.KeptRow, c.Kept, c.RejectedRow, c.Rejected)
}

type slot[T any] struct {
	entry T
	row   int
}

// Index is a first-occurrence-wins map from a normalized key to an entry.
type Index[T comparable] struct {
	table     string
	entries   map[string]slot[T]
	conflicts []Conflict
	// same decides whether a repeated key carries the same data. Repeats of
	// the same data are not conflicts.
	same func(a, b T) bool
}

// NewIndex returns an empty index named after its reference table.
func NewIndex[T comparable](table string) *Index[T] {
	return &Index[T]{
		table:   table,
		entries: make(map[string]slot[T]),
		same:    func(a, b T) bool { return a == b },
	}
}

// Add stores e under key unless the key is blank or already present. It
// returns the conflict when an existing entry with different data wins.
func (ix *Index[T]) Add(key string, e T, row int) (*Conflict, bool) {
	k := normalize.NormalizeKey(key)
	if k == "" {
		return nil, false
	}
	prev, exists := ix.entries[k]
	if !exists {
		ix.entries[k] = slot[T]{entry: e, row: row}
		return nil, true
	}
	if ix.same(prev.entry, e) {
		return nil, false
	}
	c := Conflict{
		Table:       ix.table,
		Key:         k,
		KeptRow:     prev.row,
		RejectedRow: row,
		Kept:        fmt.Sprintf("%+v", prev.entry),
		Rejected:    fmt.Sprintf("%+v", e),
	}
	ix.conflicts = append(ix.conflicts, c)
	return &c, false
}

// Get looks key up after normalization. A miss is not an error.
func (ix *Index[T]) Get(key string) (T, bool) {
	s, ok := ix.entries[normalize.NormalizeKey(key)]
	return s.entry, ok
}

func (ix *Index[T]) Len() int { return len(ix.entries) }

func (ix *Index[T]) Table() string { return ix.table }

// Conflicts returns the rejected rows in the order they were seen.
func (ix *Index[T]) Conflicts() []Conflict {
	out := make([]Conflict, len(ix.conflicts))
	copy(out, ix.conflicts)
	return out
}
