package transform

import "sort"

// UnmatchedKind names the dimension hop that missed.
type UnmatchedKind string

const (
	UnmatchedJob      UnmatchedKind = "job_number"
	UnmatchedLocation UnmatchedKind = "location"
	UnmatchedBuilding UnmatchedKind = "building_code"
	UnmatchedEMID     UnmatchedKind = "emid"
	UnmatchedInvoice  UnmatchedKind = "invoice_no"
)

// Unmatched is one distinct key that no dimension table knew, with the
// number of rows that carried it.
type Unmatched struct {
	Kind      UnmatchedKind
	Key       string
	InvoiceNo string // first invoice seen with the key
	FirstRow  int
	Rows      int
}

// UnmatchedSet collects dimension misses for diagnostics.
type UnmatchedSet struct {
	byKey map[string]*Unmatched
}

func NewUnmatchedSet() *UnmatchedSet {
	return &UnmatchedSet{byKey: make(map[string]*Unmatched)}
}

func (s *UnmatchedSet) Add(kind UnmatchedKind, key, invoiceNo string, row int) {
	if key == "" {
		return
	}
	k := string(kind) + "|" + key
	if u, ok := s.byKey[k]; ok {
		u.Rows++
		return
	}
	s.byKey[k] = &Unmatched{Kind: kind, Key: key, InvoiceNo: invoiceNo, FirstRow: row, Rows: 1}
}

func (s *UnmatchedSet) Len() int { return len(s.byKey) }

// Has reports whether key was recorded under kind.
func (s *UnmatchedSet) Has(kind UnmatchedKind, key string) bool {
	_, ok := s.byKey[string(kind)+"|"+key]
	return ok
}

// List returns the entries sorted by kind then key.
func (s *UnmatchedSet) List() []Unmatched {
	out := make([]Unmatched, 0, len(s.byKey))
	for _, u := range s.byKey {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Key < out[j].Key
	})
	return out
}
