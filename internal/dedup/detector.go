// Package dedup filters -ORG invoices and classifies detail records as new,
// duplicate or ambiguous under a configurable identity policy.
package dedup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"InvoiceRecon/internal/model"
)

// InBatchMode decides what happens when records in one file share a key.
type InBatchMode string

const (
	// KeepFirst treats the first record of a colliding group as new.
	KeepFirst InBatchMode = "keep_first"
	// FlagAll sends every member of a colliding group to review.
	FlagAll InBatchMode = "flag_all"
)

func ParseInBatchMode(s string) (InBatchMode, error) {
	switch m := InBatchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case KeepFirst, FlagAll:
		return m, nil
	}
	return "", fmt.Errorf("unknown in-batch mode %q (expected keep_first or flag_all)", s)
}

type Verdict string

const (
	New       Verdict = "NEW"
	Duplicate Verdict = "DUPLICATE"
	Ambiguous Verdict = "AMBIGUOUS"
)

// Classified is a record with its verdict. Existing is the record it
// collided with, when there is one.
type Classified struct {
	Record   *model.DetailRecord
	Verdict  Verdict
	Key      string
	Existing *model.DetailRecord
	Reason   string
}

// Result partitions one batch.
type Result struct {
	Policy     string
	New        []*model.DetailRecord
	Duplicates []Classified
	Ambiguous  []Classified
	Analysis   Analysis
}

// Detector classifies records. It holds no state between calls.
type Detector struct {
	policy Policy
	mode   InBatchMode
	log    zerolog.Logger
}

func NewDetector(p Policy, mode InBatchMode, log zerolog.Logger) *Detector {
	return &Detector{
		policy: p,
		mode:   mode,
		log:    log.With().Str("component", "dedup").Str("policy", p.Name).Logger(),
	}
}

func (d *Detector) Policy() Policy { return d.policy }

func (d *Detector) Mode() InBatchMode { return d.mode }

// Classify compares records against the already persisted ones and against
// each other. Reversal pairs (same invoice/employee/date, amounts that
// cancel) are ambiguous regardless of policy and are never inserted.
func (d *Detector) Classify(records, existing []*model.DetailRecord) *Result {
	res := &Result{Policy: d.policy.Name}

	persisted := make(map[string]*model.DetailRecord, len(existing))
	for _, e := range existing {
		k := d.policy.Key(e)
		if _, ok := persisted[k]; !ok {
			persisted[k] = e
		}
	}

	reversals := findReversals(records, existing)

	var candidates []Classified
	for _, r := range records {
		k := d.policy.Key(r)
		if other, ok := reversals[r]; ok {
			res.Ambiguous = append(res.Ambiguous, Classified{
				Record: r, Verdict: Ambiguous, Key: k, Existing: other,
				Reason: "amount reverses another line for the same invoice, employee and date",
			})
			continue
		}
		if e, ok := persisted[k]; ok {
			res.Duplicates = append(res.Duplicates, Classified{
				Record: r, Verdict: Duplicate, Key: k, Existing: e, Reason: "already persisted",
			})
			continue
		}
		candidates = append(candidates, Classified{Record: r, Verdict: New, Key: k})
	}

	d.classifyInBatch(candidates, res)
	res.Analysis = analyze(res.Duplicates)

	d.log.Info().
		Int("records", len(records)).
		Int("new", len(res.New)).
		Int("duplicates", len(res.Duplicates)).
		Int("ambiguous", len(res.Ambiguous)).
		Str("in_batch", string(d.mode)).
		Msg("duplicate classification complete")
	return res
}

func (d *Detector) classifyInBatch(candidates []Classified, res *Result) {
	first := make(map[string]*model.DetailRecord, len(candidates))
	counts := make(map[string]int, len(candidates))
	for _, c := range candidates {
		counts[c.Key]++
		if _, ok := first[c.Key]; !ok {
			first[c.Key] = c.Record
		}
	}
	for _, c := range candidates {
		f := first[c.Key]
		switch {
		case counts[c.Key] == 1:
			res.New = append(res.New, c.Record)
		case d.mode == KeepFirst && f == c.Record:
			res.New = append(res.New, c.Record)
		case d.mode == KeepFirst:
			c.Verdict, c.Existing, c.Reason = Duplicate, f, "repeated in file"
			res.Duplicates = append(res.Duplicates, c)
		default:
			c.Verdict, c.Reason = Duplicate, fmt.Sprintf("%d lines in file share this key", counts[c.Key])
			if f != c.Record {
				c.Existing = f
			}
			res.Duplicates = append(res.Duplicates, c)
		}
	}
}

// findReversals maps each incoming record that cancels another record
// (incoming or persisted) to that record.
func findReversals(records, existing []*model.DetailRecord) map[*model.DetailRecord]*model.DetailRecord {
	groups := make(map[string][]*model.DetailRecord)
	for _, r := range existing {
		groups[basicKey(r)] = append(groups[basicKey(r)], r)
	}
	for _, r := range records {
		groups[basicKey(r)] = append(groups[basicKey(r)], r)
	}
	out := make(map[*model.DetailRecord]*model.DetailRecord)
	for _, r := range records {
		if r.AmountTotal.IsZero() {
			continue
		}
		for _, o := range groups[basicKey(r)] {
			if o != r && o.AmountTotal.Equal(r.AmountTotal.Neg()) {
				out[r] = o
				break
			}
		}
	}
	return out
}

// InvoiceCount is the number of duplicate lines on one invoice.
type InvoiceCount struct {
	InvoiceNo string
	Count     int
}

// Group is a set of duplicate lines sharing one key.
type Group struct {
	Key      string
	Records  []*model.DetailRecord
	Existing *model.DetailRecord
}

// Analysis summarizes duplicates for human review.
type Analysis struct {
	TotalDuplicates int
	ByInvoice       map[string]int
	TopInvoices     []InvoiceCount
	Groups          []Group
}

const topInvoices = 10

func analyze(dups []Classified) Analysis {
	a := Analysis{TotalDuplicates: len(dups), ByInvoice: make(map[string]int)}
	byKey := make(map[string]*Group)
	var order []string
	for _, c := range dups {
		a.ByInvoice[c.Record.InvoiceNo]++
		g, ok := byKey[c.Key]
		if !ok {
			g = &Group{Key: c.Key}
			byKey[c.Key] = g
			order = append(order, c.Key)
		}
		g.Records = append(g.Records, c.Record)
		if g.Existing == nil && c.Existing != nil && c.Reason == "already persisted" {
			g.Existing = c.Existing
		}
	}
	for _, k := range order {
		a.Groups = append(a.Groups, *byKey[k])
	}
	for inv, n := range a.ByInvoice {
		a.TopInvoices = append(a.TopInvoices, InvoiceCount{InvoiceNo: inv, Count: n})
	}
	sort.Slice(a.TopInvoices, func(i, j int) bool {
		if a.TopInvoices[i].Count != a.TopInvoices[j].Count {
			return a.TopInvoices[i].Count > a.TopInvoices[j].Count
		}
		return a.TopInvoices[i].InvoiceNo < a.TopInvoices[j].InvoiceNo
	})
	if len(a.TopInvoices) > topInvoices {
		a.TopInvoices = a.TopInvoices[:topInvoices]
	}
	return a
}
