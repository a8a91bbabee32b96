// Package lookup holds the dimension indexes used to enrich detail rows:
// building → EMID/business unit, EMID → job code, AUS job → building, and
// invoice → EMID from the master invoices.
package lookup

import (
	"fmt"

	"github.com/rs/zerolog"

	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/normalize"
	"InvoiceRecon/internal/schema"
	"InvoiceRecon/internal/sheet"
)

type BuildingEntry struct {
	BuildingCode string
	EMID         string
	BusinessUnit string
	Region       string
}

type EMIDEntry struct {
	EMID        string
	JobCode     string
	Description string
}

type JobEntry struct {
	JobNumber    string
	BuildingCode string
	Location     string
}

type InvoiceEntry struct {
	InvoiceNo   string
	EMID        string
	ServiceArea string
}

// Lookups is built once per run and read-only afterwards.
type Lookups struct {
	Buildings *Index[BuildingEntry]
	EMIDs     *Index[EMIDEntry]
	Jobs      *Index[JobEntry]
	// Locations indexes job rows by their location so AUS rows with no job
	// number can still reach a building.
	Locations *Index[JobEntry]
	Invoices  *Index[InvoiceEntry]

	log zerolog.Logger
}

// New returns empty indexes. Conflicts are logged as warnings on log.
func New(log zerolog.Logger) *Lookups {
	l := &Lookups{
		Buildings: NewIndex[BuildingEntry]("building_dimension"),
		EMIDs:     NewIndex[EMIDEntry]("emid_reference"),
		Jobs:      NewIndex[JobEntry]("job_location_lookup"),
		Locations: NewIndex[JobEntry]("job_location_lookup.location"),
		Invoices:  NewIndex[InvoiceEntry]("invoices"),
		log:       log.With().Str("component", "lookup").Logger(),
	}
	// Two jobs at one location are fine as long as they point at the same building.
	l.Locations.same = func(a, b JobEntry) bool {
		return normalize.NormalizeKey(a.BuildingCode) == normalize.NormalizeKey(b.BuildingCode)
	}
	return l
}

func (l *Lookups) warn(c *Conflict) {
	if c == nil {
		return
	}
	l.log.Warn().
		Str("table", c.Table).
		Str("key", c.Key).
		Int("kept_row", c.KeptRow).
		Int("rejected_row", c.RejectedRow).
		Str("kept", c.Kept).
		Str("rejected", c.Rejected).
		Msg("duplicate reference key, keeping first occurrence")
}

func (l *Lookups) AddBuilding(e BuildingEntry, row int) {
	c, _ := l.Buildings.Add(e.BuildingCode, e, row)
	l.warn(c)
}

func (l *Lookups) AddEMID(e EMIDEntry, row int) {
	c, _ := l.EMIDs.Add(e.EMID, e, row)
	l.warn(c)
}

func (l *Lookups) AddJob(e JobEntry, row int) {
	c, _ := l.Jobs.Add(e.JobNumber, e, row)
	l.warn(c)
	if e.Location != "" {
		c, _ = l.Locations.Add(e.Location, e, row)
		l.warn(c)
	}
}

// AddInvoices indexes master invoices by cleaned invoice number.
func (l *Lookups) AddInvoices(invoices []model.MasterInvoice) {
	for i, inv := range invoices {
		no, ok := normalize.CleanInvoiceNumber(inv.InvoiceNo)
		if !ok {
			continue
		}
		c, _ := l.Invoices.Add(no, InvoiceEntry{InvoiceNo: no, EMID: inv.EMID, ServiceArea: inv.ServiceArea}, i+1)
		l.warn(c)
	}
}

// LoadBuildings indexes a building dimension spreadsheet.
func (l *Lookups) LoadBuildings(t *sheet.Table) error {
	b, err := schema.Buildings.Bind(t.Headers, t.Name)
	if err != nil {
		return err
	}
	for _, r := range t.Rows {
		l.AddBuilding(BuildingEntry{
			BuildingCode: cell(b, r, schema.BuildingCode),
			EMID:         cell(b, r, schema.EMID),
			BusinessUnit: cell(b, r, schema.BusinessUnit),
			Region:       cell(b, r, schema.Region),
		}, r.Line)
	}
	return nil
}

// LoadEMIDs indexes an EMID reference spreadsheet.
func (l *Lookups) LoadEMIDs(t *sheet.Table) error {
	b, err := schema.EMIDs.Bind(t.Headers, t.Name)
	if err != nil {
		return err
	}
	for _, r := range t.Rows {
		l.AddEMID(EMIDEntry{
			EMID:        cell(b, r, schema.EMID),
			JobCode:     cell(b, r, schema.JobCode),
			Description: cell(b, r, schema.Description),
		}, r.Line)
	}
	return nil
}

// LoadJobs indexes an AUS job/location spreadsheet.
func (l *Lookups) LoadJobs(t *sheet.Table) error {
	b, err := schema.Jobs.Bind(t.Headers, t.Name)
	if err != nil {
		return err
	}
	for _, r := range t.Rows {
		l.AddJob(JobEntry{
			JobNumber:    cell(b, r, schema.JobNumber),
			BuildingCode: cell(b, r, schema.BuildingCode),
			Location:     cell(b, r, schema.Location),
		}, r.Line)
	}
	return nil
}

func cell(b *schema.Binding, r sheet.Row, f schema.Field) string {
	s, _ := normalize.CleanString(b.Value(r, f))
	return s
}

func (l *Lookups) Building(code string) (BuildingEntry, bool) { return l.Buildings.Get(code) }

func (l *Lookups) EMID(emid string) (EMIDEntry, bool) { return l.EMIDs.Get(emid) }

func (l *Lookups) Job(number string) (JobEntry, bool) { return l.Jobs.Get(number) }

func (l *Lookups) Location(loc string) (JobEntry, bool) { return l.Locations.Get(loc) }

// Invoice finds the master invoice for invoiceNo, retrying without a
// trailing revision letter ("40011284A" → "40011284").
func (l *Lookups) Invoice(invoiceNo string) (InvoiceEntry, bool) {
	if e, ok := l.Invoices.Get(invoiceNo); ok {
		return e, true
	}
	base := normalize.StripRevisionSuffix(invoiceNo)
	if base == invoiceNo {
		return InvoiceEntry{}, false
	}
	return l.Invoices.Get(base)
}

// Conflicts returns every rejected reference row across all indexes.
func (l *Lookups) Conflicts() []Conflict {
	var out []Conflict
	for _, cs := range [][]Conflict{
		l.Buildings.Conflicts(),
		l.EMIDs.Conflicts(),
		l.Jobs.Conflicts(),
		l.Locations.Conflicts(),
		l.Invoices.Conflicts(),
	} {
		out = append(out, cs...)
	}
	return out
}

// Stats is a per-index entry and conflict count.
type Stats struct {
	Table     string
	Entries   int
	Conflicts int
}

func (s Stats) String() string {
	return fmt.Sprintf("%-30s %8d entries %6d conflicts", s.Table, s.Entries, s.Conflicts)
}

func (l *Lookups) Stats() []Stats {
	return []Stats{
		statsOf(l.Buildings),
		statsOf(l.EMIDs),
		statsOf(l.Jobs),
		statsOf(l.Locations),
		statsOf(l.Invoices),
	}
}

func statsOf[T comparable](ix *Index[T]) Stats {
	return Stats{Table: ix.Table(), Entries: ix.Len(), Conflicts: len(ix.conflicts)}
}
