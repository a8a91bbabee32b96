package transform

import "InvoiceRecon/internal/model"

// enrich walks building → EMID/business unit → job code. Every miss leaves
// the downstream fields empty and is recorded in the unmatched set.
func (t *Transformer) enrich(rec *model.DetailRecord) {
	rec.BuildingCode = t.resolveBuilding(rec)

	if rec.BuildingCode != "" {
		if b, ok := t.lookups.Building(rec.BuildingCode); ok {
			rec.BuildingCode = b.BuildingCode
			rec.EMID = b.EMID
			rec.BusinessUnit = b.BusinessUnit
		} else {
			t.unmatched.Add(UnmatchedBuilding, rec.BuildingCode, rec.InvoiceNo, rec.SourceRow)
		}
	}

	// No building, or a building without an EMID: fall back to the master
	// invoice, which carries the EMID it was billed under.
	if rec.EMID == "" {
		if inv, ok := t.lookups.Invoice(rec.InvoiceNo); ok && inv.EMID != "" {
			rec.EMID = inv.EMID
		} else {
			t.unmatched.Add(UnmatchedInvoice, rec.InvoiceNo, rec.InvoiceNo, rec.SourceRow)
			return
		}
	}

	if e, ok := t.lookups.EMID(rec.EMID); ok {
		rec.JobCode = e.JobCode
	} else {
		t.unmatched.Add(UnmatchedEMID, rec.EMID, rec.InvoiceNo, rec.SourceRow)
	}
}

// resolveBuilding finds the row's building code. AUS rows go through the job
// lookup first and fall back to the location; BCI rows carry a location that
// is usually the building code itself.
func (t *Transformer) resolveBuilding(rec *model.DetailRecord) string {
	if t.source == model.SourceAUS {
		if rec.JobNumber != "" {
			if j, ok := t.lookups.Job(rec.JobNumber); ok && j.BuildingCode != "" {
				return j.BuildingCode
			}
			t.unmatched.Add(UnmatchedJob, rec.JobNumber, rec.InvoiceNo, rec.SourceRow)
		}
		if code := t.byLocation(rec); code != "" {
			return code
		}
		return ""
	}

	if code := t.byLocation(rec); code != "" {
		return code
	}
	if rec.JobNumber != "" {
		if j, ok := t.lookups.Job(rec.JobNumber); ok && j.BuildingCode != "" {
			return j.BuildingCode
		}
		t.unmatched.Add(UnmatchedJob, rec.JobNumber, rec.InvoiceNo, rec.SourceRow)
	}
	return ""
}

func (t *Transformer) byLocation(rec *model.DetailRecord) string {
	if rec.LocationCode == "" {
		return ""
	}
	if b, ok := t.lookups.Building(rec.LocationCode); ok {
		return b.BuildingCode
	}
	if j, ok := t.lookups.Location(rec.LocationCode); ok && j.BuildingCode != "" {
		return j.BuildingCode
	}
	t.unmatched.Add(UnmatchedLocation, rec.LocationCode, rec.InvoiceNo, rec.SourceRow)
	return ""
}
