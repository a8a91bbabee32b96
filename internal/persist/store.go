package persist

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"InvoiceRecon/internal/lookup"
	"InvoiceRecon/internal/model"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store runs the read-side queries of a run: master invoices, already
// persisted details and the dimension tables.
type Store struct {
	db          Querier
	detailTable string
}

func NewStore(db Querier, detailTable string) *Store {
	if detailTable == "" {
		detailTable = DefaultTable
	}
	return &Store{db: db, detailTable: pgx.Identifier(strings.Split(detailTable, ".")).Sanitize()}
}

func (s *Store) MasterInvoices(ctx context.Context) ([]model.MasterInvoice, error) {
	rows, err := s.db.Query(ctx, `
		SELECT invoice_no::text,
		       COALESCE(emid, ''),
		       COALESCE(service_area, ''),
		       invoice_date,
		       invoice_total
		FROM invoices`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch master invoices: %w", err)
	}
	defer rows.Close()

	var out []model.MasterInvoice
	for rows.Next() {
		var (
			inv   model.MasterInvoice
			total pgtype.Numeric
		)
		if err := rows.Scan(&inv.InvoiceNo, &inv.EMID, &inv.ServiceArea, &inv.InvoiceDate, &total); err != nil {
			return nil, fmt.Errorf("failed to scan master invoice: %w", err)
		}
		inv.InvoiceTotal = toDecimal(total)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ExistingDetails returns the persisted details of the given invoices, for
// duplicate classification.
func (s *Store) ExistingDetails(ctx context.Context, invoiceNos []string) ([]*model.DetailRecord, error) {
	if len(invoiceNos) == 0 {
		return nil, nil
	}
	query := `
		SELECT invoice_no, COALESCE(source_system, ''), COALESCE(employee_id, ''), COALESCE(employee_name, ''), work_date,
		       hours_regular, hours_overtime, hours_holiday, hours_total,
		       rate_regular, rate_overtime, rate_holiday,
		       amount_regular, amount_overtime, amount_holiday, amount_total,
		       COALESCE(location_code, ''), COALESCE(building_code, ''), COALESCE(emid, ''),
		       COALESCE(position_code, ''), COALESCE(business_unit, ''),
		       COALESCE(job_number, ''), COALESCE(customer_number, '')
		FROM ` + s.detailTable + `
		WHERE invoice_no = ANY($1)`
	rows, err := s.db.Query(ctx, query, invoiceNos)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch existing details: %w", err)
	}
	defer rows.Close()

	var out []*model.DetailRecord
	for rows.Next() {
		var (
			r      model.DetailRecord
			source string
			n      [11]pgtype.Numeric
		)
		if err := rows.Scan(&r.InvoiceNo, &source, &r.EmployeeID, &r.EmployeeName, &r.WorkDate,
			&n[0], &n[1], &n[2], &n[3],
			&n[4], &n[5], &n[6],
			&n[7], &n[8], &n[9], &n[10],
			&r.LocationCode, &r.BuildingCode, &r.EMID,
			&r.PositionCode, &r.BusinessUnit,
			&r.JobNumber, &r.CustomerNumber); err != nil {
			return nil, fmt.Errorf("failed to scan existing detail: %w", err)
		}
		r.SourceSystem = model.SourceSystem(source)
		r.HoursRegular, r.HoursOvertime, r.HoursHoliday, r.HoursTotal = toDecimal(n[0]), toDecimal(n[1]), toDecimal(n[2]), toDecimal(n[3])
		r.RateRegular, r.RateOvertime, r.RateHoliday = toDecimal(n[4]), toDecimal(n[5]), toDecimal(n[6])
		r.AmountRegular, r.AmountOvertime, r.AmountHoliday, r.AmountTotal = toDecimal(n[7]), toDecimal(n[8]), toDecimal(n[9]), toDecimal(n[10])
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CountDetails returns the number of persisted rows for the given invoices.
func (s *Store) CountDetails(ctx context.Context, invoiceNos []string) (int, error) {
	rows, err := s.db.Query(ctx, `SELECT count(*) FROM `+s.detailTable+` WHERE invoice_no = ANY($1)`, invoiceNos)
	if err != nil {
		return 0, fmt.Errorf("failed to count details: %w", err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// Dimension tables are read in physical order so "first occurrence" matches
// what an operator sees in the table.

func (s *Store) Buildings(ctx context.Context) ([]lookup.BuildingEntry, error) {
	var out []lookup.BuildingEntry
	err := s.scanText(ctx, `
		SELECT building_code, COALESCE(emid, ''), COALESCE(business_unit, ''), COALESCE(region, '')
		FROM building_dimension ORDER BY ctid`, 4, func(v []string) {
		out = append(out, lookup.BuildingEntry{BuildingCode: v[0], EMID: v[1], BusinessUnit: v[2], Region: v[3]})
	})
	return out, err
}

func (s *Store) EMIDs(ctx context.Context) ([]lookup.EMIDEntry, error) {
	var out []lookup.EMIDEntry
	err := s.scanText(ctx, `
		SELECT emid, COALESCE(job_code, ''), COALESCE(description, '')
		FROM emid_reference ORDER BY ctid`, 3, func(v []string) {
		out = append(out, lookup.EMIDEntry{EMID: v[0], JobCode: v[1], Description: v[2]})
	})
	return out, err
}

func (s *Store) Jobs(ctx context.Context) ([]lookup.JobEntry, error) {
	var out []lookup.JobEntry
	err := s.scanText(ctx, `
		SELECT job_number, COALESCE(building_code, ''), COALESCE(location, '')
		FROM job_location_lookup ORDER BY ctid`, 3, func(v []string) {
		out = append(out, lookup.JobEntry{JobNumber: v[0], BuildingCode: v[1], Location: v[2]})
	})
	return out, err
}

func (s *Store) scanText(ctx context.Context, query string, cols int, add func([]string)) error {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query reference table: %w", err)
	}
	defer rows.Close()

	vals := make([]string, cols)
	dest := make([]any, cols)
	for i := range vals {
		dest[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan reference row: %w", err)
		}
		add(append([]string(nil), vals...))
	}
	return rows.Err()
}
