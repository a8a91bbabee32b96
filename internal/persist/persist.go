// Package persist writes validated detail records to invoice_details and
// reads the reference data a run needs up front.
package persist

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"InvoiceRecon/internal/model"
)

const (
	DefaultBatchSize = 500
	// MaxBatchSize keeps one statement under PostgreSQL's 65535 bind parameters.
	MaxBatchSize = 2000
	DefaultTable = "invoice_details"
)

// ErrDatabaseUnavailable wraps failures to reach the database at all: a
// connection that cannot be made or a transaction that cannot be opened. It
// stops the run; every other database error is confined to its batch.
var ErrDatabaseUnavailable = errors.New("database unavailable")

// Unavailable marks connection-level failures with ErrDatabaseUnavailable and
// returns every other error unchanged.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrDatabaseUnavailable) {
		return err
	}
	var (
		connErr *pgconn.ConnectError
		opErr   *net.OpError
	)
	if errors.As(err, &connErr) || errors.As(err, &opErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", ErrDatabaseUnavailable, err)
	}
	return err
}

// detailColumns are written in this order; created_at is filled by now().
var detailColumns = []string{
	"invoice_no", "source_system", "employee_id", "employee_name", "work_date",
	"hours_regular", "hours_overtime", "hours_holiday", "hours_total",
	"rate_regular", "rate_overtime", "rate_holiday",
	"amount_regular", "amount_overtime", "amount_holiday", "amount_total",
	"location_code", "building_code", "emid", "position_code", "business_unit",
	"job_number", "customer_number",
}

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Options struct {
	BatchSize int
	DryRun    bool
	Table     string
}

// BatchFailure describes a rolled-back batch and, when the replay found it,
// the row that broke it.
type BatchFailure struct {
	Batch      int
	FirstRow   int
	LastRow    int
	Rows       int
	Record     *model.DetailRecord
	Error      string
	SQLState   string
	Constraint string
}

type Result struct {
	DryRun      bool
	Attempted   int
	Inserted    int
	Conflicts   int // rows already present, skipped by ON CONFLICT
	WouldInsert int // dry-run only
	Batches     int
	Committed   int
	Failures    []BatchFailure
	FailedRows  []*model.DetailRecord
}

type Persister struct {
	db    TxBeginner
	opts  Options
	table string
	log   zerolog.Logger
}

func New(db TxBeginner, opts Options, log zerolog.Logger) (*Persister, error) {
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < 1 || opts.BatchSize > MaxBatchSize {
		return nil, fmt.Errorf("batch size %d out of range 1..%d", opts.BatchSize, MaxBatchSize)
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if db == nil && !opts.DryRun {
		return nil, errors.New("persister needs a database unless dry-run is set")
	}
	return &Persister{
		db:    db,
		opts:  opts,
		table: pgx.Identifier(strings.Split(opts.Table, ".")).Sanitize(),
		log:   log.With().Str("component", "persist").Logger(),
	}, nil
}

// Persist inserts records in batches of BatchSize, one transaction each.
// A failing batch is rolled back and reported; later batches still run.
// The returned error is non-nil only when the database cannot be reached.
func (p *Persister) Persist(ctx context.Context, records []*model.DetailRecord) (*Result, error) {
	res := &Result{DryRun: p.opts.DryRun, Attempted: len(records)}
	if p.opts.DryRun {
		res.WouldInsert = len(records)
		res.Batches = (len(records) + p.opts.BatchSize - 1) / p.opts.BatchSize
		p.log.Info().Int("rows", len(records)).Msg("dry run, nothing written")
		return res, nil
	}

	for start := 0; start < len(records); start += p.opts.BatchSize {
		end := min(start+p.opts.BatchSize, len(records))
		batch := records[start:end]
		res.Batches++

		n, err := p.insertBatch(ctx, batch)
		if errors.Is(err, ErrDatabaseUnavailable) {
			return res, err
		}
		if err != nil {
			f := p.diagnose(ctx, res.Batches, batch, err)
			res.Failures = append(res.Failures, f)
			res.FailedRows = append(res.FailedRows, batch...)
			p.log.Error().
				Int("batch", f.Batch).
				Int("first_row", f.FirstRow).
				Int("last_row", f.LastRow).
				Str("sqlstate", f.SQLState).
				Str("error", f.Error).
				Msg("batch rolled back")
			continue
		}
		res.Committed++
		res.Inserted += n
		res.Conflicts += len(batch) - n
		p.log.Info().
			Int("batch", res.Batches).
			Int("inserted", n).
			Int("skipped", len(batch)-n).
			Int("total_inserted", res.Inserted).
			Msg("batch committed")
	}
	return res, nil
}

func (p *Persister) insertBatch(ctx context.Context, batch []*model.DetailRecord) (int, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", ErrDatabaseUnavailable, err)
	}
	defer tx.Rollback(ctx)

	sql, args := buildInsert(p.table, batch)
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// diagnose replays a failed batch row by row in a transaction that is always
// rolled back, to name the row the database rejected.
func (p *Persister) diagnose(ctx context.Context, batchNo int, batch []*model.DetailRecord, batchErr error) BatchFailure {
	f := BatchFailure{
		Batch:    batchNo,
		FirstRow: batch[0].SourceRow,
		LastRow:  batch[len(batch)-1].SourceRow,
		Rows:     len(batch),
	}
	describe(&f, batchErr)

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return f
	}
	defer tx.Rollback(ctx)

	for _, r := range batch {
		sql, args := buildInsert(p.table, []*model.DetailRecord{r})
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			f.Record = r
			describe(&f, err)
			return f
		}
	}
	return f
}

func describe(f *BatchFailure, err error) {
	f.Error = err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		f.SQLState = pgErr.Code
		f.Constraint = pgErr.ConstraintName
		f.Error = pgErr.Message
		if pgErr.Detail != "" {
			f.Error += ": " + pgErr.Detail
		}
	}
}

// buildInsert renders one multi-row INSERT ... ON CONFLICT DO NOTHING.
func buildInsert(table string, batch []*model.DetailRecord) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(detailColumns, ", "))
	sb.WriteString(", created_at) VALUES ")

	args := make([]any, 0, len(batch)*len(detailColumns))
	for i, r := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range detailColumns {
			fmt.Fprintf(&sb, "$%d, ", len(args)+c+1)
		}
		sb.WriteString("now())")
		args = append(args, rowArgs(r)...)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")
	return sb.String(), args
}

func rowArgs(r *model.DetailRecord) []any {
	return []any{
		r.InvoiceNo, string(r.SourceSystem), text(r.EmployeeID), text(r.EmployeeName), r.WorkDate,
		numeric(r.HoursRegular), numeric(r.HoursOvertime), numeric(r.HoursHoliday), numeric(r.HoursTotal),
		numeric(r.RateRegular), numeric(r.RateOvertime), numeric(r.RateHoliday),
		numeric(r.AmountRegular), numeric(r.AmountOvertime), numeric(r.AmountHoliday), numeric(r.AmountTotal),
		text(r.LocationCode), text(r.BuildingCode), text(r.EMID), text(r.PositionCode), text(r.BusinessUnit),
		text(r.StoredJobNumber()), text(r.CustomerNumber),
	}
}

// text maps "" to NULL.
func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func toDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
