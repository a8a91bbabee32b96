package persist

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"InvoiceRecon/internal/model"
)

// fakeDB keeps committed rows keyed by invoice|employee and rejects any row
// whose invoice is listed in reject, the way a foreign key would.
type fakeDB struct {
	committed map[string]bool
	reject    map[string]bool
	beginErr  error
	begins    int
	rollbacks int
	execs     []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{committed: map[string]bool{}, reject: map[string]bool{}}
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	db.begins++
	if db.beginErr != nil {
		return nil, db.beginErr
	}
	return &fakeTx{db: db}, nil
}

type fakeTx struct {
	pgx.Tx
	db      *fakeDB
	pending []string
	done    bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.db.execs = append(tx.db.execs, sql)
	n := len(detailColumns)
	if len(args)%n != 0 {
		return pgconn.CommandTag{}, errors.New("argument count is not a multiple of the column count")
	}
	inserted := 0
	for i := 0; i < len(args); i += n {
		inv := args[i].(string)
		emp := args[i+2].(pgtype.Text).String
		if tx.db.reject[inv] {
			return pgconn.CommandTag{}, &pgconn.PgError{
				Code:           "23503",
				Message:        "insert or update on table \"invoice_details\" violates foreign key constraint",
				Detail:         "Key (invoice_no)=(" + inv + ") is not present in table \"invoices\".",
				ConstraintName: "invoice_details_invoice_no_fkey",
			}
		}
		key := inv + "|" + emp
		if tx.db.committed[key] {
			continue
		}
		tx.pending = append(tx.pending, key)
		inserted++
	}
	return pgconn.NewCommandTag("INSERT 0 " + strconv.Itoa(inserted)), nil
}

func (tx *fakeTx) Commit(context.Context) error {
	for _, k := range tx.pending {
		tx.db.committed[k] = true
	}
	tx.done = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.db.rollbacks++
	tx.done = true
	return nil
}

func records(n int, prefix string) []*model.DetailRecord {
	out := make([]*model.DetailRecord, n)
	for i := range out {
		out[i] = &model.DetailRecord{
			InvoiceNo:    prefix,
			SourceSystem: model.SourceBCI,
			EmployeeID:   strconv.Itoa(i),
			AmountTotal:  decimal.NewFromInt(10),
			SourceRow:    i + 2,
		}
	}
	return out
}

func TestPersistBatches(t *testing.T) {
	db := newFakeDB()
	p, err := New(db, Options{BatchSize: 3}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Persist(context.Background(), records(7, "100"))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if res.Batches != 3 || res.Committed != 3 || res.Inserted != 7 || res.Conflicts != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(db.committed) != 7 {
		t.Errorf("committed = %d rows", len(db.committed))
	}
	if !strings.Contains(db.execs[0], "ON CONFLICT DO NOTHING") || !strings.Contains(db.execs[0], `INSERT INTO "invoice_details"`) {
		t.Errorf("sql = %s", db.execs[0])
	}
}

func TestPersistSkipsExistingRows(t *testing.T) {
	db := newFakeDB()
	p, _ := New(db, Options{BatchSize: 10}, zerolog.Nop())
	recs := records(4, "100")
	if _, err := p.Persist(context.Background(), recs); err != nil {
		t.Fatalf("first Persist: %v", err)
	}
	res, err := p.Persist(context.Background(), recs)
	if err != nil {
		t.Fatalf("second Persist: %v", err)
	}
	if res.Inserted != 0 || res.Conflicts != 4 {
		t.Errorf("rerun inserted=%d conflicts=%d, want 0/4", res.Inserted, res.Conflicts)
	}
	if len(db.committed) != 4 {
		t.Errorf("committed = %d, want 4", len(db.committed))
	}
}

func TestPersistIsolatesFailingBatch(t *testing.T) {
	db := newFakeDB()
	db.reject["BAD"] = true
	p, _ := New(db, Options{BatchSize: 2}, zerolog.Nop())

	recs := records(6, "100")
	recs[3].InvoiceNo = "BAD" // second batch: rows 2 and 3

	res, err := p.Persist(context.Background(), recs)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if res.Committed != 2 || res.Inserted != 4 {
		t.Errorf("committed=%d inserted=%d, want 2/4", res.Committed, res.Inserted)
	}
	if len(res.Failures) != 1 || len(res.FailedRows) != 2 {
		t.Fatalf("failures = %+v", res.Failures)
	}
	f := res.Failures[0]
	if f.Batch != 2 || f.Record != recs[3] || f.SQLState != "23503" || f.Constraint != "invoice_details_invoice_no_fkey" {
		t.Errorf("failure = %+v", f)
	}
	if !strings.Contains(f.Error, "is not present in table") {
		t.Errorf("error text = %q", f.Error)
	}
	// rows 2 and 3 must not be committed, neither by the batch nor by the replay
	if db.committed["100|2"] || db.committed["BAD|3"] {
		t.Error("rows from the failed batch were committed")
	}
	if len(db.committed) != 4 {
		t.Errorf("committed = %d, want 4", len(db.committed))
	}
}

func TestPersistDatabaseUnavailable(t *testing.T) {
	db := newFakeDB()
	db.beginErr = errors.New("dial tcp: connection refused")
	p, _ := New(db, Options{}, zerolog.Nop())
	_, err := p.Persist(context.Background(), records(1, "1"))
	if !errors.Is(err, ErrDatabaseUnavailable) {
		t.Errorf("err = %v, want ErrDatabaseUnavailable", err)
	}
}

func TestPersistDryRun(t *testing.T) {
	p, err := New(nil, Options{DryRun: true, BatchSize: 2}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Persist(context.Background(), records(5, "1"))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if !res.DryRun || res.WouldInsert != 5 || res.Inserted != 0 || res.Batches != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestNewRejectsBatchSize(t *testing.T) {
	for _, n := range []int{-1, MaxBatchSize + 1} {
		if _, err := New(newFakeDB(), Options{BatchSize: n}, zerolog.Nop()); err == nil {
			t.Errorf("batch size %d accepted", n)
		}
	}
}

func TestBuildInsert(t *testing.T) {
	recs := records(2, "100")
	recs[0].JobCode = "JC-1"
	sql, args := buildInsert(`"invoice_details"`, recs)
	if len(args) != 2*len(detailColumns) {
		t.Fatalf("args = %d", len(args))
	}
	if !strings.Contains(sql, "$23, now()), ($24,") || !strings.HasSuffix(sql, "$46, now()) ON CONFLICT DO NOTHING") {
		t.Errorf("placeholders wrong: %s", sql)
	}
	// job_number falls back to the resolved job code
	if got := args[21].(pgtype.Text); !got.Valid || got.String != "JC-1" {
		t.Errorf("job_number arg = %+v", got)
	}
	// empty text is NULL
	if got := args[3].(pgtype.Text); got.Valid {
		t.Errorf("employee_name arg = %+v, want NULL", got)
	}
	amount := args[15].(pgtype.Numeric)
	if !toDecimal(amount).Equal(decimal.NewFromInt(10)) {
		t.Errorf("amount_total round trip = %s", toDecimal(amount))
	}
}

func TestUnavailableClassifiesConnectionFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dial refused", fmt.Errorf("query: %w", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}), true},
		{"already marked", fmt.Errorf("%w: begin", ErrDatabaseUnavailable), true},
		{"constraint", &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}, false},
		{"plain", errors.New("failed to scan master invoice"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unavailable(tt.err)
			if errors.Is(got, ErrDatabaseUnavailable) != tt.want {
				t.Errorf("Unavailable(%v) = %v, unavailable want %t", tt.err, got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("original error lost: %v", got)
			}
		})
	}
	if Unavailable(nil) != nil {
		t.Error("nil error changed")
	}
}
