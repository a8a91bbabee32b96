package dedup

import (
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/sheet"
)

func rec(inv, emp, date string, hours, amount float64) *model.DetailRecord {
	d, _ := time.Parse("2006-01-02", date)
	return &model.DetailRecord{
		InvoiceNo:    inv,
		SourceSystem: model.SourceAUS,
		EmployeeID:   emp,
		WorkDate:     pgtype.Date{Time: d, Valid: true},
		HoursTotal:   decimal.NewFromFloat(hours),
		AmountTotal:  decimal.NewFromFloat(amount),
	}
}

func TestBasicVersusExtendedPolicy(t *testing.T) {
	a := rec("40009425", "56159", "2024-06-01", 8, 204)
	b := rec("40009425", "56159", "2024-06-01", 4, 102)

	tests := []struct {
		policy         Policy
		wantDuplicates int
		wantNew        int
	}{
		{Basic, 2, 0},
		{Extended, 0, 2},
	}
	for _, tt := range tests {
		d := NewDetector(tt.policy, FlagAll, zerolog.Nop())
		if d.Policy().Name != tt.policy.Name || d.Mode() != FlagAll {
			t.Fatalf("detector policy = %s/%s", d.Policy().Name, d.Mode())
		}
		res := d.Classify([]*model.DetailRecord{a, b}, nil)
		if res.Policy != tt.policy.Name {
			t.Errorf("result policy = %q, want %q", res.Policy, tt.policy.Name)
		}
		if len(res.Duplicates) != tt.wantDuplicates || len(res.New) != tt.wantNew {
			t.Errorf("%s: duplicates=%d new=%d, want %d/%d",
				tt.policy.Name, len(res.Duplicates), len(res.New), tt.wantDuplicates, tt.wantNew)
		}
	}
}

func TestKeepFirstInBatch(t *testing.T) {
	a := rec("1", "E", "2024-06-01", 8, 100)
	b := rec("1", "E", "2024-06-01", 8, 100)
	c := rec("1", "E", "2024-06-01", 8, 100)
	res := NewDetector(Basic, KeepFirst, zerolog.Nop()).Classify([]*model.DetailRecord{a, b, c}, nil)
	if len(res.New) != 1 || res.New[0] != a {
		t.Fatalf("new = %v, want only the first record", res.New)
	}
	if len(res.Duplicates) != 2 {
		t.Fatalf("duplicates = %d, want 2", len(res.Duplicates))
	}
	for _, dup := range res.Duplicates {
		if dup.Existing != a || dup.Verdict != Duplicate {
			t.Errorf("duplicate %+v should point at the first record", dup)
		}
	}
}

func TestExistingRecordsAreDuplicates(t *testing.T) {
	existing := []*model.DetailRecord{rec("1", "E", "2024-06-01", 8, 100)}
	incoming := []*model.DetailRecord{
		rec("1", "E", "2024-06-01", 8, 100),
		rec("1", "E", "2024-06-02", 8, 100),
	}
	res := NewDetector(Extended, KeepFirst, zerolog.Nop()).Classify(incoming, existing)
	if len(res.Duplicates) != 1 || len(res.New) != 1 {
		t.Fatalf("duplicates=%d new=%d, want 1/1", len(res.Duplicates), len(res.New))
	}
	if res.Duplicates[0].Existing != existing[0] || res.Duplicates[0].Reason != "already persisted" {
		t.Errorf("duplicate = %+v", res.Duplicates[0])
	}
	if g := res.Analysis.Groups; len(g) != 1 || g[0].Existing != existing[0] {
		t.Errorf("groups = %+v", g)
	}
}

func TestReversalPairIsAmbiguous(t *testing.T) {
	charge := rec("7", "E", "2024-06-01", 8, 100)
	credit := rec("7", "E", "2024-06-01", 8, -100)
	other := rec("7", "F", "2024-06-01", 8, 100)
	res := NewDetector(Basic, KeepFirst, zerolog.Nop()).Classify([]*model.DetailRecord{charge, credit, other}, nil)
	if len(res.Ambiguous) != 2 {
		t.Fatalf("ambiguous = %d, want 2", len(res.Ambiguous))
	}
	if len(res.New) != 1 || res.New[0] != other {
		t.Errorf("new = %v", res.New)
	}

	// A credit against an already persisted charge is also held back.
	res = NewDetector(Extended, KeepFirst, zerolog.Nop()).Classify([]*model.DetailRecord{credit}, []*model.DetailRecord{charge})
	if len(res.Ambiguous) != 1 || res.Ambiguous[0].Existing != charge {
		t.Errorf("ambiguous = %+v", res.Ambiguous)
	}
}

func TestAnalysisTopInvoices(t *testing.T) {
	var records []*model.DetailRecord
	for i := 0; i < 3; i++ {
		records = append(records, rec("A", "E", "2024-06-01", 1, 1))
	}
	for i := 0; i < 2; i++ {
		records = append(records, rec("B", "E", "2024-06-01", 1, 1))
	}
	res := NewDetector(Basic, FlagAll, zerolog.Nop()).Classify(records, nil)
	a := res.Analysis
	if a.TotalDuplicates != 5 || a.ByInvoice["A"] != 3 || a.ByInvoice["B"] != 2 {
		t.Errorf("analysis = %+v", a)
	}
	if len(a.TopInvoices) != 2 || a.TopInvoices[0].InvoiceNo != "A" {
		t.Errorf("top = %+v", a.TopInvoices)
	}
	if len(a.Groups) != 2 || len(a.Groups[0].Records) != 3 {
		t.Errorf("groups = %+v", a.Groups)
	}
}

func TestPolicyByName(t *testing.T) {
	for _, n := range []string{"basic", "Extended", " fullhash "} {
		if _, err := PolicyByName(n); err != nil {
			t.Errorf("PolicyByName(%q): %v", n, err)
		}
	}
	if _, err := PolicyByName(""); err == nil {
		t.Error("blank policy must not silently default")
	}
}

func TestFullHashSeesEveryField(t *testing.T) {
	a := rec("1", "E", "2024-06-01", 8, 100)
	b := rec("1", "E", "2024-06-01", 8, 100)
	if !FullHash.Same(a, b) {
		t.Fatal("identical records should hash equal")
	}
	b.CustomerNumber = "C-2"
	if FullHash.Same(a, b) {
		t.Error("customer number change should change the hash")
	}
	if !Extended.Same(a, b) {
		t.Error("extended key ignores customer number")
	}
}

// fakeReader reads invoice, amount and hours from cells 0..2.
type fakeReader struct{}

func (fakeReader) InvoiceNo(r sheet.Row) (string, bool) {
	s := strings.TrimSpace(r.Cell(0))
	return s, s != ""
}

func (fakeReader) Totals(r sheet.Row) (decimal.Decimal, decimal.Decimal) {
	a, _ := decimal.NewFromString(r.Cell(1))
	h, _ := decimal.NewFromString(r.Cell(2))
	return a, h
}

func TestOrgFilterAggregates(t *testing.T) {
	rows := []sheet.Row{
		{Line: 2, Cells: []string{"40011284", "100", "4"}},
		{Line: 3, Cells: []string{"40011300-ORG", "250.50", "10"}},
		{Line: 4, Cells: []string{"40011300-org", "49.50", "2"}},
		{Line: 5, Cells: []string{"40011301-ORG", "-20", "1.5"}},
		{Line: 6, Cells: []string{"", "1", "1"}},
	}
	for _, policy := range []OrgPolicy{OrgSkip, OrgReview} {
		kept, sum := OrgFilter{Policy: policy, Reader: fakeReader{}}.Apply(rows)
		if len(kept) != 2 {
			t.Fatalf("%s: kept %d rows, want 2", policy, len(kept))
		}
		for _, r := range kept {
			if IsOrgInvoice(r.Cell(0)) {
				t.Errorf("%s: -ORG row %d kept", policy, r.Line)
			}
		}
		if sum.TotalRows != 3 {
			t.Errorf("%s: total rows = %d", policy, sum.TotalRows)
		}
		if !sum.TotalAmount.Equal(decimal.RequireFromString("280")) || !sum.TotalHours.Equal(decimal.RequireFromString("13.5")) {
			t.Errorf("%s: totals = %s/%s", policy, sum.TotalAmount, sum.TotalHours)
		}
		if len(sum.Invoices) != 2 {
			t.Fatalf("%s: invoices = %+v", policy, sum.Invoices)
		}
		first := sum.Invoices[0]
		if first.InvoiceNo != "40011300-ORG" || first.Rows != 2 || first.FirstRow != 3 ||
			!first.Amount.Equal(decimal.RequireFromString("300")) || !first.Hours.Equal(decimal.RequireFromString("12")) {
			t.Errorf("%s: first = %+v", policy, first)
		}
		wantRows := 0
		if policy == OrgReview {
			wantRows = 3
		}
		if len(sum.Rows) != wantRows {
			t.Errorf("%s: exported rows = %d, want %d", policy, len(sum.Rows), wantRows)
		}
	}
}

func TestParsePolicies(t *testing.T) {
	if p, err := ParseOrgPolicy("REVIEW"); err != nil || p != OrgReview {
		t.Errorf("ParseOrgPolicy = %q, %v", p, err)
	}
	if _, err := ParseOrgPolicy("keep"); err == nil {
		t.Error("expected error")
	}
	if m, err := ParseInBatchMode("flag_all"); err != nil || m != FlagAll {
		t.Errorf("ParseInBatchMode = %q, %v", m, err)
	}
}
