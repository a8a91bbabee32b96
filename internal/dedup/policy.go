package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/normalize"
)

// Policy decides which records are the same billing line. Two records are
// duplicates when their keys are equal.
type Policy struct {
	Name string
	Key  func(r *model.DetailRecord) string
}

// Same reports whether a and b are duplicates under p.
func (p Policy) Same(a, b *model.DetailRecord) bool {
	return p.Key(a) == p.Key(b)
}

func (p Policy) String() string { return p.Name }

// Basic keys on invoice, employee and work date.
var Basic = Policy{Name: "basic", Key: basicKey}

// Extended adds position, hours and amount to the basic key, so two shifts
// on the same day are not collapsed.
var Extended = Policy{
	Name: "extended",
	Key: func(r *model.DetailRecord) string {
		return join(basicKey(r),
			normalize.NormalizeKey(r.PositionCode),
			r.HoursTotal.StringFixed(2),
			r.AmountTotal.StringFixed(2))
	},
}

// FullHash keys on every persisted column.
var FullHash = Policy{
	Name: "fullhash",
	Key: func(r *model.DetailRecord) string {
		h := sha256.New()
		for _, v := range []string{
			basicKey(r),
			string(r.SourceSystem),
			r.EmployeeName,
			r.HoursRegular.StringFixed(2), r.HoursOvertime.StringFixed(2),
			r.HoursHoliday.StringFixed(2), r.HoursTotal.StringFixed(2),
			r.RateRegular.StringFixed(2), r.RateOvertime.StringFixed(2), r.RateHoliday.StringFixed(2),
			r.AmountRegular.StringFixed(2), r.AmountOvertime.StringFixed(2),
			r.AmountHoliday.StringFixed(2), r.AmountTotal.StringFixed(2),
			r.LocationCode, r.BuildingCode, r.EMID, r.PositionCode, r.BusinessUnit,
			r.StoredJobNumber(), r.CustomerNumber,
		} {
			h.Write([]byte(v))
			h.Write([]byte{0x1f})
		}
		return hex.EncodeToString(h.Sum(nil))
	},
}

var policies = map[string]Policy{
	Basic.Name:    Basic,
	Extended.Name: Extended,
	FullHash.Name: FullHash,
}

// PolicyByName resolves a configured policy. There is no default.
func PolicyByName(name string) (Policy, error) {
	if p, ok := policies[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	return Policy{}, fmt.Errorf("unknown duplicate policy %q (expected one of %s)", name, strings.Join(PolicyNames(), ", "))
}

func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for n := range policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func basicKey(r *model.DetailRecord) string {
	return join(normalize.NormalizeKey(r.InvoiceNo), normalize.NormalizeKey(r.EmployeeID), r.WorkDateString())
}

func join(parts ...string) string { return strings.Join(parts, "|") }
