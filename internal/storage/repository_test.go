package storage

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

// rowStub feeds fixed column values into scan helpers. Only Scan is
// implemented; the embedded interface satisfies the rest.
type rowStub struct {
	pgx.Rows
	vals []any
}

func (r *rowStub) Scan(dest ...any) error {
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		if r.vals[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		dv.Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

func dealRow(discountPct string) *rowStub {
	return &rowStub{vals: []any{
		int64(7), int64(3), "B0DEAL0001", "Wireless Earbuds", "https://x/dp/B0DEAL0001", "",
		"daily",
		"150", "100", discountPct, "50",
		7.5, time.Now().UTC(), nil, "active", 1,
		true, "33% off", "stable", "good", "medium", []string{"general"},
	}}
}

func TestScanDealParsesAmounts(t *testing.T) {
	d, err := scanDeal(dealRow("33.33"))
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if d.OriginalPrice.String() != "150" || d.DealPrice.String() != "100" {
		t.Fatalf("prices not parsed: %s / %s", d.OriginalPrice, d.DealPrice)
	}
	if d.DiscountPercent.String() != "33.33" {
		t.Fatalf("discount not parsed: %s", d.DiscountPercent)
	}
}

func TestScanDealRejectsMalformedAmount(t *testing.T) {
	_, err := scanDeal(dealRow("not-a-number"))
	if err == nil {
		t.Fatal("malformed amount must fail the scan, not default to zero")
	}
	if !strings.Contains(err.Error(), "not-a-number") {
		t.Fatalf("error should name the bad value: %v", err)
	}
}
