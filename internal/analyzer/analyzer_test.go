package analyzer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealwatch/internal/catalog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testAnalyzer() *Analyzer {
	return New(Options{
		MinDiscount: decimal.NewFromInt(20),
		MinPrice:    decimal.NewFromInt(10),
		MaxPrice:    decimal.NewFromInt(10000),
		Now:         func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}, noopLogger())
}

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func f64Ptr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func product(current, original string) catalog.Product {
	return catalog.Product{
		ASIN:          "B012345678",
		Title:         "Wireless Headphones",
		CurrentPrice:  decPtr(current),
		OriginalPrice: decPtr(original),
		Availability:  catalog.AvailabilityInStock,
		ScrapedAt:     time.Now().UTC(),
	}
}

func TestEvaluateDerivedDiscount(t *testing.T) {
	a := testAnalyzer()

	deal, ok := a.Evaluate(product("100", "150"), nil)
	if !ok {
		t.Fatal("expected a 33% discount to qualify")
	}
	if !deal.DiscountPercent.Equal(dec("33.33")) {
		t.Fatalf("expected derived discount 33.33, got %s", deal.DiscountPercent)
	}
	if deal.Type != catalog.DealDaily {
		t.Fatalf("expected daily deal for 33%% discount, got %s", deal.Type)
	}
}

func TestEvaluateDoesNotMutateProduct(t *testing.T) {
	a := testAnalyzer()
	p := product("100", "150")

	if _, ok := a.Evaluate(p, nil); !ok {
		t.Fatal("expected product to qualify")
	}
	if p.DiscountPercent != nil {
		t.Fatalf("derived discount must not be written back onto the product, got %s", p.DiscountPercent)
	}
}

func TestEvaluateBelowMinimumDiscount(t *testing.T) {
	a := testAnalyzer()

	if _, ok := a.Evaluate(product("90", "100"), nil); ok {
		t.Fatal("10% discount must not pass a 20% gate")
	}
}

func TestEvaluatePriceBandGate(t *testing.T) {
	a := testAnalyzer()

	if _, ok := a.Evaluate(product("5", "20"), nil); ok {
		t.Fatal("deal priced below the minimum band must be rejected")
	}
	if _, ok := a.Evaluate(product("12000", "30000"), nil); ok {
		t.Fatal("deal priced above the maximum band must be rejected")
	}
}

func TestEvaluateValidityWindow(t *testing.T) {
	a := testAnalyzer()

	deal, ok := a.Evaluate(product("100", "150"), nil)
	if !ok {
		t.Fatal("expected product to qualify")
	}
	if deal.EndDate == nil {
		t.Fatal("expected an end date")
	}
	want := deal.StartDate.Add(24 * time.Hour)
	if !deal.EndDate.Equal(want) {
		t.Fatalf("daily deal should run 24h, got end %s", deal.EndDate)
	}
}

func TestClassificationPriority(t *testing.T) {
	a := testAnalyzer()

	cases := []struct {
		name     string
		product  catalog.Product
		discount string
		want     catalog.DealType
	}{
		{"lightning", product("50", "100"), "50", catalog.DealLightning},
		{"daily", product("70", "100"), "30", catalog.DealDaily},
		{"weekly", product("82", "100"), "18", catalog.DealWeekly},
		{"other", product("90", "100"), "10", catalog.DealOther},
	}

	for _, tc := range cases {
		got := a.classify(tc.product, dec(tc.discount))
		if got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}

	clearance := product("75", "100")
	clearance.Title = "Clearance sale winter jacket"
	if got := a.classify(clearance, dec("25")); got != catalog.DealClearance {
		t.Errorf("clearance keyword at 25%% should classify as clearance, got %s", got)
	}

	coupon := product("90", "100")
	coupon.HasCoupon = true
	if got := a.classify(coupon, dec("10")); got != catalog.DealCoupon {
		t.Errorf("coupon signal below 15%% should classify as coupon, got %s", got)
	}
}

func TestQualityScoreSubScores(t *testing.T) {
	a := testAnalyzer()

	// Discount sub-score only: 33.33/70*10 = 4.76 weighted at 0.4, price
	// band 8 (price 100) weighted at 0.2, neutral rating 5 at 0.2.
	p := product("100", "150")
	p.Availability = catalog.AvailabilityUnknown

	got := a.qualityScore(p, dec("33.33"))
	want := round2((33.33/70.0*10)*0.4 + 5*0.2 + 8*0.2)
	if got != want {
		t.Fatalf("expected score %.2f, got %.2f", want, got)
	}
}

func TestQualityScoreBonusesAndClamp(t *testing.T) {
	a := testAnalyzer()

	p := product("400", "900")
	p.Rating = f64Ptr(5)
	p.ReviewCount = intPtr(5000)
	p.IsPrime = true
	p.Brand = "Samsung"

	got := a.qualityScore(p, dec("99"))
	if got < 0 || got > 10 {
		t.Fatalf("score must stay in [0,10], got %.2f", got)
	}
	// 10*0.4 + 10*0.2 + 10*0.2 + 10*0.2 = 10 before bonuses; clamp holds.
	if got != 10 {
		t.Fatalf("maxed sub-scores plus bonuses should clamp at 10, got %.2f", got)
	}
}

func TestQualityScoreMissingFields(t *testing.T) {
	a := testAnalyzer()

	p := catalog.Product{ASIN: "B000000001", Title: "Mystery item"}
	got := a.qualityScore(p, dec("20"))
	if got < 0 || got > 10 {
		t.Fatalf("score must stay in [0,10] with missing fields, got %.2f", got)
	}
}

func TestPriceTrend(t *testing.T) {
	obs := func(prices ...string) []catalog.PriceObservation {
		out := make([]catalog.PriceObservation, len(prices))
		for i, p := range prices {
			out[i] = catalog.PriceObservation{Price: dec(p)}
		}
		return out
	}

	cases := []struct {
		name    string
		history []catalog.PriceObservation
		want    string
	}{
		{"insufficient", obs("10", "10"), catalog.TrendInsufficient},
		{"no older basis", obs("10", "10", "10"), catalog.TrendStable},
		{"rising", obs("100", "100", "100", "150", "150", "150"), catalog.TrendRising},
		{"declining", obs("100", "100", "100", "50", "50", "50"), catalog.TrendDeclining},
		{"stable", obs("100", "100", "100", "101", "99", "100"), catalog.TrendStable},
	}

	for _, tc := range cases {
		if got := priceTrend(tc.history); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestDedupFirstSeenWins(t *testing.T) {
	batch := []catalog.Deal{
		{ASIN: "B000000001", QualityScore: 5},
		{ASIN: "B000000001", QualityScore: 9},
		{ASIN: "B000000001", QualityScore: 7},
	}

	out := Dedup(batch)
	if len(out) != 1 {
		t.Fatalf("expected 1 deal after dedup, got %d", len(out))
	}
	if out[0].QualityScore != 5 {
		t.Fatalf("dedup must keep the first-seen deal, got score %.1f", out[0].QualityScore)
	}

	again := Dedup(out)
	if len(again) != 1 || again[0].ASIN != out[0].ASIN {
		t.Fatal("dedup must be idempotent")
	}
}

func TestRankOrderAndFeatured(t *testing.T) {
	batch := []catalog.Deal{
		{ASIN: "A", QualityScore: 5, DiscountPercent: dec("20")},
		{ASIN: "B", QualityScore: 9, DiscountPercent: dec("30")},
		{ASIN: "C", QualityScore: 9, DiscountPercent: dec("50")},
		{ASIN: "D", QualityScore: 7, DiscountPercent: dec("25")},
		{ASIN: "E", QualityScore: 7, DiscountPercent: dec("25")},
		{ASIN: "F", QualityScore: 6, DiscountPercent: dec("40")},
	}

	out := Rank(batch)

	wantOrder := []string{"C", "B", "D", "E", "F", "A"}
	for i, asin := range wantOrder {
		if out[i].ASIN != asin {
			t.Fatalf("position %d: expected %s, got %s", i, asin, out[i].ASIN)
		}
		if out[i].PriorityRank != i+1 {
			t.Fatalf("position %d: expected rank %d, got %d", i, i+1, out[i].PriorityRank)
		}
	}

	for i, d := range out {
		if i < 5 && !d.Featured {
			t.Errorf("top-5 deal %s should be featured", d.ASIN)
		}
		if i >= 5 && d.Featured {
			t.Errorf("deal %s outside the top 5 should not be featured", d.ASIN)
		}
	}
}
