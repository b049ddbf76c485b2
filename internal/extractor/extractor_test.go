package extractor

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealwatch/internal/catalog"
)

func testExtractor() *Extractor {
	return New("https://www.amazon.sa", zerolog.Nop())
}

const searchResultMarkup = `<html><body>
<div data-component-type="s-search-result" data-asin="B0TESTASIN">
  <h2><a href="/dp/B0TESTASIN"><span>Wireless Headphones Pro</span></a></h2>
  <img class="s-image" src="https://img.example/headphones.jpg"/>
  <span class="a-price"><span class="a-price-whole">100</span></span>
  <span class="a-price-was">150.00 SAR</span>
  <span class="a-icon-alt">4.5 out of 5 stars</span>
  <span class="a-size-base">(1,234)</span>
  <span class="a-icon-prime"></span>
</div>
</body></html>`

func TestParseSearchPageDerivedDiscount(t *testing.T) {
	products := testExtractor().ParseSearchPage([]byte(searchResultMarkup))
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}

	p := products[0]
	if p.ASIN != "B0TESTASIN" {
		t.Fatalf("unexpected asin %q", p.ASIN)
	}
	if p.Title != "Wireless Headphones Pro" {
		t.Fatalf("unexpected title %q", p.Title)
	}
	if p.CurrentPrice == nil || !p.CurrentPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected current price 100, got %v", p.CurrentPrice)
	}
	if p.OriginalPrice == nil || !p.OriginalPrice.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected original price 150, got %v", p.OriginalPrice)
	}
	if p.DiscountPercent == nil || !p.DiscountPercent.Equal(decimal.RequireFromString("33.33")) {
		t.Fatalf("expected derived discount 33.33, got %v", p.DiscountPercent)
	}
	if p.Rating == nil || *p.Rating != 4.5 {
		t.Fatalf("expected rating 4.5, got %v", p.Rating)
	}
	if p.ReviewCount == nil || *p.ReviewCount != 1234 {
		t.Fatalf("expected 1234 reviews, got %v", p.ReviewCount)
	}
	if !p.IsPrime {
		t.Fatal("expected prime flag")
	}
	if p.URL != "https://www.amazon.sa/dp/B0TESTASIN" {
		t.Fatalf("unexpected url %q", p.URL)
	}
}

func TestParseSearchPageExplicitBadgeWins(t *testing.T) {
	markup := `<html><body>
<div data-component-type="s-search-result" data-asin="B0TESTASIN">
  <h2><span>Discounted Thing</span></h2>
  <span class="a-price-whole">80</span>
  <span class="a-price-was">100</span>
  <span class="a-badge-text">25% off</span>
</div>
</body></html>`

	products := testExtractor().ParseSearchPage([]byte(markup))
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	if !products[0].DiscountPercent.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("badge percentage should win over derived value, got %s", products[0].DiscountPercent)
	}
}

func TestParseSearchPageDropsUnusableContainers(t *testing.T) {
	markup := `<html><body>
<div data-component-type="s-search-result" data-asin="bad">
  <h2><span>Invalid identifier</span></h2>
  <span class="a-price-whole">50</span>
</div>
<div data-component-type="s-search-result" data-asin="B0NOPRICE0">
  <h2><span>No price at all</span></h2>
</div>
<div data-component-type="s-search-result" data-asin="B0GOODONE0">
  <h2><span>Usable product</span></h2>
  <span class="a-price-whole">50</span>
</div>
</body></html>`

	products := testExtractor().ParseSearchPage([]byte(markup))
	if len(products) != 1 {
		t.Fatalf("expected only the usable container, got %d", len(products))
	}
	if products[0].ASIN != "B0GOODONE0" {
		t.Fatalf("unexpected asin %q", products[0].ASIN)
	}
}

func TestParseSearchPageMalformedMarkup(t *testing.T) {
	products := testExtractor().ParseSearchPage([]byte("<div><<<not really html"))
	if len(products) != 0 {
		t.Fatalf("malformed markup must yield no products, got %d", len(products))
	}
}

func TestParseDealsPage(t *testing.T) {
	markup := `<html><body>
<div data-testid="deal-card">
  <a href="/dp/B0DEALITEM/ref=something"><span class="a-size-medium">Flash Sale Blender</span></a>
  <span class="a-price-whole">199</span>
  <span class="a-text-price">399</span>
</div>
<div data-testid="deal-card">
  <a href="/gp/not-a-product"></a>
</div>
</body></html>`

	products := testExtractor().ParseDealsPage([]byte(markup))
	if len(products) != 1 {
		t.Fatalf("expected 1 deal product, got %d", len(products))
	}
	if products[0].ASIN != "B0DEALITEM" {
		t.Fatalf("asin should come from the product link, got %q", products[0].ASIN)
	}
	if products[0].DiscountPercent == nil {
		t.Fatal("expected a derived discount from the was-price")
	}
}

func TestParseProductPage(t *testing.T) {
	markup := `<html><body>
<span id="productTitle"> Espresso Machine Deluxe </span>
<span id="bylineInfo">DeLonghi</span>
<img id="landingImage" src="https://img.example/espresso.jpg"/>
<span class="a-price-whole">899</span>
<span class="a-price-was">1,299</span>
<span class="a-icon-alt">4.7 out of 5 stars</span>
<span id="acrCustomerReviewText">2,345 ratings</span>
</body></html>`

	p, ok := testExtractor().ParseProductPage([]byte(markup), "B0MACHINE1")
	if !ok {
		t.Fatal("expected product page to parse")
	}
	if p.Title != "Espresso Machine Deluxe" {
		t.Fatalf("unexpected title %q", p.Title)
	}
	if p.CurrentPrice == nil || !p.CurrentPrice.Equal(decimal.NewFromInt(899)) {
		t.Fatalf("expected price 899, got %v", p.CurrentPrice)
	}
	if p.OriginalPrice == nil || !p.OriginalPrice.Equal(decimal.NewFromInt(1299)) {
		t.Fatalf("thousands separator should be stripped, got %v", p.OriginalPrice)
	}
	if p.ReviewCount == nil || *p.ReviewCount != 2345 {
		t.Fatalf("expected 2345 reviews, got %v", p.ReviewCount)
	}
}

func TestParseProductPageInvalidASIN(t *testing.T) {
	if _, ok := testExtractor().ParseProductPage([]byte("<html></html>"), "short"); ok {
		t.Fatal("invalid identifier must be rejected")
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want string
		nilP bool
	}{
		{"1,299.50 SAR", "1299.50", false},
		{"100", "100", false},
		{"SAR 75", "75", false},
		{"", "", true},
		{"free", "", true},
	}

	for _, tc := range cases {
		got := parsePrice(tc.in)
		if tc.nilP {
			if got != nil {
				t.Errorf("parsePrice(%q): expected nil, got %s", tc.in, got)
			}
			continue
		}
		if got == nil || !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("parsePrice(%q): expected %s, got %v", tc.in, tc.want, got)
		}
	}
}

func TestAvailabilityArabic(t *testing.T) {
	markup := `<html><body>
<div data-component-type="s-search-result" data-asin="B0ARABIC00">
  <h2><span>منتج</span></h2>
  <span class="a-price-whole">60</span>
  <span class="a-size-base-plus">غير متوفر حاليا</span>
</div>
</body></html>`

	products := testExtractor().ParseSearchPage([]byte(markup))
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	if products[0].Availability != catalog.AvailabilityOutOfStock {
		t.Fatalf("expected out_of_stock, got %s", products[0].Availability)
	}
}
