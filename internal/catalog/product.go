// Package catalog defines the records flowing through the discovery
// pipeline: product observations, price samples, deals, and the broadcast
// destinations that consume them.
package catalog

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Availability states observed on a listing.
const (
	AvailabilityInStock    = "in_stock"
	AvailabilityOutOfStock = "out_of_stock"
	AvailabilityUnknown    = "unknown"
)

var asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// ValidASIN reports whether s matches the catalog identifier format.
func ValidASIN(s string) bool {
	return asinPattern.MatchString(s)
}

// Product is a single observation of a catalog listing. Instances are
// created by the extractor and never mutated afterwards; a later observation
// of the same ASIN supersedes an earlier one.
type Product struct {
	ASIN            string
	Title           string
	Brand           string
	ImageURL        string
	URL             string
	CurrentPrice    *decimal.Decimal
	OriginalPrice   *decimal.Decimal
	DiscountPercent *decimal.Decimal
	Rating          *float64
	ReviewCount     *int
	Availability    string
	IsPrime         bool
	HasCoupon       bool
	SellerName      string
	ScrapedAt       time.Time
}

// PriceObservation is one immutable price sample for a stored product.
type PriceObservation struct {
	ProductID    int64
	Price        decimal.Decimal
	Currency     string
	Availability string
	SellerName   string
	IsPrime      bool
	ObservedAt   time.Time
}
