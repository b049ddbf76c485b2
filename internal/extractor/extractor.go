// Package extractor parses catalog markup into Product records. It is
// deliberately tolerant: field extraction is independent per field, a
// container that cannot be parsed is skipped, and a whole page never fails
// because of one bad container.
package extractor

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealwatch/internal/catalog"
)

var (
	asinFromPath = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)
	percentRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	ratingRe     = regexp.MustCompile(`(\d+\.?\d*)`)
	reviewsRe    = regexp.MustCompile(`\((\d+(?:,\d+)*)\)`)
	reviewsAltRe = regexp.MustCompile(`(\d+(?:,\d+)*)`)
	nonPriceRe   = regexp.MustCompile(`[^0-9.,]`)
)

// Extractor turns raw markup into products. baseURL resolves relative links.
type Extractor struct {
	baseURL string
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs an Extractor for the given catalog base URL.
func New(baseURL string, logger zerolog.Logger) *Extractor {
	return &Extractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With().Str("component", "extractor").Logger(),
		now:     time.Now,
	}
}

// ParseSearchPage extracts products from a search results page in document
// order. Containers without an identifier or current price are dropped.
func (e *Extractor) ParseSearchPage(markup []byte) []catalog.Product {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		e.logger.Debug().Err(err).Msg("unparsable search markup")
		return nil
	}

	var products []catalog.Product
	doc.Find("div[data-component-type='s-search-result']").Each(func(_ int, sel *goquery.Selection) {
		asin := strings.TrimSpace(sel.AttrOr("data-asin", ""))
		if p, ok := e.extractProduct(sel, asin); ok {
			products = append(products, p)
		}
	})
	return products
}

// ParseDealsPage extracts products from the deals index page. The identifier
// is recovered from each card's product link.
func (e *Extractor) ParseDealsPage(markup []byte) []catalog.Product {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		e.logger.Debug().Err(err).Msg("unparsable deals markup")
		return nil
	}

	var products []catalog.Product
	doc.Find("div[data-testid='deal-card']").Each(func(_ int, sel *goquery.Selection) {
		href := sel.Find("a").First().AttrOr("href", "")
		m := asinFromPath.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if p, ok := e.extractProduct(sel, m[1]); ok {
			products = append(products, p)
		}
	})
	return products
}

// ParseProductPage extracts a single product from its detail page. The
// second return value is false when no current price could be found.
func (e *Extractor) ParseProductPage(markup []byte, asin string) (catalog.Product, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil || !catalog.ValidASIN(asin) {
		return catalog.Product{}, false
	}

	p := catalog.Product{
		ASIN:         asin,
		URL:          e.baseURL + "/dp/" + asin,
		Availability: catalog.AvailabilityUnknown,
		ScrapedAt:    e.now(),
	}

	p.Title = strings.TrimSpace(doc.Find("#productTitle").First().Text())
	p.Brand = strings.TrimSpace(doc.Find("#bylineInfo").First().Text())
	p.ImageURL = doc.Find("#landingImage").First().AttrOr("src", "")

	p.CurrentPrice = parsePrice(doc.Find("span.a-price-whole").First().Text())
	p.OriginalPrice = parsePrice(doc.Find("span.a-price-was").First().Text())
	deriveDiscount(&p)

	if r := parseRating(doc.Find("span.a-icon-alt").First().Text()); r != nil {
		p.Rating = r
	}
	if text := doc.Find("#acrCustomerReviewText").First().Text(); text != "" {
		if m := reviewsAltRe.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
				p.ReviewCount = &n
			}
		}
	}

	return p, p.CurrentPrice != nil
}

// extractProduct pulls every field it can from one item container. Fields
// fail independently; only a missing ASIN or current price drops the item.
func (e *Extractor) extractProduct(sel *goquery.Selection, asin string) (catalog.Product, bool) {
	if !catalog.ValidASIN(asin) {
		return catalog.Product{}, false
	}

	p := catalog.Product{
		ASIN:         asin,
		Availability: catalog.AvailabilityUnknown,
		ScrapedAt:    e.now(),
	}

	title := sel.Find("h2 span").First().Text()
	if title == "" {
		title = sel.Find("span.a-size-medium").First().Text()
	}
	p.Title = strings.TrimSpace(title)

	if href := sel.Find("h2 a").First().AttrOr("href", ""); href != "" {
		p.URL = e.resolve(href)
	} else {
		p.URL = e.baseURL + "/dp/" + asin
	}

	p.ImageURL = sel.Find("img.s-image").First().AttrOr("src", "")

	p.CurrentPrice = parsePrice(sel.Find("span.a-price-whole").First().Text())
	if p.CurrentPrice == nil {
		return catalog.Product{}, false
	}

	orig := sel.Find("span.a-price-was").First().Text()
	if orig == "" {
		orig = sel.Find("span.a-text-price").First().Text()
	}
	p.OriginalPrice = parsePrice(orig)

	deriveDiscount(&p)

	// An explicit percentage badge wins over the derived value.
	badge := sel.Find("span.a-badge-text").First().Text()
	if m := percentRe.FindStringSubmatch(badge); m != nil {
		if v, err := decimal.NewFromString(m[1]); err == nil {
			p.DiscountPercent = &v
		}
	}

	p.Rating = parseRating(sel.Find("span.a-icon-alt").First().Text())

	sel.Find("span.a-size-base").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := reviewsRe.FindStringSubmatch(s.Text())
		if m == nil {
			return true
		}
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			p.ReviewCount = &n
			return false
		}
		return true
	})

	p.IsPrime = sel.Find("span.a-icon-prime").Length() > 0
	p.HasCoupon = sel.Find("span.s-coupon-unclipped, span[class*='coupon']").Length() > 0

	avail := strings.ToLower(strings.TrimSpace(sel.Find("span.a-size-base-plus").First().Text()))
	switch {
	case strings.Contains(avail, "out of stock") || strings.Contains(avail, "غير متوفر"):
		p.Availability = catalog.AvailabilityOutOfStock
	case strings.Contains(avail, "in stock") || strings.Contains(avail, "متوفر"):
		p.Availability = catalog.AvailabilityInStock
	}

	p.SellerName = strings.TrimSpace(sel.Find("span.a-row.a-size-base.a-color-secondary span").First().Text())

	return p, true
}

func (e *Extractor) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return e.baseURL + href
}

// deriveDiscount computes the discount from the two prices when no explicit
// value is present and the original price genuinely exceeds the current one.
func deriveDiscount(p *catalog.Product) {
	if p.DiscountPercent != nil || p.CurrentPrice == nil || p.OriginalPrice == nil {
		return
	}
	if p.OriginalPrice.GreaterThan(*p.CurrentPrice) {
		d := p.OriginalPrice.Sub(*p.CurrentPrice).
			Div(*p.OriginalPrice).
			Mul(decimal.NewFromInt(100)).
			Round(2)
		p.DiscountPercent = &d
	}
}

// parsePrice strips currency symbols and thousands separators from price
// text. Unparsable text yields nil, never zero.
func parsePrice(text string) *decimal.Decimal {
	clean := nonPriceRe.ReplaceAllString(strings.TrimSpace(text), "")
	clean = strings.ReplaceAll(clean, ",", "")
	if clean == "" || clean == "." {
		return nil
	}
	v, err := decimal.NewFromString(clean)
	if err != nil || v.IsNegative() {
		return nil
	}
	return &v
}

func parseRating(text string) *float64 {
	m := ratingRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}
