// Package analyzer decides which product observations qualify as deals,
// scores them, and ranks the per-cycle batch.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealwatch/internal/catalog"
)

// Weights distribute the quality score across its sub-scores. The defaults
// sum to 1.0 but that is not enforced.
type Weights struct {
	Discount    float64
	Rating      float64
	ReviewCount float64
	PriceRange  float64
}

// DefaultWeights mirror the production configuration.
func DefaultWeights() Weights {
	return Weights{Discount: 0.4, Rating: 0.2, ReviewCount: 0.2, PriceRange: 0.2}
}

// Options configure the analyzer thresholds.
type Options struct {
	MinDiscount       decimal.Decimal
	MinPrice          decimal.Decimal
	MaxPrice          decimal.Decimal
	Weights           Weights
	ClearanceKeywords []string
	KnownBrands       []string
	Now               func() time.Time
}

var defaultClearanceKeywords = []string{"clearance", "outlet", "last chance", "final sale", "تصفية"}

var defaultKnownBrands = []string{"samsung", "apple", "sony", "lg", "hp", "dell", "nike", "adidas"}

// Validity window per deal type.
var dealDurations = map[catalog.DealType]time.Duration{
	catalog.DealLightning: 6 * time.Hour,
	catalog.DealDaily:     24 * time.Hour,
	catalog.DealWeekly:    7 * 24 * time.Hour,
	catalog.DealClearance: 30 * 24 * time.Hour,
	catalog.DealCoupon:    14 * 24 * time.Hour,
	catalog.DealOther:     3 * 24 * time.Hour,
}

// Analyzer evaluates products against the deal heuristics. Evaluate is pure
// with respect to its inputs; the product record is never mutated.
type Analyzer struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs an Analyzer.
func New(opts Options, logger zerolog.Logger) *Analyzer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.ClearanceKeywords) == 0 {
		opts.ClearanceKeywords = defaultClearanceKeywords
	}
	if len(opts.KnownBrands) == 0 {
		opts.KnownBrands = defaultKnownBrands
	}
	zero := Weights{}
	if opts.Weights == zero {
		opts.Weights = DefaultWeights()
	}
	return &Analyzer{opts: opts, logger: logger.With().Str("component", "analyzer").Logger()}
}

// Evaluate decides whether p represents a significant deal. history holds
// prior price samples ordered oldest first. The second return value is false
// when the product does not qualify; that outcome is normal, not an error.
func (a *Analyzer) Evaluate(p catalog.Product, history []catalog.PriceObservation) (catalog.Deal, bool) {
	discount, ok := a.effectiveDiscount(p)
	if !ok {
		return catalog.Deal{}, false
	}

	current := decimal.Zero
	if p.CurrentPrice != nil {
		current = *p.CurrentPrice
	}
	original := current
	if p.OriginalPrice != nil && p.OriginalPrice.GreaterThan(current) {
		original = *p.OriginalPrice
	}

	dealType := a.classify(p, discount)
	score := a.qualityScore(p, discount)

	// Stricter second gate: quality floor and price band on top of the
	// discount threshold.
	if score < 4.0 || discount.LessThan(a.opts.MinDiscount) {
		return catalog.Deal{}, false
	}
	if current.LessThan(a.opts.MinPrice) || current.GreaterThan(a.opts.MaxPrice) {
		return catalog.Deal{}, false
	}

	now := a.opts.Now()
	end := now.Add(dealDurations[dealType])

	deal := catalog.Deal{
		ASIN:            p.ASIN,
		Title:           p.Title,
		URL:             p.URL,
		ImageURL:        p.ImageURL,
		Type:            dealType,
		OriginalPrice:   original,
		DealPrice:       current,
		DiscountPercent: discount,
		DiscountAmount:  original.Sub(current),
		QualityScore:    score,
		Rating:          p.Rating,
		ReviewCount:     p.ReviewCount,
		StartDate:       now,
		EndDate:         &end,
		Status:          catalog.DealStatusActive,
		Featured:        score >= 8.0,
		Metadata: catalog.DealMetadata{
			PriceTrend: priceTrend(history),
			Strength:   strength(discount, score),
			Urgency:    urgency(dealType, score),
			Audiences:  a.audiences(p),
		},
	}
	deal.Summary = summarize(deal)
	return deal, true
}

// effectiveDiscount returns the discount used for gating: the explicit value
// when present, otherwise one derived from the price pair. Products below the
// configured minimum yield ok=false.
func (a *Analyzer) effectiveDiscount(p catalog.Product) (decimal.Decimal, bool) {
	if p.DiscountPercent != nil && p.DiscountPercent.GreaterThanOrEqual(a.opts.MinDiscount) {
		return *p.DiscountPercent, true
	}

	if p.OriginalPrice != nil && p.CurrentPrice != nil && p.OriginalPrice.GreaterThan(*p.CurrentPrice) {
		derived := p.OriginalPrice.Sub(*p.CurrentPrice).
			Div(*p.OriginalPrice).
			Mul(decimal.NewFromInt(100)).
			Round(2)
		if derived.GreaterThanOrEqual(a.opts.MinDiscount) {
			return derived, true
		}
	}

	return decimal.Zero, false
}

// classify assigns the deal type; the first matching rule wins.
func (a *Analyzer) classify(p catalog.Product, discount decimal.Decimal) catalog.DealType {
	d := discount.InexactFloat64()
	switch {
	case d >= 50:
		return catalog.DealLightning
	case d >= 30:
		return catalog.DealDaily
	case d >= 20 && a.isClearance(p.Title):
		return catalog.DealClearance
	case p.HasCoupon:
		return catalog.DealCoupon
	case d >= 15:
		return catalog.DealWeekly
	default:
		return catalog.DealOther
	}
}

func (a *Analyzer) isClearance(title string) bool {
	title = strings.ToLower(title)
	for _, kw := range a.opts.ClearanceKeywords {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

// qualityScore computes the weighted 0–10 composite plus unweighted bonuses.
func (a *Analyzer) qualityScore(p catalog.Product, discount decimal.Decimal) float64 {
	w := a.opts.Weights

	discountScore := math.Min(10, discount.InexactFloat64()/70*10)

	ratingScore := 5.0 // neutral default when unrated
	if p.Rating != nil {
		ratingScore = *p.Rating / 5 * 10
	}

	reviewScore := 0.0
	if p.ReviewCount != nil {
		reviewScore = math.Min(10, float64(*p.ReviewCount)/1000*10)
	}

	price := 0.0
	if p.CurrentPrice != nil {
		price = p.CurrentPrice.InexactFloat64()
	}

	total := discountScore*w.Discount +
		ratingScore*w.Rating +
		reviewScore*w.ReviewCount +
		priceBandScore(price)*w.PriceRange

	if p.IsPrime {
		total += 0.5
	}
	if p.Availability == catalog.AvailabilityInStock {
		total += 0.3
	}
	if a.isKnownBrand(p.Brand) {
		total += 0.2
	}

	return round2(math.Min(10, math.Max(0, total)))
}

func priceBandScore(price float64) float64 {
	switch {
	case price <= 100:
		return 8
	case price <= 500:
		return 10
	case price <= 1000:
		return 7
	case price <= 2000:
		return 5
	default:
		return 3
	}
}

func (a *Analyzer) isKnownBrand(brand string) bool {
	brand = strings.ToLower(brand)
	if brand == "" {
		return false
	}
	for _, b := range a.opts.KnownBrands {
		if strings.Contains(brand, b) {
			return true
		}
	}
	return false
}

// priceTrend labels the direction of travel of up to the last ten samples.
// It compares the mean of the most recent three against the mean of the
// older ones; without an older basis the trend is reported stable.
func priceTrend(history []catalog.PriceObservation) string {
	if len(history) < 3 {
		return catalog.TrendInsufficient
	}

	samples := history
	if len(samples) > 10 {
		samples = samples[len(samples)-10:]
	}

	recent := samples[len(samples)-3:]
	older := samples[:len(samples)-3]
	if len(older) == 0 {
		return catalog.TrendStable
	}

	recentAvg := meanPrice(recent)
	olderAvg := meanPrice(older)

	switch {
	case recentAvg > olderAvg*1.1:
		return catalog.TrendRising
	case recentAvg < olderAvg*0.9:
		return catalog.TrendDeclining
	default:
		return catalog.TrendStable
	}
}

func meanPrice(obs []catalog.PriceObservation) float64 {
	sum := 0.0
	for _, o := range obs {
		sum += o.Price.InexactFloat64()
	}
	return sum / float64(len(obs))
}

func strength(discount decimal.Decimal, quality float64) string {
	d := discount.InexactFloat64()
	switch {
	case d >= 50 && quality >= 8:
		return "excellent"
	case d >= 30 && quality >= 7:
		return "very_good"
	case d >= 20 && quality >= 6:
		return "good"
	case d >= 15 && quality >= 5:
		return "fair"
	default:
		return "weak"
	}
}

func urgency(t catalog.DealType, quality float64) string {
	switch {
	case t == catalog.DealLightning || quality >= 9:
		return "high"
	case t == catalog.DealDaily || t == catalog.DealClearance || quality >= 7:
		return "medium"
	default:
		return "low"
	}
}

func (a *Analyzer) audiences(p catalog.Product) []string {
	title := strings.ToLower(p.Title)
	var out []string

	if p.CurrentPrice != nil {
		price := p.CurrentPrice.InexactFloat64()
		if price <= 100 {
			out = append(out, "budget_conscious")
		} else if price >= 1000 {
			out = append(out, "premium_buyers")
		}
	}

	switch {
	case containsAny(title, "laptop", "computer", "gaming"):
		out = append(out, "tech_enthusiasts")
	case containsAny(title, "fashion", "clothing", "shoes"):
		out = append(out, "fashion_lovers")
	case containsAny(title, "home", "kitchen", "furniture"):
		out = append(out, "homeowners")
	case containsAny(title, "book", "kindle"):
		out = append(out, "readers")
	}

	if len(out) == 0 {
		return []string{"general"}
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func summarize(d catalog.Deal) string {
	var b strings.Builder
	switch d.Type {
	case catalog.DealLightning:
		b.WriteString(fmt.Sprintf("Lightning deal: %s%% off", d.DiscountPercent.StringFixed(0)))
	case catalog.DealDaily:
		b.WriteString(fmt.Sprintf("Deal of the day: %s%% off", d.DiscountPercent.StringFixed(0)))
	case catalog.DealClearance:
		b.WriteString(fmt.Sprintf("Clearance: %s%% off", d.DiscountPercent.StringFixed(0)))
	default:
		b.WriteString(fmt.Sprintf("Deal: %s%% off", d.DiscountPercent.StringFixed(0)))
	}
	if d.DiscountAmount.IsPositive() {
		b.WriteString(fmt.Sprintf(", save %s", d.DiscountAmount.StringFixed(0)))
	}
	switch d.Metadata.Urgency {
	case "high":
		b.WriteString(", limited stock, ends soon")
	case "medium":
		b.WriteString(", limited time offer")
	}
	return b.String()
}

// Dedup keeps only the first deal seen per ASIN, preserving input order.
// Applying it twice yields the same batch as applying it once.
func Dedup(deals []catalog.Deal) []catalog.Deal {
	seen := make(map[string]struct{}, len(deals))
	out := make([]catalog.Deal, 0, len(deals))
	for _, d := range deals {
		if _, dup := seen[d.ASIN]; dup {
			continue
		}
		seen[d.ASIN] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Rank stably sorts the batch descending by (quality score, discount),
// assigns 1-based priority ranks, and marks the top five as featured.
// Equal deals keep their relative input order.
func Rank(deals []catalog.Deal) []catalog.Deal {
	out := make([]catalog.Deal, len(deals))
	copy(out, deals)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QualityScore != out[j].QualityScore {
			return out[i].QualityScore > out[j].QualityScore
		}
		return out[i].DiscountPercent.GreaterThan(out[j].DiscountPercent)
	})

	for i := range out {
		out[i].PriorityRank = i + 1
		if i < 5 {
			out[i].Featured = true
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
