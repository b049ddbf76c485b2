package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// DealType classifies a deal by the rule that produced it.
type DealType string

const (
	DealLightning DealType = "lightning"
	DealDaily     DealType = "daily"
	DealClearance DealType = "clearance"
	DealCoupon    DealType = "coupon"
	DealWeekly    DealType = "weekly"
	DealOther     DealType = "other"
)

// Deal statuses. The active→expired transition is performed by a periodic
// sweep, never by the pipeline itself.
const (
	DealStatusActive  = "active"
	DealStatusExpired = "expired"
)

// Price trend labels derived from historical samples.
const (
	TrendRising       = "rising"
	TrendDeclining    = "declining"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

// DealMetadata carries the analyzer's qualitative labels.
type DealMetadata struct {
	PriceTrend string
	Strength   string
	Urgency    string
	Audiences  []string
}

// Deal is a scored, classified commercial opportunity derived from one
// Product observation.
type Deal struct {
	ID              int64
	ProductID       int64
	ASIN            string
	Title           string
	URL             string
	ImageURL        string
	Type            DealType
	OriginalPrice   decimal.Decimal
	DealPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	QualityScore    float64
	Rating          *float64
	ReviewCount     *int
	StartDate       time.Time
	EndDate         *time.Time
	Status          string
	PriorityRank    int
	Featured        bool
	Summary         string
	Metadata        DealMetadata
}

// Preferences filter which deals a destination receives.
type Preferences struct {
	MinDiscount     decimal.Decimal
	MaxPrice        *decimal.Decimal
	Categories      []string
	DealTypes       []DealType
	NotificationsOn bool
}

// WantsType reports whether the preference set admits the given deal type.
// An empty allow-list admits everything.
func (p Preferences) WantsType(t DealType) bool {
	if len(p.DealTypes) == 0 {
		return true
	}
	for _, dt := range p.DealTypes {
		if dt == t {
			return true
		}
	}
	return false
}

// Destination is a channel or end-user endpoint eligible to receive deals.
// The pipeline treats destinations as read-only; preferences are maintained
// by the command front end.
type Destination struct {
	ChatID      int64
	Name        string
	Kind        string // "channel" or "user"
	Preferences Preferences
	Active      bool
}

// DeliveryRecord is one attempted send of a deal to a destination.
type DeliveryRecord struct {
	DealID    int64
	ChatID    int64
	MessageID int
	Status    string // "sent" or "failed"
	Error     string
	SentAt    time.Time
}
