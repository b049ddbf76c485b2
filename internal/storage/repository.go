package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dealwatch/internal/catalog"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertProductSQL = `INSERT INTO products (
        asin, title, brand, image_url, product_url, rating, review_count, seller_name
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    ON CONFLICT (asin) DO UPDATE
    SET title        = EXCLUDED.title,
        brand        = COALESCE(NULLIF(EXCLUDED.brand, ''), products.brand),
        image_url    = COALESCE(NULLIF(EXCLUDED.image_url, ''), products.image_url),
        product_url  = EXCLUDED.product_url,
        rating       = COALESCE(EXCLUDED.rating, products.rating),
        review_count = COALESCE(EXCLUDED.review_count, products.review_count),
        seller_name  = COALESCE(NULLIF(EXCLUDED.seller_name, ''), products.seller_name),
        updated_at   = NOW()
    RETURNING id;`

	insertPriceSQL = `INSERT INTO price_history (
        product_id, price, currency, availability, seller_name, is_prime, observed_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7);`

	listRecentPricesSQL = `SELECT product_id, price, currency, availability,
        COALESCE(seller_name, ''), is_prime, observed_at
    FROM price_history
    WHERE product_id = $1
    ORDER BY observed_at DESC
    LIMIT $2;`

	listPricesBetweenSQL = `SELECT ph.product_id, ph.price, ph.currency, ph.availability,
        COALESCE(ph.seller_name, ''), ph.is_prime, ph.observed_at
    FROM price_history ph
    JOIN products p ON p.id = ph.product_id
    WHERE p.asin = $1 AND ph.observed_at >= $2 AND ph.observed_at < $3
    ORDER BY ph.observed_at;`

	insertDealSQL = `INSERT INTO deals (
        product_id, asin, title, deal_url, image_url, deal_type,
        original_price, deal_price, discount_percentage, discount_amount,
        quality_score, start_date, end_date, deal_status, priority_rank,
        is_featured, summary, price_trend, deal_strength, urgency_level, audiences
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
    RETURNING id;`

	listActiveDealsSQL = `SELECT id, product_id, asin, title, deal_url, image_url, deal_type,
        original_price, deal_price, discount_percentage, discount_amount,
        quality_score, start_date, end_date, deal_status, priority_rank,
        is_featured, summary, price_trend, deal_strength, urgency_level, audiences
    FROM deals
    WHERE deal_status = 'active'
    ORDER BY quality_score DESC, discount_percentage DESC
    LIMIT $1;`

	expireDealsSQL = `UPDATE deals
    SET deal_status = 'expired'
    WHERE deal_status = 'active' AND end_date IS NOT NULL AND end_date < $1;`

	listDestinationsSQL = `SELECT chat_id, name, kind, min_discount, max_price,
        categories, deal_types, notifications_on
    FROM destinations
    WHERE is_active = TRUE
    ORDER BY created_at;`

	insertDeliverySQL = `INSERT INTO sent_messages (
        deal_id, chat_id, message_id, delivery_status, error_message, sent_at
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	insertActivitySQL = `INSERT INTO activity_log (kind, description, metadata)
    VALUES ($1,$2,$3);`

	cleanupPricesSQL   = `DELETE FROM price_history WHERE observed_at < $1;`
	cleanupActivitySQL = `DELETE FROM activity_log WHERE created_at < $1;`
	cleanupDealsSQL    = `DELETE FROM deals WHERE deal_status = 'expired' AND end_date < $1;`

	countProductsSQL     = `SELECT COUNT(*) FROM products;`
	countActiveDealsSQL  = `SELECT COUNT(*) FROM deals WHERE deal_status = 'active';`
	countSentTodaySQL    = `SELECT COUNT(*) FROM sent_messages WHERE sent_at::date = CURRENT_DATE AND delivery_status = 'sent';`
	countFailedTodaySQL  = `SELECT COUNT(*) FROM sent_messages WHERE sent_at::date = CURRENT_DATE AND delivery_status = 'failed';`
	countDestinationsSQL = `SELECT COUNT(*) FROM destinations WHERE is_active = TRUE;`
)

// ProductStore persists product observations and price samples.
type ProductStore interface {
	UpsertProduct(ctx context.Context, p catalog.Product) (int64, error)
	InsertPriceObservation(ctx context.Context, obs catalog.PriceObservation) error
	ListRecentPrices(ctx context.Context, productID int64, limit int) ([]catalog.PriceObservation, error)
	ListPricesBetween(ctx context.Context, asin string, from, to time.Time) ([]catalog.PriceObservation, error)
}

// DealStore persists discovered deals.
type DealStore interface {
	InsertDeal(ctx context.Context, deal catalog.Deal, productID int64) (int64, error)
	ListActiveDeals(ctx context.Context, limit int) ([]catalog.Deal, error)
	ExpireDeals(ctx context.Context, now time.Time) (int64, error)
}

// DestinationStore reads the broadcast targets.
type DestinationStore interface {
	ListActiveDestinations(ctx context.Context) ([]catalog.Destination, error)
}

// DeliveryLog records every attempted send.
type DeliveryLog interface {
	InsertDeliveryRecord(ctx context.Context, rec catalog.DeliveryRecord) error
}

// ActivityLog records notable system events.
type ActivityLog interface {
	LogActivity(ctx context.Context, kind, description string, metadata map[string]any) error
}

// Store aggregates all persistence behind one pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertProduct inserts or refreshes a product row and returns its id.
func (s *Store) UpsertProduct(ctx context.Context, p catalog.Product) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	err = pool.QueryRow(ctx, upsertProductSQL,
		p.ASIN,
		truncate(p.Title, 500),
		truncate(p.Brand, 255),
		truncate(p.ImageURL, 500),
		truncate(p.URL, 500),
		p.Rating,
		p.ReviewCount,
		truncate(p.SellerName, 255),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert product: %w", err)
	}
	return id, nil
}

// InsertPriceObservation appends one immutable price sample.
func (s *Store) InsertPriceObservation(ctx context.Context, obs catalog.PriceObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, insertPriceSQL,
		obs.ProductID,
		obs.Price.String(),
		obs.Currency,
		obs.Availability,
		truncate(obs.SellerName, 255),
		obs.IsPrime,
		obs.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("insert price observation: %w", err)
	}
	return nil
}

// ListRecentPrices returns up to limit samples for a product, oldest first.
func (s *Store) ListRecentPrices(ctx context.Context, productID int64, limit int) ([]catalog.PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPricesSQL, productID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent prices: %w", queryErr)
	}
	defer rows.Close()

	obs := make([]catalog.PriceObservation, 0, limit)
	for rows.Next() {
		var o catalog.PriceObservation
		var price string
		if scanErr := rows.Scan(&o.ProductID, &price, &o.Currency, &o.Availability, &o.SellerName, &o.IsPrime, &o.ObservedAt); scanErr != nil {
			return nil, scanErr
		}
		o.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", price, err)
		}
		obs = append(obs, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// Query returns newest first; history consumers want oldest first.
	for i, j := 0, len(obs)-1; i < j; i, j = i+1, j-1 {
		obs[i], obs[j] = obs[j], obs[i]
	}
	return obs, nil
}

// ListPricesBetween returns every price sample for an ASIN inside
// [from, to), oldest first.
func (s *Store) ListPricesBetween(ctx context.Context, asin string, from, to time.Time) ([]catalog.PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesBetweenSQL, asin, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices between: %w", queryErr)
	}
	defer rows.Close()

	var obs []catalog.PriceObservation
	for rows.Next() {
		var o catalog.PriceObservation
		var price string
		if scanErr := rows.Scan(&o.ProductID, &price, &o.Currency, &o.Availability, &o.SellerName, &o.IsPrime, &o.ObservedAt); scanErr != nil {
			return nil, scanErr
		}
		o.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", price, err)
		}
		obs = append(obs, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return obs, nil
}

// InsertDeal persists a deal linked to a stored product and returns its id.
func (s *Store) InsertDeal(ctx context.Context, deal catalog.Deal, productID int64) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	err = pool.QueryRow(ctx, insertDealSQL,
		productID,
		deal.ASIN,
		truncate(deal.Title, 500),
		truncate(deal.URL, 500),
		truncate(deal.ImageURL, 500),
		string(deal.Type),
		deal.OriginalPrice.String(),
		deal.DealPrice.String(),
		deal.DiscountPercent.String(),
		deal.DiscountAmount.String(),
		deal.QualityScore,
		deal.StartDate,
		deal.EndDate,
		deal.Status,
		deal.PriorityRank,
		deal.Featured,
		deal.Summary,
		deal.Metadata.PriceTrend,
		deal.Metadata.Strength,
		deal.Metadata.Urgency,
		deal.Metadata.Audiences,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert deal: %w", err)
	}
	return id, nil
}

// ListActiveDeals returns the highest-ranked active deals.
func (s *Store) ListActiveDeals(ctx context.Context, limit int) ([]catalog.Deal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveDealsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list active deals: %w", queryErr)
	}
	defer rows.Close()

	deals := make([]catalog.Deal, 0, limit)
	for rows.Next() {
		deal, scanErr := scanDeal(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		deals = append(deals, deal)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return deals, nil
}

// ExpireDeals flips past-end-date deals to expired and reports how many.
func (s *Store) ExpireDeals(ctx context.Context, now time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, expireDealsSQL, now)
	if execErr != nil {
		return 0, fmt.Errorf("expire deals: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// ListActiveDestinations returns every destination eligible for broadcast.
func (s *Store) ListActiveDestinations(ctx context.Context) ([]catalog.Destination, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDestinationsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list destinations: %w", queryErr)
	}
	defer rows.Close()

	var dests []catalog.Destination
	for rows.Next() {
		var d catalog.Destination
		var minDiscount string
		var maxPrice *string
		var dealTypes []string
		if scanErr := rows.Scan(&d.ChatID, &d.Name, &d.Kind, &minDiscount, &maxPrice,
			&d.Preferences.Categories, &dealTypes, &d.Preferences.NotificationsOn); scanErr != nil {
			return nil, scanErr
		}
		d.Preferences.MinDiscount, err = decimal.NewFromString(minDiscount)
		if err != nil {
			return nil, fmt.Errorf("parse min discount %q: %w", minDiscount, err)
		}
		if maxPrice != nil {
			mp, perr := decimal.NewFromString(*maxPrice)
			if perr != nil {
				return nil, fmt.Errorf("parse max price %q: %w", *maxPrice, perr)
			}
			d.Preferences.MaxPrice = &mp
		}
		for _, t := range dealTypes {
			d.Preferences.DealTypes = append(d.Preferences.DealTypes, catalog.DealType(t))
		}
		d.Active = true
		dests = append(dests, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return dests, nil
}

// InsertDeliveryRecord records one attempted send.
func (s *Store) InsertDeliveryRecord(ctx context.Context, rec catalog.DeliveryRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg any
	if rec.Error != "" {
		errMsg = truncate(rec.Error, 500)
	}

	_, err = pool.Exec(ctx, insertDeliverySQL,
		rec.DealID, rec.ChatID, rec.MessageID, rec.Status, errMsg, rec.SentAt)
	if err != nil {
		return fmt.Errorf("insert delivery record: %w", err)
	}
	return nil
}

// LogActivity appends an audit log entry.
func (s *Store) LogActivity(ctx context.Context, kind, description string, metadata map[string]any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var meta []byte
	if metadata != nil {
		meta, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
	}

	if _, err := pool.Exec(ctx, insertActivitySQL, kind, description, meta); err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}

// CleanupOldData removes price samples and activity rows older than the
// cutoff and deletes long-expired deals.
func (s *Store) CleanupOldData(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, q := range []string{cleanupPricesSQL, cleanupActivitySQL, cleanupDealsSQL} {
		if _, execErr := pool.Exec(ctx, q, olderThan); execErr != nil {
			return fmt.Errorf("cleanup: %w", execErr)
		}
	}
	return nil
}

// CountStats gathers the aggregate counters for reporting.
func (s *Store) CountStats(ctx context.Context) (Stats, error) {
	pool, err := s.getPool()
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	counts := []struct {
		sql  string
		dest *int64
	}{
		{countProductsSQL, &stats.ProductsTotal},
		{countActiveDealsSQL, &stats.ActiveDeals},
		{countSentTodaySQL, &stats.MessagesToday},
		{countFailedTodaySQL, &stats.FailuresToday},
		{countDestinationsSQL, &stats.DestinationsOn},
	}
	for _, c := range counts {
		if scanErr := pool.QueryRow(ctx, c.sql).Scan(c.dest); scanErr != nil {
			return Stats{}, fmt.Errorf("count stats: %w", scanErr)
		}
	}
	return stats, nil
}

func scanDeal(rows pgx.Rows) (catalog.Deal, error) {
	var d catalog.Deal
	var dealType string
	var original, price, discountPct, discountAmt string
	if err := rows.Scan(&d.ID, &d.ProductID, &d.ASIN, &d.Title, &d.URL, &d.ImageURL, &dealType,
		&original, &price, &discountPct, &discountAmt,
		&d.QualityScore, &d.StartDate, &d.EndDate, &d.Status, &d.PriorityRank,
		&d.Featured, &d.Summary, &d.Metadata.PriceTrend, &d.Metadata.Strength,
		&d.Metadata.Urgency, &d.Metadata.Audiences); err != nil {
		return catalog.Deal{}, err
	}
	d.Type = catalog.DealType(dealType)
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&d.OriginalPrice, original},
		{&d.DealPrice, price},
		{&d.DiscountPercent, discountPct},
		{&d.DiscountAmount, discountAmt},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return catalog.Deal{}, fmt.Errorf("parse deal amount %q: %w", f.raw, err)
		}
		*f.dst = v
	}
	return d, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var (
	_ ProductStore     = (*Store)(nil)
	_ DealStore        = (*Store)(nil)
	_ DestinationStore = (*Store)(nil)
	_ DeliveryLog      = (*Store)(nil)
	_ ActivityLog      = (*Store)(nil)
)
