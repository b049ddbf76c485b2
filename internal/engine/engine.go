// Package engine orchestrates one discovery cycle: scraping the worklist,
// evaluating products, persisting deals, and handing the ranked batch to the
// broadcaster.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dealwatch/internal/analyzer"
	"dealwatch/internal/broadcast"
	"dealwatch/internal/catalog"
)

// Fetcher retrieves one catalog page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) ([]byte, error)
}

// Extractor parses catalog markup into product observations.
type Extractor interface {
	ParseSearchPage(markup []byte) []catalog.Product
	ParseDealsPage(markup []byte) []catalog.Product
}

// Evaluator scores a single product observation.
type Evaluator interface {
	Evaluate(p catalog.Product, history []catalog.PriceObservation) (catalog.Deal, bool)
}

// Store covers the persistence the cycle needs.
type Store interface {
	UpsertProduct(ctx context.Context, p catalog.Product) (int64, error)
	InsertPriceObservation(ctx context.Context, obs catalog.PriceObservation) error
	ListRecentPrices(ctx context.Context, productID int64, limit int) ([]catalog.PriceObservation, error)
	InsertDeal(ctx context.Context, deal catalog.Deal, productID int64) (int64, error)
	ListActiveDestinations(ctx context.Context) ([]catalog.Destination, error)
	LogActivity(ctx context.Context, kind, description string, metadata map[string]any) error
}

// SeenFilter suppresses deals already published in a previous cycle.
type SeenFilter interface {
	MarkSeen(ctx context.Context, asin string) (bool, error)
}

// Broadcaster delivers the ranked batch to the active destinations.
type Broadcaster interface {
	Broadcast(ctx context.Context, deals []catalog.Deal, destinations []catalog.Destination) (broadcast.Result, error)
}

// Options tune cycle behaviour.
type Options struct {
	BaseURL      string
	Categories   []string
	MaxWorkers   int
	WorklistMax  int
	HistoryDepth int // price samples fetched per product for trend analysis
}

// CycleMetrics summarises one completed cycle.
type CycleMetrics struct {
	ProductsScraped int
	DealsFound      int
	MessagesSent    int
	MessagesFailed  int
	Errors          int
	StartedAt       time.Time
	Duration        time.Duration
}

// task is one page fetch in the cycle worklist.
type task struct {
	term      string
	dealsPage bool
}

// Engine runs discovery cycles.
type Engine struct {
	fetcher     Fetcher
	extractor   Extractor
	evaluator   Evaluator
	store       Store
	seen        SeenFilter
	broadcaster Broadcaster
	opts        Options
	logger      zerolog.Logger
}

// searchPhrases expand each configured category into concrete search terms.
var searchPhrases = []string{"%s deals", "%s offers", "عروض %s"}

func New(fetcher Fetcher, extractor Extractor, evaluator Evaluator, store Store, seen SeenFilter, broadcaster Broadcaster, opts Options, logger zerolog.Logger) *Engine {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 5
	}
	if opts.WorklistMax <= 0 {
		opts.WorklistMax = 20
	}
	if opts.HistoryDepth <= 0 {
		opts.HistoryDepth = 10
	}
	return &Engine{
		fetcher:     fetcher,
		extractor:   extractor,
		evaluator:   evaluator,
		store:       store,
		seen:        seen,
		broadcaster: broadcaster,
		opts:        opts,
		logger:      logger.With().Str("component", "engine").Logger(),
	}
}

// RunCycle executes one discovery cycle and returns its metrics. Individual
// task and product failures are counted, logged, and never abort the cycle;
// only context cancellation stops it early.
func (e *Engine) RunCycle(ctx context.Context) (CycleMetrics, error) {
	metrics := CycleMetrics{StartedAt: time.Now().UTC()}
	defer func() { metrics.Duration = time.Since(metrics.StartedAt) }()

	products, errCount := e.scrape(ctx)
	metrics.ProductsScraped = len(products)
	metrics.Errors += errCount

	if err := ctx.Err(); err != nil {
		return metrics, err
	}

	deals, evalErrs := e.evaluate(ctx, products)
	metrics.Errors += evalErrs

	deals = analyzer.Dedup(deals)
	deals = e.filterSeen(ctx, deals)
	deals = analyzer.Rank(deals)
	metrics.DealsFound = len(deals)

	// Only deals that made it into the store are broadcast. Delivery records
	// reference the deal row, so an unpersisted deal has nothing to attach to.
	committed := deals[:0]
	for i := range deals {
		id, err := e.store.InsertDeal(ctx, deals[i], deals[i].ProductID)
		if err != nil {
			metrics.Errors++
			e.logger.Error().Err(err).Str("asin", deals[i].ASIN).Msg("failed to persist deal")
			continue
		}
		deals[i].ID = id
		committed = append(committed, deals[i])
	}
	deals = committed

	if err := ctx.Err(); err != nil {
		return metrics, err
	}

	if e.broadcaster != nil && len(deals) > 0 {
		destinations, err := e.store.ListActiveDestinations(ctx)
		if err != nil {
			metrics.Errors++
			e.logger.Error().Err(err).Msg("failed to list destinations")
		} else if len(destinations) > 0 {
			res, err := e.broadcaster.Broadcast(ctx, deals, destinations)
			metrics.MessagesSent = res.MessagesSent
			metrics.MessagesFailed = res.MessagesFailed
			if err != nil {
				return metrics, err
			}
		}
	}

	e.logCycle(ctx, metrics)
	return metrics, nil
}

// scrape runs the worklist through a bounded worker pool and returns every
// extracted product plus the number of failed tasks.
func (e *Engine) scrape(ctx context.Context) ([]catalog.Product, int) {
	tasks := e.worklist()

	taskCh := make(chan task)
	type result struct {
		products []catalog.Product
		err      error
	}
	resultCh := make(chan result)

	var wg sync.WaitGroup
	workers := e.opts.MaxWorkers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				products, err := e.runTask(ctx, t)
				select {
				case resultCh <- result{products: products, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var all []catalog.Product
	errCount := 0
	for res := range resultCh {
		if res.err != nil {
			errCount++
			e.logger.Warn().Err(res.err).Msg("worklist task failed")
			continue
		}
		all = append(all, res.products...)
	}
	return all, errCount
}

// worklist expands categories into search tasks, capped at WorklistMax, and
// always appends the deals landing page.
func (e *Engine) worklist() []task {
	var tasks []task
	for _, phrase := range searchPhrases {
		for _, category := range e.opts.Categories {
			if len(tasks) >= e.opts.WorklistMax {
				break
			}
			tasks = append(tasks, task{term: fmt.Sprintf(phrase, category)})
		}
	}
	tasks = append(tasks, task{dealsPage: true})
	return tasks
}

func (e *Engine) runTask(ctx context.Context, t task) ([]catalog.Product, error) {
	if t.dealsPage {
		body, err := e.fetcher.Fetch(ctx, e.opts.BaseURL+"/gp/goldbox", nil)
		if err != nil {
			return nil, fmt.Errorf("deals page: %w", err)
		}
		return e.extractor.ParseDealsPage(body), nil
	}

	products, err := e.searchPage(ctx, t.term, 1)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", t.term, err)
	}

	// High-yield deal queries get a second page.
	if len(products) >= 15 && (strings.Contains(t.term, "deals") || strings.Contains(t.term, "offers")) {
		more, err := e.searchPage(ctx, t.term, 2)
		if err != nil {
			e.logger.Warn().Err(err).Str("term", t.term).Msg("second page fetch failed")
		} else {
			products = append(products, more...)
		}
	}
	return products, nil
}

func (e *Engine) searchPage(ctx context.Context, term string, page int) ([]catalog.Product, error) {
	params := url.Values{}
	params.Set("k", term)
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	body, err := e.fetcher.Fetch(ctx, e.opts.BaseURL+"/s", params)
	if err != nil {
		return nil, err
	}
	return e.extractor.ParseSearchPage(body), nil
}

// evaluate persists every observation and scores each product. A price
// sample is recorded whether or not the product qualifies as a deal.
func (e *Engine) evaluate(ctx context.Context, products []catalog.Product) ([]catalog.Deal, int) {
	var deals []catalog.Deal
	errCount := 0

	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return deals, errCount
		}

		productID, err := e.store.UpsertProduct(ctx, p)
		if err != nil {
			errCount++
			e.logger.Error().Err(err).Str("asin", p.ASIN).Msg("failed to upsert product")
			continue
		}

		if p.CurrentPrice != nil {
			obs := catalog.PriceObservation{
				ProductID:    productID,
				Price:        *p.CurrentPrice,
				Currency:     "SAR",
				Availability: p.Availability,
				SellerName:   p.SellerName,
				IsPrime:      p.IsPrime,
				ObservedAt:   p.ScrapedAt,
			}
			if err := e.store.InsertPriceObservation(ctx, obs); err != nil {
				errCount++
				e.logger.Error().Err(err).Str("asin", p.ASIN).Msg("failed to record price sample")
			}
		}

		history, err := e.store.ListRecentPrices(ctx, productID, e.opts.HistoryDepth)
		if err != nil {
			errCount++
			e.logger.Error().Err(err).Str("asin", p.ASIN).Msg("failed to load price history")
			history = nil
		}

		deal, ok := e.evaluator.Evaluate(p, history)
		if !ok {
			continue
		}
		deal.ProductID = productID
		deals = append(deals, deal)
	}
	return deals, errCount
}

// filterSeen drops deals published in a previous cycle. Cache failures never
// suppress a deal.
func (e *Engine) filterSeen(ctx context.Context, deals []catalog.Deal) []catalog.Deal {
	if e.seen == nil {
		return deals
	}
	kept := deals[:0]
	for _, d := range deals {
		seen, err := e.seen.MarkSeen(ctx, d.ASIN)
		if err != nil {
			e.logger.Warn().Err(err).Str("asin", d.ASIN).Msg("seen cache lookup failed")
		}
		if seen {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

func (e *Engine) logCycle(ctx context.Context, m CycleMetrics) {
	e.logger.Info().
		Int("products", m.ProductsScraped).
		Int("deals", m.DealsFound).
		Int("sent", m.MessagesSent).
		Int("failed", m.MessagesFailed).
		Int("errors", m.Errors).
		Dur("duration", time.Since(m.StartedAt)).
		Msg("cycle complete")

	err := e.store.LogActivity(ctx, "cycle", "discovery cycle completed", map[string]any{
		"products_scraped": m.ProductsScraped,
		"deals_found":      m.DealsFound,
		"messages_sent":    m.MessagesSent,
		"messages_failed":  m.MessagesFailed,
		"errors":           m.Errors,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to persist cycle activity")
	}
}
