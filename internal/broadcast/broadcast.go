package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealwatch/internal/catalog"
)

// Message is a rendered deal notification ready for transport delivery.
type Message struct {
	Text     string
	ImageURL string
	LinkURL  string
}

// Transport delivers a rendered message to a single chat. It returns the
// provider message id on success.
type Transport interface {
	Send(ctx context.Context, chatID int64, msg Message) (int, error)
}

// ThrottledError reports a provider rate limit with its advised wait.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled by transport, retry after %s", e.RetryAfter)
}

// DeliveryError wraps a non-throttle transport failure for a destination.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to chat %d failed: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// DeliveryRecorder persists one record per delivery attempt.
type DeliveryRecorder interface {
	InsertDeliveryRecord(ctx context.Context, rec catalog.DeliveryRecord) error
}

// Options tune broadcast behaviour.
type Options struct {
	MaxPerDestination int
	PacingDelay       time.Duration
	MaxThrottleWait   time.Duration
	MinQualityScore   float64
}

// Result aggregates the outcome of one broadcast pass.
type Result struct {
	DestinationsReached int
	MessagesSent        int
	MessagesFailed      int
}

// Broadcaster fans a ranked deal batch out to the active destinations,
// honouring per-destination preferences and the transport's rate limits.
type Broadcaster struct {
	transport Transport
	recorder  DeliveryRecorder
	opts      Options
	logger    zerolog.Logger
}

func New(transport Transport, recorder DeliveryRecorder, opts Options, logger zerolog.Logger) *Broadcaster {
	if opts.MaxPerDestination <= 0 {
		opts.MaxPerDestination = 5
	}
	return &Broadcaster{
		transport: transport,
		recorder:  recorder,
		opts:      opts,
		logger:    logger.With().Str("component", "broadcast").Logger(),
	}
}

// Broadcast delivers deals to each destination sequentially. Deals below the
// quality floor are skipped up front; per-destination preference filters are
// applied after that. Destinations are independent: a failure on one never
// aborts the others.
func (b *Broadcaster) Broadcast(ctx context.Context, deals []catalog.Deal, destinations []catalog.Destination) (Result, error) {
	var res Result

	eligible := make([]catalog.Deal, 0, len(deals))
	for _, d := range deals {
		if d.QualityScore >= b.opts.MinQualityScore {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) == 0 || len(destinations) == 0 {
		return res, nil
	}

	for _, dest := range destinations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sent, failed := b.deliverTo(ctx, dest, eligible)
		if sent > 0 {
			res.DestinationsReached++
		}
		res.MessagesSent += sent
		res.MessagesFailed += failed
	}
	return res, nil
}

func (b *Broadcaster) deliverTo(ctx context.Context, dest catalog.Destination, deals []catalog.Deal) (sent, failed int) {
	count := 0
	for _, deal := range deals {
		if count >= b.opts.MaxPerDestination {
			break
		}
		if !matches(dest.Preferences, deal) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sent, failed
		}

		msgID, err := b.sendWithRetry(ctx, dest.ChatID, render(deal))
		count++

		rec := catalog.DeliveryRecord{
			DealID: deal.ID,
			ChatID: dest.ChatID,
			SentAt: time.Now().UTC(),
		}
		if err == nil {
			rec.MessageID = msgID
			rec.Status = "sent"
			sent++
		} else {
			rec.Status = "failed"
			rec.Error = err.Error()
			failed++
			b.logger.Warn().Err(err).Int64("chat_id", dest.ChatID).Str("asin", deal.ASIN).Msg("delivery failed")
		}
		if b.recorder != nil {
			if rerr := b.recorder.InsertDeliveryRecord(ctx, rec); rerr != nil {
				b.logger.Error().Err(rerr).Msg("failed to persist delivery record")
			}
		}

		if b.opts.PacingDelay > 0 && count < b.opts.MaxPerDestination {
			if err := sleepCtx(ctx, b.opts.PacingDelay); err != nil {
				return sent, failed
			}
		}
	}
	return sent, failed
}

// sendWithRetry retries once after a throttle response, provided the advised
// wait fits under MaxThrottleWait. Anything else fails immediately.
func (b *Broadcaster) sendWithRetry(ctx context.Context, chatID int64, msg Message) (int, error) {
	msgID, err := b.transport.Send(ctx, chatID, msg)
	if err == nil {
		return msgID, nil
	}

	var throttled *ThrottledError
	if !errors.As(err, &throttled) {
		return 0, &DeliveryError{ChatID: chatID, Err: err}
	}
	if b.opts.MaxThrottleWait > 0 && throttled.RetryAfter > b.opts.MaxThrottleWait {
		return 0, &DeliveryError{ChatID: chatID, Err: err}
	}
	b.logger.Warn().Dur("retry_after", throttled.RetryAfter).Int64("chat_id", chatID).Msg("transport throttled, backing off")
	if werr := sleepCtx(ctx, throttled.RetryAfter); werr != nil {
		return 0, werr
	}

	msgID, err = b.transport.Send(ctx, chatID, msg)
	if err != nil {
		return 0, &DeliveryError{ChatID: chatID, Err: err}
	}
	return msgID, nil
}

// matches applies a destination's preference filters to a deal.
func matches(p catalog.Preferences, d catalog.Deal) bool {
	if !p.NotificationsOn {
		return false
	}
	if !p.WantsType(d.Type) {
		return false
	}
	if !p.MinDiscount.IsZero() && d.DiscountPercent.LessThan(p.MinDiscount) {
		return false
	}
	if p.MaxPrice != nil && d.DealPrice.GreaterThan(*p.MaxPrice) {
		return false
	}
	return true
}

var dealTypeLabels = map[catalog.DealType]string{
	catalog.DealLightning: "⚡ Lightning Deal",
	catalog.DealDaily:     "🔥 Deal of the Day",
	catalog.DealClearance: "🏷 Clearance",
	catalog.DealCoupon:    "🎟 Coupon Deal",
	catalog.DealWeekly:    "📅 Weekly Offer",
	catalog.DealOther:     "💰 Deal",
}

// render formats a deal as a Markdown notification.
func render(d catalog.Deal) Message {
	label, ok := dealTypeLabels[d.Type]
	if !ok {
		label = dealTypeLabels[catalog.DealOther]
	}

	text := fmt.Sprintf("%s\n\n*%s*\n\n", label, escapeMarkdown(d.Title))
	text += fmt.Sprintf("💵 Price: *%s SAR* ~%s SAR~\n", d.DealPrice.StringFixed(2), d.OriginalPrice.StringFixed(2))
	text += fmt.Sprintf("📉 Discount: *%s%%*\n", d.DiscountPercent.Round(0))
	text += fmt.Sprintf("⭐ Quality: %.1f/10\n", d.QualityScore)
	if d.DiscountAmount.GreaterThan(decimal.Zero) {
		text += fmt.Sprintf("💰 You save: %s SAR\n", d.DiscountAmount.StringFixed(2))
	}
	if d.Summary != "" {
		text += "\n" + d.Summary + "\n"
	}

	return Message{Text: text, ImageURL: d.ImageURL, LinkURL: d.URL}
}

func escapeMarkdown(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '*', '_', '`', '[':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
