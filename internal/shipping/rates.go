package shipping

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"wishwell/pkg/domain"
	"wishwell/pkg/platform/circuit"
)

// RateService is the external carrier-rate collaborator.
type RateService interface {
	GetRates(ctx context.Context, addr Address, items []ItemRef, totalWeightGrams int) ([]Rate, error)
}

// QuoteCache stores recent live quotes keyed by address identity and weight.
// Fallback quotes are never cached.
type QuoteCache interface {
	Get(ctx context.Context, key string) ([]Rate, bool)
	Set(ctx context.Context, key string, rates []Rate)
}

// Fixed two-tier fallback used when the live rate service is unavailable.
// Availability over precision: checkout is never blocked by a rate outage.
const (
	fallbackStandardPrice  = domain.Cents(799)
	fallbackStandardDays   = 7
	fallbackExpeditedPrice = domain.Cents(1999)
	fallbackExpeditedDays  = 2
)

// Quoter returns ranked shipping rates for one shipment group, guarding the
// upstream rate service with a circuit breaker and serving a fixed fallback
// when it is open or failing.
type Quoter struct {
	svc     RateService
	cache   QuoteCache
	breaker *circuit.Breaker
	logger  *slog.Logger
	now     func() time.Time

	// probe state for half-open behavior: while the breaker is open, one
	// request per cooldown window still tries the upstream.
	mu        sync.Mutex
	lastProbe time.Time
	cooldown  time.Duration
}

// QuoterOption configures a Quoter.
type QuoterOption func(*Quoter)

// WithQuoteCache attaches a quote cache.
func WithQuoteCache(c QuoteCache) QuoterOption {
	return func(q *Quoter) { q.cache = c }
}

// WithProbeCooldown overrides how often an open breaker probes the upstream.
func WithProbeCooldown(d time.Duration) QuoterOption {
	return func(q *Quoter) { q.cooldown = d }
}

// WithClock overrides the time source; for tests.
func WithClock(now func() time.Time) QuoterOption {
	return func(q *Quoter) { q.now = now }
}

// NewQuoter builds a Quoter around the given rate service.
func NewQuoter(svc RateService, logger *slog.Logger, opts ...QuoterOption) *Quoter {
	q := &Quoter{
		svc:      svc,
		breaker:  circuit.New("rate-service", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(2)),
		logger:   logger,
		now:      time.Now,
		cooldown: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Quote returns ranked rate options for the address and items. It never
// returns an empty list: upstream failure or an open circuit yields the fixed
// two-tier fallback, flagged as such.
func (q *Quoter) Quote(ctx context.Context, addr Address, items []ItemRef, totalWeightGrams int) []Rate {
	cacheKey := addr.Key() + ":" + itemsFingerprint(items, totalWeightGrams)
	if q.cache != nil {
		if rates, ok := q.cache.Get(ctx, cacheKey); ok {
			return rates
		}
	}

	if q.breaker.IsOpen() && !q.shouldProbe() {
		return q.fallback()
	}

	rates, err := q.svc.GetRates(ctx, addr, items, totalWeightGrams)
	if err != nil || len(rates) == 0 {
		if _, change := q.breaker.RecordFailure(); change.Opened {
			q.logger.Warn("rate service circuit opened", "error", errString(err))
		}
		return q.fallback()
	}
	if _, change := q.breaker.RecordSuccess(); change.Closed {
		q.logger.Info("rate service circuit closed")
	}

	sort.SliceStable(rates, func(i, j int) bool { return rates[i].Price < rates[j].Price })
	if q.cache != nil {
		q.cache.Set(ctx, cacheKey, rates)
	}
	return rates
}

func (q *Quoter) shouldProbe() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	if now.Sub(q.lastProbe) >= q.cooldown {
		q.lastProbe = now
		return true
	}
	return false
}

func (q *Quoter) fallback() []Rate {
	now := q.now()
	return []Rate{
		{
			ID:                "fallback-standard",
			Title:             "Standard Shipping",
			Price:             fallbackStandardPrice,
			DeliveryDays:      fallbackStandardDays,
			EstimatedDelivery: now.AddDate(0, 0, fallbackStandardDays),
			Fallback:          true,
		},
		{
			ID:                "fallback-expedited",
			Title:             "Expedited Shipping",
			Price:             fallbackExpeditedPrice,
			DeliveryDays:      fallbackExpeditedDays,
			EstimatedDelivery: now.AddDate(0, 0, fallbackExpeditedDays),
			Fallback:          true,
		},
	}
}

func itemsFingerprint(items []ItemRef, totalWeightGrams int) string {
	// Weight plus item count is enough cache discrimination; the address key
	// carries the rest.
	return strconv.Itoa(len(items)) + ":" + strconv.Itoa(totalWeightGrams)
}

func errString(err error) string {
	if err == nil {
		return "empty rate response"
	}
	return err.Error()
}
