// Package fx is the currency conversion service. It resolves rates through a
// layered lookup: in-process TTL cache, persisted daily-rate table, external
// source, most recent persisted rate, and finally identity. Conversion never
// fails; a missing rate degrades to 1 so financial displays are never blocked.
package fx

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/logger"
	"github.com/ledgerly/ledgerly/internal/store"
)

// Amount is one (value, currency) pair for batch conversion.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// RateSource fetches today's full rate table for a base currency from an
// external provider. Implementations must apply their own request timeout.
type RateSource interface {
	FetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// Options tune the service. Zero values fall back to production defaults.
type Options struct {
	// CacheTTL bounds how long an in-process cached rate stays valid.
	CacheTTL time.Duration
	// Now is the clock; injectable for tests.
	Now func() time.Time
	// PersistTimeout bounds the detached write-back of fetched rates.
	PersistTimeout time.Duration
}

type cacheEntry struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// Service converts amounts between currencies.
type Service struct {
	repo           store.RateRepository
	source         RateSource
	ttl            time.Duration
	now            func() time.Time
	persistTimeout time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates a conversion service over a rate repository and external source.
func New(repo store.RateRepository, source RateSource, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	return &Service{
		repo:           repo,
		source:         source,
		ttl:            opts.CacheTTL,
		now:            opts.Now,
		persistTimeout: opts.PersistTimeout,
		cache:          make(map[string]cacheEntry),
	}
}

// Clear drops every cached rate. Exposed so schedulers and tests can reset
// the cache lifecycle explicitly.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cacheEntry)
}

// Rate resolves the from->to rate for today. It never returns an error: every
// failure falls through the lookup chain and bottoms out at the identity rate.
func (s *Service) Rate(ctx context.Context, from, to string) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if from == to {
		return one
	}

	key := from + "-" + to
	now := s.now()

	s.mu.Lock()
	if e, ok := s.cache[key]; ok && now.Sub(e.fetchedAt) < s.ttl {
		s.mu.Unlock()
		return e.rate
	}
	s.mu.Unlock()

	today := domain.DateOnly(now)
	if r, err := s.repo.FindRate(ctx, from, to, today); err == nil {
		s.remember(key, r.Rate, now)
		return r.Rate
	}

	rates, err := s.source.FetchRates(ctx, from)
	if err == nil {
		if rate, ok := rates[to]; ok && rate.IsPositive() {
			s.remember(key, rate, now)
			s.persistAsync(ctx, from, to, rate, today)
			return rate
		}
	} else {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("from", from).
			Str("to", to).
			Msg("fx: external rate fetch failed, falling back")
	}

	// Most recent persisted rate for the pair, regardless of age.
	if r, err := s.repo.FindLatestRate(ctx, from, to); err == nil {
		s.remember(key, r.Rate, now)
		return r.Rate
	}

	// Last resort: identity. Not cached, so a recovered source is picked up
	// on the next call instead of an hour later.
	return one
}

// Convert converts amount from one currency to another, rounding to 2
// decimals. Identity conversions return the amount untouched.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) decimal.Decimal {
	if from == to {
		return amount
	}
	return amount.Mul(s.Rate(ctx, from, to)).Round(2)
}

// BatchConvert converts items into the target currency, preserving input
// order. Rates are fetched once per distinct non-target currency with one
// concurrent lookup each; no fetch depends on another.
func (s *Service) BatchConvert(ctx context.Context, items []Amount, target string) []decimal.Decimal {
	distinct := make(map[string]struct{})
	for _, it := range items {
		if it.Currency != target {
			distinct[it.Currency] = struct{}{}
		}
	}

	rates := make(map[string]decimal.Decimal, len(distinct))
	var rmu sync.Mutex
	var wg sync.WaitGroup
	for cur := range distinct {
		wg.Add(1)
		go func(cur string) {
			defer wg.Done()
			rate := s.Rate(ctx, cur, target)
			rmu.Lock()
			rates[cur] = rate
			rmu.Unlock()
		}(cur)
	}
	wg.Wait()

	out := make([]decimal.Decimal, len(items))
	for i, it := range items {
		if it.Currency == target {
			out[i] = it.Value
			continue
		}
		out[i] = it.Value.Mul(rates[it.Currency]).Round(2)
	}
	return out
}

func (s *Service) remember(key string, rate decimal.Decimal, at time.Time) {
	s.mu.Lock()
	s.cache[key] = cacheEntry{rate: rate, fetchedAt: at}
	s.mu.Unlock()
}

// persistAsync writes a freshly fetched rate back to the daily-rate table.
// Fire-and-forget: a persist failure must never fail the conversion call.
func (s *Service) persistAsync(ctx context.Context, from, to string, rate decimal.Decimal, day time.Time) {
	log := logger.FromContext(ctx)
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()
		err := s.repo.UpsertRate(pctx, &domain.ExchangeRate{
			BaseCurrency:  from,
			QuoteCurrency: to,
			RateDate:      day,
			Rate:          rate,
			Source:        "currency-api",
		})
		if err != nil {
			log.Warn().Err(err).Str("from", from).Str("to", to).Msg("fx: rate persist failed")
		}
	}()
}
