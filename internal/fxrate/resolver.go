package fxrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCutover is the local time of day after which the morning rate is
// considered stale and a fresh one must be fetched.
const DefaultCutover = 16*time.Hour + 30*time.Minute

// Resolver applies the intraday refresh policy: before the cutover a stored
// same-day rate is authoritative; after it, the rate must have been fetched
// post-cutover or it is refetched once.
type Resolver struct {
	source       Source
	repo         Repository
	cache        *RateCache
	cutover      time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
	group        singleflight.Group
}

// ResolverConfig collects the resolver dependencies.
type ResolverConfig struct {
	Source       Source
	Repository   Repository
	Cache        *RateCache
	Cutover      time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Source == nil {
		return nil, errors.New("fxrate: source is required")
	}
	if cfg.Repository == nil {
		return nil, errors.New("fxrate: repository is required")
	}
	cutover := cfg.Cutover
	if cutover <= 0 {
		cutover = DefaultCutover
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	return &Resolver{
		source:       cfg.Source,
		repo:         cfg.Repository,
		cache:        cfg.Cache,
		cutover:      cutover,
		fetchTimeout: fetchTimeout,
		logger:       cfg.Logger,
		now:          time.Now,
	}, nil
}

// WithNow overrides the clock for deterministic tests.
func (r *Resolver) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// CurrentRate returns the authoritative rate for asOf. A stored rate is
// returned as-is before the cutover; after the cutover it is returned only if
// it was itself fetched after the cutover. Otherwise the source is queried
// once (no retry) and the record for asOf is upserted.
func (r *Resolver) CurrentRate(ctx context.Context, asOf time.Time) (Rate, error) {
	day := truncateToDay(asOf)

	if rate, ok := r.lookup(ctx, day); ok && r.isFresh(rate, day) {
		return rate, nil
	}

	v, err, _ := r.group.Do(day.Format("2006-01-02"), func() (any, error) {
		// Re-check under singleflight: a concurrent caller may have
		// refreshed the record already.
		if rate, ok := r.lookup(ctx, day); ok && r.isFresh(rate, day) {
			return rate, nil
		}
		return r.refresh(ctx, day)
	})
	if err != nil {
		return Rate{}, err
	}
	return v.(Rate), nil
}

func (r *Resolver) lookup(ctx context.Context, day time.Time) (Rate, bool) {
	if r.cache != nil {
		if rate, ok := r.cache.Get(ctx, day); ok {
			return rate, true
		}
	}
	rate, err := r.repo.RateFor(ctx, day)
	if err != nil {
		if !errors.Is(err, ErrRateNotFound) && r.logger != nil {
			r.logger.Warn("fx rate lookup failed", slog.String("date", day.Format("2006-01-02")), slog.Any("error", err))
		}
		return Rate{}, false
	}
	if r.cache != nil {
		r.cache.Put(ctx, rate)
	}
	return rate, true
}

// isFresh reports whether a stored rate still satisfies the cutover policy at
// the current wall-clock time.
func (r *Resolver) isFresh(rate Rate, day time.Time) bool {
	now := r.now()
	cutoverAt := day.Add(r.cutover)
	if now.Before(cutoverAt) {
		return true
	}
	return !rate.FetchedAt.Before(cutoverAt)
}

func (r *Resolver) refresh(ctx context.Context, day time.Time) (Rate, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	quote, err := r.source.Fetch(fetchCtx, day)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if !quote.Value.IsPositive() {
		return Rate{}, fmt.Errorf("%w: non-positive rate %s", ErrSourceUnavailable, quote.Value)
	}

	rate := Rate{
		Date:      day,
		Value:     quote.Value.Round(4),
		Source:    quote.Provider,
		FetchedAt: r.now(),
	}
	if err := r.repo.Upsert(ctx, rate); err != nil {
		return Rate{}, fmt.Errorf("fxrate: upsert rate: %w", err)
	}
	if r.cache != nil {
		r.cache.Put(ctx, rate)
	}
	return rate, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
