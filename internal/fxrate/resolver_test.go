package fxrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mirador-hq/mirador/internal/shared"
)

type fakeSource struct {
	quote  Quote
	err    error
	visits int
}

func (f *fakeSource) Fetch(ctx context.Context, date time.Time) (Quote, error) {
	f.visits++
	if f.err != nil {
		return Quote{}, f.err
	}
	return f.quote, nil
}

type memRateRepo struct {
	rates map[string]Rate
}

func newMemRateRepo() *memRateRepo {
	return &memRateRepo{rates: make(map[string]Rate)}
}

func (r *memRateRepo) RateFor(ctx context.Context, date time.Time) (Rate, error) {
	rate, ok := r.rates[date.Format("2006-01-02")]
	if !ok {
		return Rate{}, ErrRateNotFound
	}
	return rate, nil
}

func (r *memRateRepo) Upsert(ctx context.Context, rate Rate) error {
	r.rates[rate.Date.Format("2006-01-02")] = rate
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var day = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func newResolver(t *testing.T, source *fakeSource, repo *memRateRepo, withCache bool) *Resolver {
	t.Helper()
	cfg := ResolverConfig{Source: source, Repository: repo}
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		cfg.Cache = NewRateCache(client, time.Hour)
	}
	resolver, err := NewResolver(cfg)
	require.NoError(t, err)
	return resolver
}

func TestCurrentRateFetchesWhenMissing(t *testing.T) {
	source := &fakeSource{quote: Quote{Value: dec("40.123456"), Provider: "bcv"}}
	repo := newMemRateRepo()
	resolver := newResolver(t, source, repo, false)
	resolver.WithNow(func() time.Time { return day.Add(9 * time.Hour) })

	rate, err := resolver.CurrentRate(context.Background(), day.Add(9*time.Hour))
	require.NoError(t, err)
	require.Equal(t, "40.1235", rate.Value.String())
	require.Equal(t, "bcv", rate.Source)
	require.Equal(t, day, rate.Date)
	require.Equal(t, 1, source.visits)

	stored, err := repo.RateFor(context.Background(), day)
	require.NoError(t, err)
	require.True(t, stored.Value.Equal(rate.Value))
}

func TestCurrentRateReusesStoredRateBeforeCutover(t *testing.T) {
	source := &fakeSource{quote: Quote{Value: dec("41"), Provider: "bcv"}}
	repo := newMemRateRepo()
	require.NoError(t, repo.Upsert(context.Background(), Rate{
		Date:      day,
		Value:     dec("40"),
		Source:    "bcv",
		FetchedAt: day.Add(9 * time.Hour),
	}))

	resolver := newResolver(t, source, repo, false)
	resolver.WithNow(func() time.Time { return day.Add(14 * time.Hour) })

	rate, err := resolver.CurrentRate(context.Background(), day.Add(14*time.Hour))
	require.NoError(t, err)
	require.Equal(t, "40", rate.Value.String())
	require.Zero(t, source.visits)
}

func TestCurrentRateRefetchesOnceAfterCutover(t *testing.T) {
	source := &fakeSource{quote: Quote{Value: dec("41.5"), Provider: "bcv"}}
	repo := newMemRateRepo()
	require.NoError(t, repo.Upsert(context.Background(), Rate{
		Date:      day,
		Value:     dec("40"),
		Source:    "bcv",
		FetchedAt: day.Add(9 * time.Hour),
	}))

	resolver := newResolver(t, source, repo, false)
	afternoon := day.Add(17 * time.Hour)
	resolver.WithNow(func() time.Time { return afternoon })

	rate, err := resolver.CurrentRate(context.Background(), afternoon)
	require.NoError(t, err)
	require.Equal(t, "41.5", rate.Value.String())
	require.Equal(t, 1, source.visits)

	// The refreshed record was itself fetched after the cutover, so the next
	// call reuses it instead of hitting the source again.
	rate, err = resolver.CurrentRate(context.Background(), afternoon.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "41.5", rate.Value.String())
	require.Equal(t, 1, source.visits)
}

func TestCurrentRateFailsFastWhenSourceDown(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	repo := newMemRateRepo()
	resolver := newResolver(t, source, repo, false)
	resolver.WithNow(func() time.Time { return day.Add(9 * time.Hour) })

	_, err := resolver.CurrentRate(context.Background(), day.Add(9*time.Hour))
	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.ErrorIs(t, err, shared.ErrDependency)
	require.Equal(t, 1, source.visits)
}

func TestCurrentRateRejectsNonPositiveQuote(t *testing.T) {
	source := &fakeSource{quote: Quote{Value: decimal.Zero, Provider: "bcv"}}
	repo := newMemRateRepo()
	resolver := newResolver(t, source, repo, false)
	resolver.WithNow(func() time.Time { return day.Add(9 * time.Hour) })

	_, err := resolver.CurrentRate(context.Background(), day.Add(9*time.Hour))
	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.Empty(t, repo.rates)
}

func TestCurrentRateServesFromCache(t *testing.T) {
	source := &fakeSource{quote: Quote{Value: dec("40"), Provider: "bcv"}}
	repo := newMemRateRepo()
	resolver := newResolver(t, source, repo, true)
	resolver.WithNow(func() time.Time { return day.Add(9 * time.Hour) })

	_, err := resolver.CurrentRate(context.Background(), day.Add(9*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, source.visits)

	// Drop the persisted record; the cached entry still answers.
	repo.rates = map[string]Rate{}
	rate, err := resolver.CurrentRate(context.Background(), day.Add(10*time.Hour))
	require.NoError(t, err)
	require.Equal(t, "40", rate.Value.String())
	require.Equal(t, 1, source.visits)
}

func TestRateCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewRateCache(client, time.Hour)

	fetched := day.Add(9 * time.Hour)
	cache.Put(context.Background(), Rate{Date: day, Value: dec("40.1235"), Source: "bcv", FetchedAt: fetched})

	got, ok := cache.Get(context.Background(), day)
	require.True(t, ok)
	require.Equal(t, "40.1235", got.Value.String())
	require.Equal(t, "bcv", got.Source)
	require.True(t, got.FetchedAt.Equal(fetched))

	mr.FastForward(2 * time.Hour)
	_, ok = cache.Get(context.Background(), day)
	require.False(t, ok)
}
