// Package fxrate resolves the authoritative USD to local-currency rate for a
// given date, with a same-day cache and a fixed intraday cutover after which a
// fresh rate must be fetched from the external source.
package fxrate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/shared"
)

// Rate is the resolved USD→local rate for a date. At most one current rate
// exists per date; a post-cutover refetch supersedes the morning record.
type Rate struct {
	Date      time.Time
	Value     decimal.Decimal
	Source    string
	FetchedAt time.Time
}

// Quote is what the external rate source returns for a requested date.
type Quote struct {
	Value      decimal.Decimal
	SourceDate time.Time
	Provider   string
}

// Source fetches rates from the external provider. Implementations may fail
// or time out; the resolver never retries and never substitutes a fallback.
type Source interface {
	Fetch(ctx context.Context, date time.Time) (Quote, error)
}

// Repository persists exchange-rate records.
type Repository interface {
	RateFor(ctx context.Context, date time.Time) (Rate, error)
	Upsert(ctx context.Context, rate Rate) error
}

var (
	// ErrRateNotFound indicates no stored rate for the requested date.
	ErrRateNotFound = fmt.Errorf("fxrate: rate %w", shared.ErrNotFound)
	// ErrSourceUnavailable indicates the external rate source failed or timed
	// out. Surfaced immediately: billing must not run on a fabricated rate.
	ErrSourceUnavailable = fmt.Errorf("fxrate: rate source unreachable: %w", shared.ErrDependency)
)
