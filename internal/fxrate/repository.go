package fxrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository persists exchange-rate records in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// RateFor returns the current rate record for a date.
func (r *PgRepository) RateFor(ctx context.Context, date time.Time) (Rate, error) {
	const query = `
		SELECT rate_date, rate_value, source, fetched_at
		FROM exchange_rates
		WHERE rate_date = $1`

	var rate Rate
	err := r.pool.QueryRow(ctx, query, date).Scan(&rate.Date, &rate.Value, &rate.Source, &rate.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	if err != nil {
		return Rate{}, fmt.Errorf("fxrate: query rate: %w", err)
	}
	return rate, nil
}

// Upsert inserts the rate for its date, superseding a stale same-day record.
func (r *PgRepository) Upsert(ctx context.Context, rate Rate) error {
	const query = `
		INSERT INTO exchange_rates (rate_date, rate_value, source, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (rate_date) DO UPDATE
		SET rate_value = EXCLUDED.rate_value,
		    source = EXCLUDED.source,
		    fetched_at = EXCLUDED.fetched_at`

	if _, err := r.pool.Exec(ctx, query, rate.Date, rate.Value, rate.Source, rate.FetchedAt); err != nil {
		return fmt.Errorf("fxrate: upsert rate: %w", err)
	}
	return nil
}
