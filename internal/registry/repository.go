package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgRegistry reads master data from PostgreSQL. Contribution percentages live
// on the apartment's type (aliquota by apartment type), not on the apartment.
type PgRegistry struct {
	pool *pgxpool.Pool
}

// NewPgRegistry constructs the registry adapter.
func NewPgRegistry(pool *pgxpool.Pool) *PgRegistry {
	return &PgRegistry{pool: pool}
}

// PercentageOf returns the apartment's contribution percentage.
func (r *PgRegistry) PercentageOf(ctx context.Context, apartmentID int64) (decimal.Decimal, error) {
	const query = `
		SELECT t.contribution_pct
		FROM apartments a
		JOIN apartment_types t ON t.id = a.type_id
		WHERE a.id = $1`

	var pct decimal.Decimal
	err := r.pool.QueryRow(ctx, query, apartmentID).Scan(&pct)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrApartmentNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("registry: query percentage: %w", err)
	}
	if !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("registry: apartment %d has invalid contribution %s", apartmentID, pct)
	}
	return pct, nil
}

// SelectApartments resolves a selection to apartment ids in ascending order.
func (r *PgRegistry) SelectApartments(ctx context.Context, sel Selection) ([]int64, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	var (
		rows pgx.Rows
		err  error
	)
	switch sel.Kind {
	case SelectAll:
		rows, err = r.pool.Query(ctx, `SELECT id FROM apartments ORDER BY id`)
	case SelectByTower:
		rows, err = r.pool.Query(ctx, `SELECT id FROM apartments WHERE tower = $1 ORDER BY id`, sel.Tower)
	case SelectByFloor:
		rows, err = r.pool.Query(ctx, `SELECT id FROM apartments WHERE floor = $1 ORDER BY id`, sel.Floor)
	case SelectExplicit:
		rows, err = r.pool.Query(ctx, `SELECT id FROM apartments WHERE id = ANY($1) ORDER BY id`, sel.ApartmentIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: select apartments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("registry: scan apartment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: select apartments: %w", err)
	}

	if sel.Kind == SelectExplicit && len(ids) != len(dedupe(sel.ApartmentIDs)) {
		return nil, ErrApartmentNotFound
	}
	return ids, nil
}

// ResidentBelongsTo reports whether the resident lives in the apartment.
func (r *PgRegistry) ResidentBelongsTo(ctx context.Context, residentID, apartmentID int64) (bool, error) {
	const query = `SELECT apartment_id FROM residents WHERE id = $1`

	var homeID int64
	err := r.pool.QueryRow(ctx, query, residentID).Scan(&homeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrResidentNotFound
	}
	if err != nil {
		return false, fmt.Errorf("registry: query resident: %w", err)
	}
	return homeID == apartmentID, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
