// Package registry exposes read-only lookups over the condominium's master
// data: apartment contribution percentages, apartment selection queries and
// resident membership. The billing core consumes these as collaborator ports;
// apartments and residents are managed elsewhere.
package registry

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/shared"
)

// SelectionKind enumerates the supported apartment selection queries.
type SelectionKind string

const (
	SelectAll      SelectionKind = "ALL"
	SelectByTower  SelectionKind = "BY_TOWER"
	SelectByFloor  SelectionKind = "BY_FLOOR"
	SelectExplicit SelectionKind = "EXPLICIT_IDS"
)

// Selection describes which apartments an expense is shared by.
type Selection struct {
	Kind         SelectionKind
	Tower        string
	Floor        int
	ApartmentIDs []int64
}

// Validate checks the selection arguments match its kind.
func (s Selection) Validate() error {
	switch s.Kind {
	case SelectAll:
		return nil
	case SelectByTower:
		if s.Tower == "" {
			return fmt.Errorf("%w: tower required", shared.ErrValidation)
		}
	case SelectByFloor:
		if s.Floor <= 0 {
			return fmt.Errorf("%w: floor required", shared.ErrValidation)
		}
	case SelectExplicit:
		if len(s.ApartmentIDs) == 0 {
			return fmt.Errorf("%w: apartment ids required", shared.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown selection kind %q", shared.ErrValidation, s.Kind)
	}
	return nil
}

// Apartments answers apartment selection and contribution lookups.
type Apartments interface {
	// PercentageOf returns the apartment's fractional contribution, in (0, 1].
	// Percentages are defined to sum to 1 over the entire building.
	PercentageOf(ctx context.Context, apartmentID int64) (decimal.Decimal, error)
	// SelectApartments resolves a selection to apartment ids, ascending.
	SelectApartments(ctx context.Context, sel Selection) ([]int64, error)
}

// Residents answers resident membership checks.
type Residents interface {
	ResidentBelongsTo(ctx context.Context, residentID, apartmentID int64) (bool, error)
}

var (
	// ErrApartmentNotFound indicates an unknown apartment or one whose type
	// carries no contribution percentage.
	ErrApartmentNotFound = fmt.Errorf("registry: apartment %w", shared.ErrNotFound)
	// ErrResidentNotFound indicates an unknown resident.
	ErrResidentNotFound = fmt.Errorf("registry: resident %w", shared.ErrNotFound)
)
