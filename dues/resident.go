package dues

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rukun/jimpitan-engine/docstore"
)

// =============================================================================
// RESIDENT - Profile document carrying the credit balance
// =============================================================================

type Resident struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	House         string          `json:"house,omitempty"`
	CreditBalance decimal.Decimal `json:"creditBalance"`
}

// CreateResident registers a resident with a zero credit balance.
func (s *Service) CreateResident(ctx context.Context, name, house string) (Resident, error) {
	if strings.TrimSpace(name) == "" {
		return Resident{}, ErrInvalidParameter
	}
	if s.store == nil {
		return Resident{}, docstore.ErrStoreUnavailable
	}

	r := Resident{
		ID:            uuid.NewString(),
		Name:          name,
		House:         house,
		CreditBalance: decimal.Zero,
	}
	if err := s.store.Set(ctx, residentPath(r.ID), r); err != nil {
		return Resident{}, err
	}
	return r, nil
}

// GetResident loads one resident profile.
func (s *Service) GetResident(ctx context.Context, residentID string) (Resident, error) {
	if residentID == "" {
		return Resident{}, ErrInvalidParameter
	}
	if s.store == nil {
		return Resident{}, docstore.ErrStoreUnavailable
	}
	var r Resident
	if err := s.store.Get(ctx, residentPath(residentID), &r); err != nil {
		return Resident{}, err
	}
	return r, nil
}

// ListResidents returns all residents sorted by name.
// Degrades to an empty list when the store is not initialized.
func (s *Service) ListResidents(ctx context.Context) ([]Resident, error) {
	if s.store == nil {
		return nil, nil
	}
	raws, err := s.store.List(ctx, residentCollection)
	if err != nil {
		return nil, err
	}
	residents, err := docstore.DecodeAll[Resident](raws)
	if err != nil {
		return nil, err
	}
	sort.Slice(residents, func(i, j int) bool { return residents[i].Name < residents[j].Name })
	return residents, nil
}

// AdjustCredit is the administrator override for the credit balance.
// The new balance must not be negative.
func (s *Service) AdjustCredit(ctx context.Context, residentID string, balance decimal.Decimal) error {
	if residentID == "" || balance.IsNegative() {
		return ErrInvalidParameter
	}
	if s.store == nil {
		return docstore.ErrStoreUnavailable
	}
	err := s.store.Update(ctx, residentPath(residentID), map[string]any{
		"creditBalance": balance,
	})
	if err != nil {
		return err
	}
	s.coord.Invalidate(ledgerKeyFor(residentID))
	return nil
}
