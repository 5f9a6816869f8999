package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ideahub/backend/internal/models"
)

// MarketplaceRepo keeps listings and purchases in the Store.
type MarketplaceRepo struct {
	s *Store
}

// NewMarketplaceRepo returns a MarketplaceRepo over s.
func NewMarketplaceRepo(s *Store) *MarketplaceRepo { return &MarketplaceRepo{s: s} }

// CreateItem stores a new listing.
func (r *MarketplaceRepo) CreateItem(_ context.Context, it *models.MarketplaceItem) error {
	return r.s.autocommit(func() error {
		it.CreatedAt = time.Now().UTC()
		r.s.items[it.ID] = cloneItem(it)
		return nil
	})
}

// GetItem returns the listing with the given id.
func (r *MarketplaceRepo) GetItem(_ context.Context, id uuid.UUID) (*models.MarketplaceItem, error) {
	var out *models.MarketplaceItem
	err := r.s.read(nil, func() error {
		it, ok := r.s.items[id]
		if !ok {
			return fmt.Errorf("%w: marketplace item", models.ErrNotFound)
		}
		out = cloneItem(it)
		return nil
	})
	return out, err
}

// ListItems returns listings, newest first.
func (r *MarketplaceRepo) ListItems(_ context.Context, limit int) ([]*models.MarketplaceItem, error) {
	var out []*models.MarketplaceItem
	err := r.s.read(nil, func() error {
		for _, it := range r.s.items {
			out = append(out, cloneItem(it))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// HasPurchase reports whether buyerID already owns itemID.
func (r *MarketplaceRepo) HasPurchase(_ context.Context, tx pgx.Tx, buyerID, itemID uuid.UUID) (bool, error) {
	found := false
	err := r.s.read(tx, func() error {
		for _, p := range r.s.purchases {
			if p.BuyerID == buyerID && p.ItemID == itemID {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// CreatePurchase records p inside tx.
func (r *MarketplaceRepo) CreatePurchase(_ context.Context, tx pgx.Tx, p *models.Purchase) error {
	return r.s.write(tx, func() (func(), error) {
		for _, other := range r.s.purchases {
			if other.BuyerID == p.BuyerID && other.ItemID == p.ItemID {
				return nil, fmt.Errorf("%w: item %s", models.ErrAlreadyPurchased, p.ItemID)
			}
		}
		p.CreatedAt = time.Now().UTC()
		r.s.purchases[p.ID] = clonePurchase(p)
		return func() { delete(r.s.purchases, p.ID) }, nil
	})
}
