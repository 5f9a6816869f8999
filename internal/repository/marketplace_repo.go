package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ideahub/backend/internal/database"
	"github.com/ideahub/backend/internal/models"
)

const itemColumns = `id, seller_id, title, description, price, content_url, created_at`

// MarketplaceRepo stores marketplace items and purchases in Postgres.
type MarketplaceRepo struct {
	pool *pgxpool.Pool
}

// NewMarketplaceRepo returns a new MarketplaceRepo.
func NewMarketplaceRepo(pool *pgxpool.Pool) *MarketplaceRepo {
	return &MarketplaceRepo{pool: pool}
}

func scanItem(row rowScanner) (*models.MarketplaceItem, error) {
	var it models.MarketplaceItem
	if err := row.Scan(&it.ID, &it.SellerID, &it.Title, &it.Description, &it.Price, &it.ContentURL, &it.CreatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

// CreateItem inserts a new listing.
func (r *MarketplaceRepo) CreateItem(ctx context.Context, it *models.MarketplaceItem) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO marketplace_items (id, seller_id, title, description, price, content_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, it.ID, it.SellerID, it.Title, it.Description, it.Price, it.ContentURL).Scan(&it.CreatedAt)
}

// GetItem returns the listing with the given id.
func (r *MarketplaceRepo) GetItem(ctx context.Context, id uuid.UUID) (*models.MarketplaceItem, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM marketplace_items WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "marketplace item")
	}
	return it, nil
}

// ListItems returns listings, newest first.
func (r *MarketplaceRepo) ListItems(ctx context.Context, limit int) ([]*models.MarketplaceItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM marketplace_items ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.MarketplaceItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, it)
	}
	return list, rows.Err()
}

// HasPurchase reports whether buyerID already owns itemID.
func (r *MarketplaceRepo) HasPurchase(ctx context.Context, tx pgx.Tx, buyerID, itemID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchases WHERE buyer_id = $1 AND item_id = $2)`, buyerID, itemID).Scan(&exists)
	return exists, err
}

// CreatePurchase records a purchase inside tx.
func (r *MarketplaceRepo) CreatePurchase(ctx context.Context, tx pgx.Tx, p *models.Purchase) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO purchases (id, buyer_id, seller_id, item_id, amount, fee)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, p.ID, p.BuyerID, p.SellerID, p.ItemID, p.Amount, p.Fee).Scan(&p.CreatedAt)
	if database.IsUniqueViolation(err, "purchases_buyer_id_item_id_key") {
		return fmt.Errorf("%w: item %s", models.ErrAlreadyPurchased, p.ItemID)
	}
	return err
}
