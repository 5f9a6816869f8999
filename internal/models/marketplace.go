package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketplaceItem is a listing offered for sale.
type MarketplaceItem struct {
	ID          uuid.UUID       `json:"id"`
	SellerID    uuid.UUID       `json:"seller_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ContentURL  string          `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Purchase is unique per (buyer, item).
type Purchase struct {
	ID        uuid.UUID       `json:"id"`
	BuyerID   uuid.UUID       `json:"buyer_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	ItemID    uuid.UUID       `json:"item_id"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	CreatedAt time.Time       `json:"created_at"`
}
