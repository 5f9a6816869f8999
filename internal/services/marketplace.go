package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/events"
	"github.com/ideahub/backend/internal/metrics"
	"github.com/ideahub/backend/internal/models"
)

// ItemStore persists marketplace listings and purchases.
type ItemStore interface {
	CreateItem(ctx context.Context, it *models.MarketplaceItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.MarketplaceItem, error)
	ListItems(ctx context.Context, limit int) ([]*models.MarketplaceItem, error)
	HasPurchase(ctx context.Context, tx pgx.Tx, buyerID, itemID uuid.UUID) (bool, error)
	CreatePurchase(ctx context.Context, tx pgx.Tx, p *models.Purchase) error
}

// CreateItemInput is the seller-supplied part of a new listing.
type CreateItemInput struct {
	Title       string
	Description string
	Price       decimal.Decimal
	ContentURL  string
}

// MarketplaceService sells digital content with immediate settlement: the
// buyer pays, the seller is credited less commission, no escrow phase.
type MarketplaceService struct {
	ledger         Ledger
	items          ItemStore
	tx             TxRunner
	commissionRate decimal.Decimal
	events         events.Emitter
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// NewMarketplaceService returns a MarketplaceService that keeps
// commissionRate of every sale for the platform.
func NewMarketplaceService(ledger Ledger, items ItemStore, tx TxRunner, commissionRate decimal.Decimal, emitter events.Emitter, m *metrics.Metrics, logger *slog.Logger) *MarketplaceService {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &MarketplaceService{
		ledger:         ledger,
		items:          items,
		tx:             tx,
		commissionRate: commissionRate,
		events:         emitter,
		metrics:        m,
		logger:         logger,
	}
}

// CreateItem lists a new item for sale by the principal.
func (s *MarketplaceService) CreateItem(ctx context.Context, p models.Principal, in CreateItemInput) (*models.MarketplaceItem, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if err := models.CheckAmount("price", in.Price); err != nil {
		return nil, err
	}
	it := &models.MarketplaceItem{
		ID:          uuid.New(),
		SellerID:    p.ID,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		ContentURL:  strings.TrimSpace(in.ContentURL),
	}
	if err := s.items.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// GetItem returns the listing with the given id.
func (s *MarketplaceService) GetItem(ctx context.Context, id uuid.UUID) (*models.MarketplaceItem, error) {
	return s.items.GetItem(ctx, id)
}

// ListItems returns listings.
func (s *MarketplaceService) ListItems(ctx context.Context, limit int) ([]*models.MarketplaceItem, error) {
	return s.items.ListItems(ctx, limit)
}

// BuyItem purchases a listing at its current price and returns the purchase
// together with the item so the caller can hand over the content.
func (s *MarketplaceService) BuyItem(ctx context.Context, p models.Principal, itemID uuid.UUID) (*models.Purchase, *models.MarketplaceItem, error) {
	it, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	pur, err := s.Purchase(ctx, p.ID, it.SellerID, it.ID, it.Price)
	if err != nil {
		return nil, nil, err
	}
	return pur, it, nil
}

// Purchase settles one sale. The buyer is debited amount (PAYMENT), the
// seller credited amount-fee (DEPOSIT) and the fee recorded against the
// seller's sale on the platform wallet (FEE). A buyer can own an item once.
func (s *MarketplaceService) Purchase(ctx context.Context, buyerID, sellerID, itemID uuid.UUID, amount decimal.Decimal) (*models.Purchase, error) {
	if err := models.CheckAmount("amount", amount); err != nil {
		return nil, err
	}
	if buyerID == sellerID {
		return nil, fmt.Errorf("%w: buyer %s is the seller", models.ErrSelfPurchase, buyerID)
	}
	fee, payout := SplitFee(amount, s.commissionRate)

	pur := &models.Purchase{
		ID:       uuid.New(),
		BuyerID:  buyerID,
		SellerID: sellerID,
		ItemID:   itemID,
		Amount:   amount,
		Fee:      fee,
	}
	err := s.tx.WithTx(ctx, "purchase", func(ctx context.Context, tx pgx.Tx) error {
		// The buyer's wallet lock serializes their purchases, so the
		// ownership check below cannot race another purchase by them.
		wallets, err := s.ledger.LockWallets(ctx, tx, buyerID, sellerID, models.PlatformUserID)
		if err != nil {
			return err
		}
		owned, err := s.items.HasPurchase(ctx, tx, buyerID, itemID)
		if err != nil {
			return err
		}
		if owned {
			return fmt.Errorf("%w: item %s", models.ErrAlreadyPurchased, itemID)
		}
		buyer := wallets[buyerID]
		if buyer.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, price %s", models.ErrInsufficientFunds, buyer.Balance, amount)
		}

		if _, err := s.ledger.ApplyMutation(ctx, tx, buyer.ID, amount.Neg(), decimal.Zero, &models.Transaction{
			Type:           models.TxPayment,
			Amount:         amount,
			ReferenceID:    &itemID,
			CounterpartyID: &sellerID,
			Description:    fmt.Sprintf("Purchase of item %s", itemID),
		}); err != nil {
			return err
		}
		if payout.IsPositive() {
			if _, err := s.ledger.ApplyMutation(ctx, tx, wallets[sellerID].ID, payout, decimal.Zero, &models.Transaction{
				Type:           models.TxDeposit,
				Amount:         payout,
				ReferenceID:    &itemID,
				CounterpartyID: &buyerID,
				Description:    fmt.Sprintf("Sale of item %s", itemID),
			}); err != nil {
				return err
			}
		}
		if fee.IsPositive() {
			if _, err := s.ledger.ApplyMutation(ctx, tx, wallets[models.PlatformUserID].ID, fee, decimal.Zero, &models.Transaction{
				Type:           models.TxFee,
				Amount:         fee,
				ReferenceID:    &itemID,
				CounterpartyID: &sellerID,
				Description:    fmt.Sprintf("Marketplace commission on item %s", itemID),
			}); err != nil {
				return err
			}
		}
		return s.items.CreatePurchase(ctx, tx, pur)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Purchase()
	s.logger.Info("purchase completed", "purchase_id", pur.ID, "item_id", itemID, "buyer_id", buyerID, "seller_id", sellerID, "amount", amount, "fee", fee)
	s.events.PurchaseCompleted(ctx, events.PurchaseCompleted{
		PurchaseID: pur.ID,
		ItemID:     itemID,
		BuyerID:    buyerID,
		SellerID:   sellerID,
		Amount:     amount.String(),
	})
	return pur, nil
}
