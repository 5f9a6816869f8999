package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ideahub/backend/internal/models"
)

func listItem(t *testing.T, f *fixture, seller models.Principal, price string) *models.MarketplaceItem {
	t.Helper()
	it, err := f.market.CreateItem(context.Background(), seller, CreateItemInput{
		Title:      "Pitch deck template",
		Price:      dec(price),
		ContentURL: "https://files.example.com/deck.key",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return it
}

func TestPurchaseArithmetic(t *testing.T) {
	f := newFixture(t)
	buyer := f.newUser(t, "500")
	seller := f.newUser(t, "0")
	item := listItem(t, f, seller, "50")

	pur, got, err := f.market.BuyItem(context.Background(), buyer, item.ID)
	if err != nil {
		t.Fatalf("BuyItem: %v", err)
	}
	if got.ContentURL != item.ContentURL {
		t.Errorf("content url: got %q", got.ContentURL)
	}
	if !pur.Amount.Equal(dec("50")) || !pur.Fee.Equal(dec("10")) {
		t.Errorf("purchase: amount=%s fee=%s", pur.Amount, pur.Fee)
	}
	f.wantWallet(t, buyer.ID, "450", "0")
	f.wantWallet(t, seller.ID, "40", "0")
	f.wantWallet(t, models.PlatformUserID, "10", "0")

	byType := f.entries(t, item.ID)
	payment := byType[models.TxPayment]
	deposit := byType[models.TxDeposit]
	fee := byType[models.TxFee]
	if len(payment) != 1 || len(deposit) != 1 || len(fee) != 1 {
		t.Fatalf("entries: payment=%d deposit=%d fee=%d", len(payment), len(deposit), len(fee))
	}
	if !deposit[0].Amount.Add(fee[0].Amount).Equal(payment[0].Amount) {
		t.Errorf("seller payout + fee != buyer payment")
	}
	if fee[0].CounterpartyID == nil || *fee[0].CounterpartyID != seller.ID {
		t.Error("fee entry should be attributed to the seller")
	}
	if len(f.emitter.sales) != 1 {
		t.Errorf("purchase events: got %d, want 1", len(f.emitter.sales))
	}
}

func TestPurchaseGuards(t *testing.T) {
	f := newFixture(t)
	buyer := f.newUser(t, "60")
	seller := f.newUser(t, "0")
	item := listItem(t, f, seller, "50")
	ctx := context.Background()

	if _, _, err := f.market.BuyItem(ctx, seller, item.ID); !errors.Is(err, models.ErrSelfPurchase) {
		t.Errorf("self purchase: expected ErrSelfPurchase, got %v", err)
	}
	if _, _, err := f.market.BuyItem(ctx, buyer, uuid.New()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown item: expected ErrNotFound, got %v", err)
	}
	if _, _, err := f.market.BuyItem(ctx, buyer, item.ID); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}
	if _, _, err := f.market.BuyItem(ctx, buyer, item.ID); !errors.Is(err, models.ErrAlreadyPurchased) {
		t.Errorf("repeat purchase: expected ErrAlreadyPurchased, got %v", err)
	}

	poor := f.newUser(t, "49.9999")
	if _, _, err := f.market.BuyItem(ctx, poor, item.ID); !errors.Is(err, models.ErrInsufficientFunds) {
		t.Errorf("poor buyer: expected ErrInsufficientFunds, got %v", err)
	}
	f.wantWallet(t, poor.ID, "49.9999", "0")
	f.wantWallet(t, seller.ID, "40", "0")
}

func TestConcurrentDuplicatePurchase(t *testing.T) {
	f := newFixture(t)
	buyer := f.newUser(t, "1000")
	seller := f.newUser(t, "0")
	item := listItem(t, f, seller, "100")
	ctx := context.Background()

	const attempts = 6
	errs := make([]error, attempts)
	var g errgroup.Group
	for i := range attempts {
		g.Go(func() error {
			_, _, errs[i] = f.market.BuyItem(ctx, buyer, item.ID)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, models.ErrAlreadyPurchased) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("successful purchases: got %d, want 1", ok)
	}
	f.wantWallet(t, buyer.ID, "900", "0")
}

func TestCreateItemValidation(t *testing.T) {
	f := newFixture(t)
	seller := f.newUser(t, "0")
	ctx := context.Background()
	if _, err := f.market.CreateItem(ctx, seller, CreateItemInput{Price: dec("1")}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("missing title: expected ErrValidation, got %v", err)
	}
	if _, err := f.market.CreateItem(ctx, seller, CreateItemInput{Title: "x", Price: dec("0")}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("zero price: expected ErrValidation, got %v", err)
	}
}
