package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/services"
)

// MarketplaceService is what MarketplaceHandler needs from the service layer.
type MarketplaceService interface {
	CreateItem(ctx context.Context, p models.Principal, in services.CreateItemInput) (*models.MarketplaceItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.MarketplaceItem, error)
	ListItems(ctx context.Context, limit int) ([]*models.MarketplaceItem, error)
	BuyItem(ctx context.Context, p models.Principal, itemID uuid.UUID) (*models.Purchase, *models.MarketplaceItem, error)
}

// MarketplaceHandler serves the marketplace endpoints.
type MarketplaceHandler struct {
	Market    MarketplaceService
	Validator *services.Validator
	Logger    *slog.Logger
}

// --- GET /api/v1/marketplace/items ---

// ListItems handles GET /api/v1/marketplace/items.
func (h *MarketplaceHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	items, err := h.Market.ListItems(r.Context(), limit)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if items == nil {
		items = []*models.MarketplaceItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// --- GET /api/v1/marketplace/items/{id} ---

// GetItem handles GET /api/v1/marketplace/items/{id}.
func (h *MarketplaceHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	it, err := h.Market.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// --- POST /api/v1/marketplace/items ---

type createItemRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ContentURL  string          `json:"content_url"`
}

// CreateItem handles POST /api/v1/marketplace/items.
func (h *MarketplaceHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createItemRequest
	if err := decode(r, h.Validator, services.SchemaCreateItem, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	it, err := h.Market.CreateItem(r.Context(), p, services.CreateItemInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		ContentURL:  req.ContentURL,
	})
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// --- POST /api/v1/marketplace/items/{id}/buy ---

// The content URL is only ever disclosed to a buyer, in the purchase response.
type purchaseResponse struct {
	Purchase   *models.Purchase `json:"purchase"`
	ContentURL string           `json:"content_url"`
}

// BuyItem handles POST /api/v1/marketplace/items/{id}/buy.
func (h *MarketplaceHandler) BuyItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	purchase, it, err := h.Market.BuyItem(r.Context(), p, id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchaseResponse{Purchase: purchase, ContentURL: it.ContentURL})
}
