package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-pos-store/internal/models"
	"github.com/safar/go-pos-store/internal/sales"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxSaleBodyBytes     = 1 << 20
)

type SalesHandler struct {
	service SalesService
	logger  *zap.Logger
}

type saleLineRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type registerSaleRequest struct {
	PaymentMethod string            `json:"payment_method"`
	Lines         []saleLineRequest `json:"lines"`
}

type saleLineResponse struct {
	ID           int64   `json:"id"`
	ProductID    int64   `json:"product_id"`
	Quantity     int     `json:"quantity"`
	UnitPrice    string  `json:"unit_price"`
	UnitCost     *string `json:"unit_cost"`
	LineSubtotal string  `json:"line_subtotal"`
	LineTax      string  `json:"line_tax"`
}

type saleResponse struct {
	ID            int64              `json:"id"`
	SaleNumber    string             `json:"sale_number"`
	UserID        int64              `json:"user_id"`
	PaymentMethod string             `json:"payment_method"`
	Subtotal      string             `json:"subtotal"`
	TaxTotal      string             `json:"tax_total"`
	Total         string             `json:"total"`
	CreatedAt     time.Time          `json:"created_at"`
	Lines         []saleLineResponse `json:"lines,omitempty"`
}

type salePageResponse struct {
	Items      []saleResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

func toSaleResponse(sale *models.Sale) saleResponse {
	resp := saleResponse{
		ID:            sale.ID,
		SaleNumber:    sale.SaleNumber,
		UserID:        sale.UserID,
		PaymentMethod: string(sale.PaymentMethod),
		Subtotal:      sale.Subtotal.StringFixed(2),
		TaxTotal:      sale.TaxTotal.StringFixed(2),
		Total:         sale.Total.StringFixed(2),
		CreatedAt:     sale.CreatedAt,
	}

	for _, l := range sale.Lines {
		line := saleLineResponse{
			ID:           l.ID,
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice.StringFixed(2),
			LineSubtotal: l.LineSubtotal.StringFixed(2),
			LineTax:      l.LineTax.StringFixed(2),
		}
		if l.UnitCost.Valid {
			cost := l.UnitCost.Decimal.StringFixed(2)
			line.UnitCost = &cost
		}
		resp.Lines = append(resp.Lines, line)
	}

	return resp
}

func (h *SalesHandler) registerSale(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxSaleBodyBytes)
	var req registerSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad-request", "invalid request body")
		return
	}

	lines := make([]sales.LineRequest, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = sales.LineRequest{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}

	result, err := h.service.RegisterSale(r.Context(), sales.RegisterSaleRequest{
		UserID:         userID,
		PaymentMethod:  req.PaymentMethod,
		Lines:          lines,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if result.Replayed {
		w.Header().Set(replayedHeader, "true")
		respondJSON(w, http.StatusOK, toSaleResponse(result.Sale))
		return
	}
	respondJSON(w, http.StatusCreated, toSaleResponse(result.Sale))
}

func (h *SalesHandler) getSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *SalesHandler) listSales(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := h.service.ListSales(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := salePageResponse{Items: []saleResponse{}, NextCursor: page.NextCursor, HasMore: page.HasMore}
	if items, ok := page.Items.([]models.Sale); ok {
		for i := range items {
			resp.Items = append(resp.Items, toSaleResponse(&items[i]))
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *SalesHandler) cancelSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sale, err := h.service.CancelSale(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, toSaleResponse(sale))
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "bad-request", "invalid id")
		return 0, false
	}
	return id, true
}
