package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/go-pos-store/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CatalogHandler struct {
	catalog Catalog
	logger  *zap.Logger
}

type createProductRequest struct {
	SKU         string           `json:"sku"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	Cost        *decimal.Decimal `json:"cost"`
	Stock       int              `json:"stock"`
	TaxEligible *bool            `json:"tax_eligible"`
	MinStock    *int             `json:"min_stock"`
}

func (req createProductRequest) validate() string {
	switch {
	case strings.TrimSpace(req.SKU) == "" || strings.TrimSpace(req.Name) == "":
		return "sku and name are required"
	case !req.Price.IsPositive():
		return "price must be greater than zero"
	case req.Price.Exponent() < -2:
		return "price must have at most 2 decimal places"
	case req.Stock < 0:
		return "stock must not be negative"
	case req.MinStock != nil && *req.MinStock < 0:
		return "min_stock must not be negative"
	case req.Cost != nil && req.Cost.IsNegative():
		return "cost must not be negative"
	case req.Cost != nil && !req.Cost.LessThan(req.Price):
		return "cost must be lower than price"
	}
	return ""
}

func (h *CatalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad-request", "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, "bad-request", msg)
		return
	}

	params := store.CreateProductParams{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		TaxEligible: true,
		MinStock:    req.MinStock,
	}
	if req.Cost != nil {
		params.Cost = decimal.NullDecimal{Decimal: *req.Cost, Valid: true}
	}
	if req.TaxEligible != nil {
		params.TaxEligible = *req.TaxEligible
	}

	product, err := h.catalog.CreateProduct(r.Context(), params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := h.catalog.ListProducts(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *CatalogHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListLowStock(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"items": products})
}

func (h *CatalogHandler) updatePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Price   decimal.Decimal `json:"price"`
		Version int             `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad-request", "invalid request body")
		return
	}
	if !req.Price.IsPositive() || req.Price.Exponent() < -2 {
		respondError(w, http.StatusBadRequest, "bad-request", "price must be positive with at most 2 decimal places")
		return
	}

	if err := h.catalog.UpdatePrice(r.Context(), id, req.Price, req.Version); err != nil {
		writeError(w, h.logger, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (h *CatalogHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad-request", "invalid request body")
		return
	}
	if req.Email == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "bad-request", "email and name are required")
		return
	}

	user, err := h.catalog.CreateUser(r.Context(), req.Email, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (h *CatalogHandler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := h.catalog.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}
