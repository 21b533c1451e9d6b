// Package api is the HTTP wrapper around the sale registration engine and
// the catalog helpers it depends on.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-pos-store/internal/models"
	"github.com/safar/go-pos-store/internal/sales"
	"github.com/safar/go-pos-store/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SalesService interface {
	RegisterSale(ctx context.Context, req sales.RegisterSaleRequest) (*sales.SaleResult, error)
	GetSale(ctx context.Context, id int64) (*models.Sale, error)
	ListSales(ctx context.Context, cursor string, limit int) (*store.CursorPage, error)
	CancelSale(ctx context.Context, id int64) (*models.Sale, error)
}

type Catalog interface {
	CreateProduct(ctx context.Context, p store.CreateProductParams) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	ListLowStock(ctx context.Context) ([]models.Product, error)
	UpdatePrice(ctx context.Context, productID int64, price decimal.Decimal, version int) error
	CreateUser(ctx context.Context, email, name string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

type Deps struct {
	Sales   SalesService
	Catalog Catalog
	// Health reports whether the service can reach its database.
	Health func(ctx context.Context) error
	Logger *zap.Logger
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(deps.Health))

	salesHandler := &SalesHandler{service: deps.Sales, logger: logger}
	catalogHandler := &CatalogHandler{catalog: deps.Catalog, logger: logger}

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Route("/sales", func(sr chi.Router) {
			sr.Use(requireUser)
			sr.Post("/", salesHandler.registerSale)
			sr.Get("/", salesHandler.listSales)
			sr.Get("/{id}", salesHandler.getSale)
			sr.Delete("/{id}", salesHandler.cancelSale)
		})

		v1.Route("/products", func(pr chi.Router) {
			pr.Post("/", catalogHandler.createProduct)
			pr.Get("/", catalogHandler.listProducts)
			pr.Get("/low-stock", catalogHandler.lowStock)
			pr.Get("/{id}", catalogHandler.getProduct)
			pr.Patch("/{id}/price", catalogHandler.updatePrice)
		})

		v1.Route("/users", func(ur chi.Router) {
			ur.Post("/", catalogHandler.createUser)
			ur.Get("/{id}", catalogHandler.getUser)
		})
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				respondError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
