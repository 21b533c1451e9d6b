package store

import (
	"context"
	"database/sql"

	"github.com/safar/go-pos-store/internal/models"
	"github.com/shopspring/decimal"
)

// Catalog exposes the product and user helpers over a connection pool.
type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) CreateProduct(ctx context.Context, p CreateProductParams) (*models.Product, error) {
	return CreateProduct(ctx, c.db, p)
}

func (c *Catalog) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return GetProduct(ctx, c.db, id)
}

func (c *Catalog) ListProducts(ctx context.Context, page, pageSize int) (*OffsetPage, error) {
	return ListProducts(ctx, c.db, page, pageSize)
}

func (c *Catalog) ListLowStock(ctx context.Context) ([]models.Product, error) {
	return ListLowStock(ctx, c.db)
}

func (c *Catalog) UpdatePrice(ctx context.Context, productID int64, price decimal.Decimal, version int) error {
	return UpdatePriceOptimistic(ctx, c.db, productID, price, version)
}

func (c *Catalog) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	return CreateUser(ctx, c.db, email, name)
}

func (c *Catalog) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return GetUser(ctx, c.db, id)
}
