package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/go-pos-store/internal/database"
	"github.com/safar/go-pos-store/internal/models"
)

func generateSaleNumber() string {
	return "SALE-" + uuid.NewString()
}

// InsertSale writes the sale header and fills in ID, SaleNumber and CreatedAt.
func InsertSale(ctx context.Context, tx *sql.Tx, sale *models.Sale) error {
	if sale.SaleNumber == "" {
		sale.SaleNumber = generateSaleNumber()
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO sales (sale_number, user_id, payment_method, subtotal, tax_total, total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, created_at`,
		sale.SaleNumber, sale.UserID, string(sale.PaymentMethod), sale.Subtotal, sale.TaxTotal, sale.Total,
	).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return fmt.Errorf("create sale: %w", err)
	}

	return nil
}

func InsertSaleLine(ctx context.Context, tx *sql.Tx, line *models.SaleLine) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO sale_lines (sale_id, product_id, quantity, unit_price, unit_cost, line_subtotal, line_tax)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		line.SaleID, line.ProductID, line.Quantity, line.UnitPrice, line.UnitCost, line.LineSubtotal, line.LineTax,
	).Scan(&line.ID)
	if err != nil {
		return fmt.Errorf("create sale line: %w", err)
	}

	return nil
}

func GetSale(ctx context.Context, db Querier, id int64) (*models.Sale, error) {
	return getSale(ctx, db, id, false)
}

// LockSale is GetSale with the header row locked for the rest of tx.
func LockSale(ctx context.Context, tx *sql.Tx, id int64) (*models.Sale, error) {
	return getSale(ctx, tx, id, true)
}

func getSale(ctx context.Context, db Querier, id int64, forUpdate bool) (*models.Sale, error) {
	sale := &models.Sale{}

	query := `
		SELECT id, sale_number, user_id, payment_method, subtotal, tax_total, total, created_at
		FROM sales
		WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var method string
	err := db.QueryRowContext(ctx, query, id).Scan(
		&sale.ID,
		&sale.SaleNumber,
		&sale.UserID,
		&method,
		&sale.Subtotal,
		&sale.TaxTotal,
		&sale.Total,
		&sale.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrSaleNotFound
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	sale.PaymentMethod = models.PaymentMethod(method)

	lines, err := getSaleLines(ctx, db, id)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines

	return sale, nil
}

func getSaleLines(ctx context.Context, db Querier, saleID int64) ([]models.SaleLine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, sale_id, product_id, quantity, unit_price, unit_cost, line_subtotal, line_tax
		 FROM sale_lines
		 WHERE sale_id = $1
		 ORDER BY id`,
		saleID)
	if err != nil {
		return nil, fmt.Errorf("get sale lines: %w", err)
	}
	defer rows.Close()

	var lines []models.SaleLine
	for rows.Next() {
		var line models.SaleLine
		err := rows.Scan(
			&line.ID,
			&line.SaleID,
			&line.ProductID,
			&line.Quantity,
			&line.UnitPrice,
			&line.UnitCost,
			&line.LineSubtotal,
			&line.LineTax,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// DeleteSale removes the header; lines go with it through ON DELETE CASCADE.
func DeleteSale(ctx context.Context, tx *sql.Tx, id int64) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrSaleNotFound
	}

	return nil
}

// ListSalesCursor pages through sale headers newest first. Lines are not loaded.
func ListSalesCursor(ctx context.Context, db Querier, cursor string, limit int) (*CursorPage, error) {
	const columns = `SELECT id, sale_number, user_id, payment_method, subtotal, tax_total, total, created_at
		FROM sales`

	var (
		rows *sql.Rows
		err  error
	)
	if cursor == "" {
		rows, err = db.QueryContext(ctx, columns+`
			ORDER BY created_at DESC, id DESC
			LIMIT $1`, limit+1)
	} else {
		position, decodeErr := DecodeCursor(cursor)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode cursor: %w", decodeErr)
		}
		rows, err = db.QueryContext(ctx, columns+`
			WHERE (created_at, id) < ($1, $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3`, position.CreatedAt, position.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := []models.Sale{}
	for rows.Next() {
		var sale models.Sale
		var method string
		err := rows.Scan(
			&sale.ID,
			&sale.SaleNumber,
			&sale.UserID,
			&method,
			&sale.Subtotal,
			&sale.TaxTotal,
			&sale.Total,
			&sale.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sale.PaymentMethod = models.PaymentMethod(method)
		sales = append(sales, sale)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(sales) > limit
	if hasMore {
		sales = sales[:limit]
	}

	var nextCursor string
	if hasMore && len(sales) > 0 {
		last := sales[len(sales)-1]
		nextCursor = EncodeCursor(SaleCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      sales,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
