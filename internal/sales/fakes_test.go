package sales

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/safar/go-pos-store/internal/database"
	"github.com/safar/go-pos-store/internal/models"
	"github.com/safar/go-pos-store/internal/store"
)

type fakeEvent struct {
	Type    string
	SaleID  int64
	Payload json.RawMessage
}

// memDB is an in-memory stand-in for the Postgres store. InTx works on a copy
// and only publishes it on success, which gives the all-or-nothing behavior
// of a real transaction.
type memDB struct {
	mu       sync.Mutex
	products map[int64]models.ProductSnapshot
	sales    map[int64]*models.Sale
	events   []fakeEvent
	nextID   int64

	// failure injection, keyed by SaleStore method name
	failOn map[string]error
	calls  int
	delay  time.Duration
}

func newMemDB(products ...models.ProductSnapshot) *memDB {
	db := &memDB{
		products: make(map[int64]models.ProductSnapshot),
		sales:    make(map[int64]*models.Sale),
		failOn:   make(map[string]error),
	}
	for _, p := range products {
		db.products[p.ID] = p
	}
	return db
}

func (m *memDB) InTx(ctx context.Context, fn func(ctx context.Context, st SaleStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	tx := &memTx{db: m, products: make(map[int64]models.ProductSnapshot), sales: make(map[int64]*models.Sale)}
	for id, p := range m.products {
		tx.products[id] = p
	}
	for id, s := range m.sales {
		tx.sales[id] = s
	}
	tx.nextID = m.nextID

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.products = tx.products
	m.sales = tx.sales
	m.events = append(m.events, tx.events...)
	m.nextID = tx.nextID
	return nil
}

func (m *memDB) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[id]
	if !ok {
		return nil, database.ErrSaleNotFound
	}
	return sale, nil
}

func (m *memDB) ListSales(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	if cursor != "" {
		if _, err := store.DecodeCursor(cursor); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.sales))
	for id := range m.sales {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	items := []models.Sale{}
	for _, id := range ids {
		if len(items) == limit {
			break
		}
		items = append(items, *m.sales[id])
	}
	return &store.CursorPage{Items: items, HasMore: len(ids) > limit}, nil
}

func (m *memDB) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].StockQuantity
}

type memTx struct {
	db       *memDB
	products map[int64]models.ProductSnapshot
	sales    map[int64]*models.Sale
	events   []fakeEvent
	nextID   int64
}

func (t *memTx) fail(method string) error {
	return t.db.failOn[method]
}

func (t *memTx) LockProducts(ctx context.Context, ids []int64) (map[int64]models.ProductSnapshot, error) {
	if err := t.fail("LockProducts"); err != nil {
		return nil, err
	}
	out := make(map[int64]models.ProductSnapshot)
	for _, id := range ids {
		if p, ok := t.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if err := t.fail("DecrementStock"); err != nil {
		return err
	}
	p, ok := t.products[productID]
	if !ok || p.StockQuantity < quantity {
		return database.ErrInsufficientStock
	}
	p.StockQuantity -= quantity
	t.products[productID] = p
	return nil
}

func (t *memTx) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	p, ok := t.products[productID]
	if !ok {
		return database.ErrProductNotFound
	}
	p.StockQuantity += quantity
	t.products[productID] = p
	return nil
}

func (t *memTx) InsertSale(ctx context.Context, sale *models.Sale) error {
	if err := t.fail("InsertSale"); err != nil {
		return err
	}
	t.nextID++
	sale.ID = t.nextID
	sale.SaleNumber = "SALE-test"
	sale.CreatedAt = time.Now()
	t.sales[sale.ID] = sale
	return nil
}

func (t *memTx) InsertSaleLine(ctx context.Context, line *models.SaleLine) error {
	if err := t.fail("InsertSaleLine"); err != nil {
		return err
	}
	t.nextID++
	line.ID = t.nextID
	return nil
}

func (t *memTx) LockSale(ctx context.Context, id int64) (*models.Sale, error) {
	sale, ok := t.sales[id]
	if !ok {
		return nil, database.ErrSaleNotFound
	}
	return sale, nil
}

func (t *memTx) DeleteSale(ctx context.Context, id int64) error {
	if _, ok := t.sales[id]; !ok {
		return database.ErrSaleNotFound
	}
	delete(t.sales, id)
	return nil
}

func (t *memTx) InsertOutboxEvent(ctx context.Context, eventType string, saleID int64, payload json.RawMessage) error {
	if err := t.fail("InsertOutboxEvent"); err != nil {
		return err
	}
	t.events = append(t.events, fakeEvent{Type: eventType, SaleID: saleID, Payload: payload})
	return nil
}

// memDedup is an in-memory Deduplicator.
type memDedup struct {
	mu      sync.Mutex
	entries map[string]int64
	err     error
	// completeFailures makes the next n Complete calls fail.
	completeFailures int
	completeCalls    int
}

func newMemDedup() *memDedup {
	return &memDedup{entries: make(map[string]int64)}
}

func (d *memDedup) Reserve(ctx context.Context, key string) (int64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, false, d.err
	}
	if id, ok := d.entries[key]; ok {
		return id, false, nil
	}
	d.entries[key] = 0
	return 0, true, nil
}

func (d *memDedup) Complete(ctx context.Context, key string, saleID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeCalls++
	if d.completeFailures > 0 {
		d.completeFailures--
		return errors.New("redis: connection pool timeout")
	}
	d.entries[key] = saleID
	return nil
}

func (d *memDedup) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, key)
	return nil
}
