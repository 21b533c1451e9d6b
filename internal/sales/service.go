package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-pos-store/internal/database"
	"github.com/safar/go-pos-store/internal/models"
	"github.com/safar/go-pos-store/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Transactor runs fn inside one database transaction. fn may be invoked more
// than once when the transaction is retried, so it must not leak state
// between attempts.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, st SaleStore) error) error
}

type SaleReader interface {
	GetSale(ctx context.Context, id int64) (*models.Sale, error)
	ListSales(ctx context.Context, cursor string, limit int) (*store.CursorPage, error)
}

// Deduplicator remembers which idempotency keys produced which sale.
// Reserve returns the stored sale id when the key already completed, and
// reserved=false with a zero id while another request holds the key.
type Deduplicator interface {
	Reserve(ctx context.Context, key string) (saleID int64, reserved bool, err error)
	Complete(ctx context.Context, key string, saleID int64) error
	Release(ctx context.Context, key string) error
}

type Options struct {
	TaxRate decimal.Decimal
	Timeout time.Duration
}

const (
	DefaultTimeout   = 5 * time.Second
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type RegisterSaleRequest struct {
	UserID         int64
	PaymentMethod  string
	Lines          []LineRequest
	IdempotencyKey string
}

type SaleResult struct {
	Sale *models.Sale
	// Replayed is set when the sale was returned from an earlier request
	// carrying the same idempotency key.
	Replayed bool
}

// Service is the sale registration coordinator. It owns transaction scope,
// sequences validation, pricing and writing, and translates failures into
// the package's error taxonomy.
type Service struct {
	tx         Transactor
	reader     SaleReader
	dedup      Deduplicator
	validator  *Validator
	calculator *Calculator
	writer     *Writer
	timeout    time.Duration
	logger     *zap.Logger
}

func NewService(tx Transactor, reader SaleReader, opts Options, logger *zap.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		tx:         tx,
		reader:     reader,
		validator:  NewValidator(),
		calculator: NewCalculator(opts.TaxRate),
		writer:     NewWriter(),
		timeout:    opts.Timeout,
		logger:     logger.Named("sales"),
	}
}

// WithDeduplicator enables Idempotency-Key handling.
func (s *Service) WithDeduplicator(d Deduplicator) *Service {
	s.dedup = d
	return s
}

// RegisterSale validates the cart against a locked catalog snapshot, prices
// it and writes the sale with its stock decrements in one transaction. The
// returned error is a *ValidationError, *ConflictError, *ServerError or
// ErrRequestInProgress. A replayed idempotency key whose sale was cancelled
// yields a *ConflictError with ConflictKeyReused.
func (s *Service) RegisterSale(ctx context.Context, req RegisterSaleRequest) (*SaleResult, error) {
	log := s.logger.With(
		zap.Int64("user_id", req.UserID),
		zap.String("payment_method", req.PaymentMethod),
		zap.Int("lines", len(req.Lines)),
	)

	state := StateIdle
	transition := func(next State) {
		log.Debug("sale state", zap.String("from", string(state)), zap.String("to", string(next)))
		state = next
	}

	transition(StateValidating)
	if err := s.validator.CheckStructure(req.PaymentMethod, req.Lines); err != nil {
		transition(StateRejected)
		log.Info("sale rejected", zap.Error(err))
		return nil, err
	}

	dedupKey := ""
	if s.dedup != nil && req.IdempotencyKey != "" {
		dedupKey = fmt.Sprintf("%d:%s", req.UserID, req.IdempotencyKey)
		result, err := s.reserve(ctx, dedupKey, log)
		if err != nil || result != nil {
			return result, err
		}
	}

	// The transaction outlives the caller: a disconnect must not abort a
	// write that is already under way, only the engine's own deadline can.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var sale *models.Sale
	err := s.tx.InTx(txCtx, func(ctx context.Context, st SaleStore) error {
		if state != StateValidating {
			transition(StateValidating)
		}

		snapshots, err := st.LockProducts(ctx, productIDs(req.Lines))
		if err != nil {
			return err
		}

		validated, err := s.validator.CheckCatalog(req.Lines, snapshots)
		if err != nil {
			return err
		}

		transition(StateComputing)
		totals := s.calculator.Compute(validated)

		transition(StateWriting)
		sale, err = s.writer.Write(ctx, st, Draft{
			UserID:        req.UserID,
			PaymentMethod: models.PaymentMethod(req.PaymentMethod),
			Lines:         validated,
			Totals:        totals,
		})
		return err
	})
	if err != nil {
		mapped := s.translate(txCtx, err)

		var ve *ValidationError
		if errors.As(mapped, &ve) {
			transition(StateRejected)
			log.Info("sale rejected", zap.Error(mapped))
		} else {
			transition(StateAborted)
			log.Error("sale aborted", zap.Error(err))
		}

		if dedupKey != "" {
			if relErr := s.dedup.Release(context.WithoutCancel(ctx), dedupKey); relErr != nil {
				log.Warn("release idempotency key", zap.Error(relErr))
			}
		}
		return nil, mapped
	}

	transition(StateCommitted)
	log.Info("sale registered",
		zap.Int64("sale_id", sale.ID),
		zap.String("sale_number", sale.SaleNumber),
		zap.String("total", sale.Total.StringFixed(2)),
	)

	if dedupKey != "" {
		s.complete(context.WithoutCancel(ctx), dedupKey, sale.ID, log)
	}

	return &SaleResult{Sale: sale}, nil
}

const (
	completeAttempts = 3
	completeBackoff  = 50 * time.Millisecond
)

// complete records the committed sale under its key. The sale is already
// durable, so a key left pending would turn every retry into
// ErrRequestInProgress until the key expires.
func (s *Service) complete(ctx context.Context, key string, saleID int64, log *zap.Logger) {
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		if err = s.dedup.Complete(ctx, key, saleID); err == nil {
			return
		}
		log.Warn("complete idempotency key", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < completeAttempts {
			time.Sleep(completeBackoff * time.Duration(attempt))
		}
	}
	log.Error("idempotency key left pending", zap.Int64("sale_id", saleID), zap.Error(err))
}

// reserve returns a non-nil result or error when the request must not
// proceed. A failing key store is logged and bypassed.
func (s *Service) reserve(ctx context.Context, key string, log *zap.Logger) (*SaleResult, error) {
	saleID, reserved, err := s.dedup.Reserve(ctx, key)
	if err != nil {
		log.Warn("idempotency store unavailable, continuing without it", zap.Error(err))
		return nil, nil
	}
	if reserved {
		return nil, nil
	}
	if saleID == 0 {
		return nil, ErrRequestInProgress
	}

	sale, err := s.GetSale(ctx, saleID)
	if errors.Is(err, ErrSaleNotFound) {
		log.Info("idempotency key refers to a cancelled sale", zap.Int64("sale_id", saleID))
		return nil, &ConflictError{Reason: ConflictKeyReused, err: err}
	}
	if err != nil {
		return nil, err
	}
	log.Info("sale replayed", zap.Int64("sale_id", saleID))
	return &SaleResult{Sale: sale, Replayed: true}, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	sale, err := s.reader.GetSale(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrSaleNotFound) {
			return nil, ErrSaleNotFound
		}
		s.logger.Error("get sale", zap.Int64("sale_id", id), zap.Error(err))
		return nil, &ServerError{Code: CodeInternal, err: err}
	}
	return sale, nil
}

func (s *Service) ListSales(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	page, err := s.reader.ListSales(ctx, cursor, limit)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			return nil, err
		}
		s.logger.Error("list sales", zap.Error(err))
		return nil, &ServerError{Code: CodeInternal, err: err}
	}
	return page, nil
}

// CancelSale reverses a committed sale: stock for every line is put back,
// the sale is deleted and a sale.cancelled event is recorded.
func (s *Service) CancelSale(ctx context.Context, id int64) (*models.Sale, error) {
	log := s.logger.With(zap.Int64("sale_id", id))

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var sale *models.Sale
	err := s.tx.InTx(txCtx, func(ctx context.Context, st SaleStore) error {
		var err error
		sale, err = st.LockSale(ctx, id)
		if err != nil {
			return err
		}

		ids := make([]int64, len(sale.Lines))
		for i, line := range sale.Lines {
			ids[i] = line.ProductID
		}
		if _, err := st.LockProducts(ctx, ids); err != nil {
			return err
		}

		for _, line := range sale.Lines {
			if err := st.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("restore stock for product %d: %w", line.ProductID, err)
			}
		}

		if err := st.DeleteSale(ctx, id); err != nil {
			return err
		}

		return recordEvent(ctx, st, models.EventSaleCancelled, sale, time.Now())
	})
	if err != nil {
		if errors.Is(err, database.ErrSaleNotFound) {
			return nil, ErrSaleNotFound
		}
		log.Error("sale cancellation aborted", zap.Error(err))
		return nil, s.translate(txCtx, err)
	}

	log.Info("sale cancelled", zap.String("sale_number", sale.SaleNumber))
	return sale, nil
}

// translate maps a transaction failure onto the public error taxonomy.
func (s *Service) translate(txCtx context.Context, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(txCtx.Err(), context.DeadlineExceeded) {
		return &ServerError{Code: CodeTimeout, err: err}
	}

	if errors.Is(err, database.ErrInsufficientStock) {
		return &ConflictError{Reason: ConflictStockChanged, err: err}
	}

	if kind, name := database.Constraint(err); kind != database.ConstraintNone {
		return &ConflictError{Reason: ConflictReason(kind.String()), Constraint: name, err: err}
	}

	return &ServerError{Code: CodeInternal, err: err}
}
