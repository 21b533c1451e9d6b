package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safar/go-pos-store/internal/database"
	"github.com/safar/go-pos-store/internal/sales"
	"github.com/safar/go-pos-store/internal/store"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// writeError maps an engine or store error onto an HTTP status and a stable
// error body. Unclassified errors are logged and reported as internal.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, body := toHTTPError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	respondJSON(w, status, body)
}

func toHTTPError(err error) (int, ErrorResponse) {
	var (
		ve *sales.ValidationError
		ce *sales.ConflictError
		se *sales.ServerError
	)

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrorResponse{
			Code:    string(ve.Reason),
			Message: ve.Error(),
			Details: validationDetails(ve),
		}
	case errors.As(err, &ce):
		body := ErrorResponse{Code: string(ce.Reason), Message: ce.Error()}
		if ce.Constraint != "" {
			body.Details = map[string]any{"constraint": ce.Constraint}
		}
		return http.StatusConflict, body
	case errors.As(err, &se):
		if se.Code == sales.CodeTimeout {
			return http.StatusGatewayTimeout, ErrorResponse{Code: se.Code, Message: se.Error()}
		}
		return http.StatusInternalServerError, ErrorResponse{Code: se.Code, Message: se.Error()}
	case errors.Is(err, sales.ErrRequestInProgress):
		return http.StatusConflict, ErrorResponse{Code: "request-in-progress", Message: err.Error()}
	case errors.Is(err, sales.ErrSaleNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrUserNotFound):
		return http.StatusNotFound, ErrorResponse{Code: "not-found", Message: err.Error()}
	case errors.Is(err, database.ErrOptimisticLockFailed):
		return http.StatusConflict, ErrorResponse{Code: "version-conflict", Message: err.Error()}
	case errors.Is(err, store.ErrInvalidCursor):
		return http.StatusBadRequest, ErrorResponse{Code: "bad-cursor", Message: store.ErrInvalidCursor.Error()}
	}

	if kind, name := database.Constraint(err); kind != database.ConstraintNone {
		body := ErrorResponse{Code: kind.String(), Message: "request conflicts with stored data"}
		if name != "" {
			body.Details = map[string]any{"constraint": name}
		}
		return http.StatusConflict, body
	}

	return http.StatusInternalServerError, ErrorResponse{Code: sales.CodeInternal, Message: "internal server error"}
}

func validationDetails(ve *sales.ValidationError) map[string]any {
	switch ve.Reason {
	case sales.ReasonBadQuantity, sales.ReasonBadPrice:
		return map[string]any{"index": ve.Index}
	case sales.ReasonProductNotFound:
		return map[string]any{"product_id": ve.ProductID}
	case sales.ReasonInsufficientStock:
		return map[string]any{
			"product_id": ve.ProductID,
			"available":  ve.Available,
			"requested":  ve.Requested,
		}
	case sales.ReasonPriceMismatch:
		return map[string]any{
			"product_id":      ve.ProductID,
			"current_price":   ve.CurrentPrice.StringFixed(2),
			"submitted_price": ve.SubmittedPrice.StringFixed(2),
		}
	}
	return nil
}
