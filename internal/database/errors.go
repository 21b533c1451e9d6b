package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// ConstraintKind names the family of integrity violation reported by Postgres.
type ConstraintKind int

const (
	ConstraintNone ConstraintKind = iota
	ConstraintUnique
	ConstraintForeignKey
	ConstraintNotNull
	ConstraintCheck
	ConstraintDataType
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintUnique:
		return "duplicate"
	case ConstraintForeignKey:
		return "foreign-key"
	case ConstraintNotNull:
		return "not-null"
	case ConstraintCheck:
		return "check"
	case ConstraintDataType:
		return "type"
	default:
		return "none"
	}
}

// Constraint reports which integrity rule err violated and the constraint name
// when the server supplied one.
func Constraint(err error) (ConstraintKind, string) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ConstraintNone, ""
	}

	switch {
	case pqErr.Code == "23505":
		return ConstraintUnique, pqErr.Constraint
	case pqErr.Code == "23503":
		return ConstraintForeignKey, pqErr.Constraint
	case pqErr.Code == "23502":
		return ConstraintNotNull, pqErr.Column
	case pqErr.Code == "23514":
		return ConstraintCheck, pqErr.Constraint
	case pqErr.Code.Class() == "22":
		return ConstraintDataType, pqErr.Column
	}

	return ConstraintNone, ""
}

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrSaleNotFound         = errors.New("sale not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
)
