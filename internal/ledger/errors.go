package ledger

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	// ErrInvalidInput indicates a malformed request field.
	ErrInvalidInput = fmt.Errorf("%w: ledger: invalid input", shared.ErrValidation)
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: ledger: line items must balance", shared.ErrValidation)
	// ErrTooFewLines indicates less than two line items.
	ErrTooFewLines = fmt.Errorf("%w: ledger: voucher requires at least two line items", shared.ErrValidation)
	// ErrNonPositiveAmount indicates a line item amount <= 0.
	ErrNonPositiveAmount = fmt.Errorf("%w: ledger: amount must be positive", shared.ErrValidation)
	// ErrUnknownVoucherType indicates an unsupported voucher type.
	ErrUnknownVoucherType = fmt.Errorf("%w: ledger: unknown voucher type", shared.ErrValidation)
	// ErrUnsupportedFrequency indicates a frequency the operation cannot use.
	ErrUnsupportedFrequency = fmt.Errorf("%w: ledger: unsupported frequency", shared.ErrValidation)
	// ErrInvalidSchedule indicates a recurrence with bad dates or day sets.
	ErrInvalidSchedule = fmt.Errorf("%w: ledger: invalid recurrence schedule", shared.ErrValidation)
	// ErrEmptySchedule indicates a recurrence producing no vouchers.
	ErrEmptySchedule = fmt.Errorf("%w: ledger: recurrence produces no vouchers", shared.ErrValidation)
	// ErrInvalidDepreciation indicates a malformed depreciation serial.
	ErrInvalidDepreciation = fmt.Errorf("%w: ledger: invalid depreciation serial", shared.ErrValidation)
	// ErrUnknownCorrelation indicates a reversal referencing no line item of the new voucher.
	ErrUnknownCorrelation = fmt.Errorf("%w: ledger: unknown line item correlation ref", shared.ErrValidation)
	// ErrDuplicateCorrelation indicates two line items sharing a correlation ref.
	ErrDuplicateCorrelation = fmt.Errorf("%w: ledger: duplicate line item correlation ref", shared.ErrValidation)
	// ErrOverReversal indicates a reversal exceeding the open amount.
	ErrOverReversal = fmt.Errorf("%w: ledger: reversal exceeds remaining amount", shared.ErrValidation)
	// ErrNegativeRemain indicates settled amounts exceed the voucher total.
	ErrNegativeRemain = fmt.Errorf("%w: ledger: remaining amount is negative", shared.ErrInternal)
	// ErrPersistence indicates the atomic save failed or returned nothing.
	ErrPersistence = fmt.Errorf("%w: ledger: persistence failed", shared.ErrInternal)
	// ErrConcurrentUpdate indicates the save lost a race with another
	// transaction settling the same line item.
	ErrConcurrentUpdate = fmt.Errorf("%w: ledger: concurrent update of settled line items", shared.ErrConflict)
	// ErrDuplicateRequest indicates an idempotency key was already used.
	ErrDuplicateRequest = fmt.Errorf("%w: ledger: request already processed", shared.ErrConflict)
)

// Entity names a kind of record checked for existence.
type Entity string

const (
	EntityCompany      Entity = "company"
	EntityUser         Entity = "user"
	EntityCounterparty Entity = "counterparty"
	EntityCertificate  Entity = "certificate"
	EntityAccount      Entity = "account"
	EntityVoucher      Entity = "voucher"
	EntityLineItem     Entity = "line_item"
	EntityAsset        Entity = "asset"
)

// NotFoundError reports the first referenced id that failed its existence check.
type NotFoundError struct {
	Entity Entity
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ledger: %s %d not found", e.Entity, e.ID)
}

// Unwrap lets errors.Is match shared.ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return shared.ErrNotFound
}

func notFound(entity Entity, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// errorKind names the coarse category of err for logs and metrics.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
