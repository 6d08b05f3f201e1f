package repositories

import (
	"errors"
	"fmt"
)

// InventoryErrorCode enumerates repository error causes for stock operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates the requested quantity exceeds the remaining stock.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorProductNotFound indicates the product has no stock record.
	InventoryErrorProductNotFound InventoryErrorCode = "inventory_product_not_found"
	// InventoryErrorInvalidQuantity indicates a non-positive quantity was supplied.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
)

// InventoryError wraps stock failures with machine readable codes.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	ProductID string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the product is missing. It lets InventoryError satisfy RepositoryError.
func (e *InventoryError) IsNotFound() bool {
	return e != nil && e.Code == InventoryErrorProductNotFound
}

// IsConflict reports whether the reservation was refused for lack of stock.
func (e *InventoryError) IsConflict() bool {
	return e != nil && e.Code == InventoryErrorInsufficientStock
}

// IsUnavailable reports whether the backend failed transiently.
func (e *InventoryError) IsUnavailable() bool {
	if e == nil || e.Err == nil {
		return false
	}
	var repoErr RepositoryError
	return errors.As(e.Err, &repoErr) && repoErr.IsUnavailable()
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, productID, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:      code,
		ProductID: productID,
		Message:   message,
		Err:       err,
	}
}

// IsInsufficientStock reports whether err is an InventoryError refusing a reservation.
func IsInsufficientStock(err error) bool {
	var invErr *InventoryError
	return errors.As(err, &invErr) && invErr.Code == InventoryErrorInsufficientStock
}
