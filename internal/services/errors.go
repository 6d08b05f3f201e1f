package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed requests.
	ErrValidation = errors.New("validation failed")
	// ErrProfileIncomplete marks customers who must finish their profile before ordering.
	ErrProfileIncomplete = errors.New("profile incomplete")
	// ErrNotFound marks a missing order, product or profile.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock marks a refused stock reservation.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotification marks a failed notification dispatch.
	ErrNotification = errors.New("notification failed")
	// ErrArchival marks a failed archive append.
	ErrArchival = errors.New("archival failed")
	// ErrConsistency marks a state that needs operator attention.
	ErrConsistency = errors.New("consistency error")
)

// ValidationError lists the offending fields of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func newValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProfileIncompleteError reports the profile fields a customer still has to provide.
type ProfileIncompleteError struct {
	Email   string
	Missing []string
}

func (e *ProfileIncompleteError) Error() string {
	return fmt.Sprintf("%v: %s missing %s", ErrProfileIncomplete, e.Email, strings.Join(e.Missing, ", "))
}

func (e *ProfileIncompleteError) Is(target error) bool { return target == ErrProfileIncomplete }

// NotFoundError identifies the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s %v", e.Resource, e.ID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }

// InsufficientStockError carries the product whose reservation was refused.
type InsufficientStockError struct {
	ProductID string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%v: product %s, requested %d", ErrInsufficientStock, e.ProductID, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// NotificationError wraps a failed send. OrderIDs lists orders that were committed regardless.
type NotificationError struct {
	OrderIDs []string
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrNotification, e.Err)
}

func (e *NotificationError) Is(target error) bool { return target == ErrNotification }

func (e *NotificationError) Unwrap() error { return e.Err }

// ArchivalError wraps a failed archive append for an order.
type ArchivalError struct {
	OrderID string
	Err     error
}

func (e *ArchivalError) Error() string {
	return fmt.Sprintf("%v: order %s: %v", ErrArchival, e.OrderID, e.Err)
}

func (e *ArchivalError) Is(target error) bool { return target == ErrArchival }

func (e *ArchivalError) Unwrap() error { return e.Err }

// ConsistencyError reports a partially applied operation. Stage names the step that left
// state behind, for example "delete" after an order was archived but not removed.
type ConsistencyError struct {
	OrderID string
	Stage   string
	Err     error
}

func (e *ConsistencyError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("%v: %s: %v", ErrConsistency, e.Stage, e.Err)
	}
	return fmt.Sprintf("%v: order %s: %s: %v", ErrConsistency, e.OrderID, e.Stage, e.Err)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

func (e *ConsistencyError) Unwrap() error { return e.Err }
