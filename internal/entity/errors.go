package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks a malformed command (empty cart, zero
	// quantity, inconsistent discount fields).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInsufficientStock is returned when a negative adjustment would
	// push a stock counter below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrUnknownProduct is returned when no inventory record exists for
	// the referenced product.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrOrderNotFound is returned by lookups for a missing order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidStatusTransition is returned when an order status change
	// is not allowed by the state machine.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrShipmentExists is returned when attaching a shipment to an order
	// that already has one.
	ErrShipmentExists = errors.New("order already has a shipment record")
)

// OutOfStockError reports which product could not be reserved. It
// unwraps to ErrInsufficientStock.
type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s out of stock (requested %d, available %d)", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error { return ErrInsufficientStock }
