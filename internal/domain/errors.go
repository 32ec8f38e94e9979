package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrEmptyCart is returned when checking out a cart without lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCheckoutInProgress is returned when a checkout is started while another is running.
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	// ErrInvalidQuantity is returned for non-positive quantities where one is required.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrNegativeAmount is returned when a money amount below zero is supplied.
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrUnknownDiscountCode is returned when a discount code is not in the code table.
	ErrUnknownDiscountCode = errors.New("invalid discount code")
	// ErrNamespaceTaken indicates a storage namespace overlaps one already registered.
	ErrNamespaceTaken = errors.New("namespace already registered")
)
