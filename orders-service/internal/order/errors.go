package order

import "errors"

var (
	ErrInvalidCart            = errors.New("invalid cart")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrPricing                = errors.New("pricing error")
	ErrProcessorUnavailable   = errors.New("payment processor unavailable")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrOrderNotFound          = errors.New("order not found")
	ErrReconciliationConflict = errors.New("reconciliation conflict")
	ErrNotificationFailure    = errors.New("notification failure")
	ErrSessionMismatch        = errors.New("payment session does not belong to order")
	ErrNoPaymentSession       = errors.New("order has no payment session")
)
