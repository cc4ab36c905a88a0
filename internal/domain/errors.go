package domain

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletInactive      = errors.New("wallet is inactive")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrReferenceMismatch   = errors.New("reference reused with a different request")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPaymentNotFound     = errors.New("pending payment not found")
	ErrInvalidTransition   = errors.New("invalid status transition")

	// ErrStorageUnavailable means the atomic unit did not apply.
	// Retrying with the same reference is safe.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrProviderUnavailable = errors.New("provider unavailable, try again later")
	ErrProviderDeclined    = errors.New("provider declined the transaction")
	ErrInternal            = errors.New("internal error")
)
