package domain

import (
	"errors"
	"fmt"
)

var (
	// Wallet errors
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletAlreadyExists = errors.New("wallet already exists for owner")
	ErrInsufficientFunds   = errors.New("insufficient funds")

	// Argument errors
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSameWallet      = fmt.Errorf("%w: cannot transfer to same wallet", ErrInvalidArgument)

	// Event log errors
	ErrConcurrencyConflict = errors.New("concurrency conflict: wallet was modified concurrently")
	ErrCorruptEventStream  = errors.New("corrupt event stream")
	ErrStorage             = errors.New("storage error")
	ErrSerialization       = errors.New("event serialization error")
)
