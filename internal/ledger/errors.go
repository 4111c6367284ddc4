package ledger

import "errors"

var (
	// ErrUnknownEntry means no balance entry exists for the (wallet, asset)
	ErrUnknownEntry = errors.New("no balance entry for wallet and asset")

	// ErrEntryExists means SetBudget was called twice for the same pair
	ErrEntryExists = errors.New("balance entry already exists")

	// ErrInsufficientFunds means available is below the requested lock
	ErrInsufficientFunds = errors.New("insufficient available funds")

	// ErrInvariantViolation means an unlock or spend exceeded the locked amount
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// ErrOverflow means a credit would push the entry past the representable cap
	ErrOverflow = errors.New("balance overflow")

	// ErrNegativeAmount rejects non-positive quantities on any mutation
	ErrNegativeAmount = errors.New("amount must be positive")
)
