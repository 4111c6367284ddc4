package orderbook

import "errors"

var (
	// ErrInvalidOrder rejects a placement that fails shape validation
	ErrInvalidOrder = errors.New("invalid order")

	// ErrMarketClosed rejects placements on markets that are not active spot
	ErrMarketClosed = errors.New("market is not accepting orders")

	// ErrWalletUnavailable rejects placements from missing or inactive wallets
	ErrWalletUnavailable = errors.New("wallet is not available for trading")

	// ErrUnknownOrder means the order id resolves to nothing
	ErrUnknownOrder = errors.New("unknown order")

	// ErrNotOpen means a cancel hit an order that already left the book
	ErrNotOpen = errors.New("order is not open")

	// ErrNotOwner means a cancel came from a wallet that does not own the order
	ErrNotOwner = errors.New("order belongs to another wallet")

	// errFOKUnfilled aborts the placement transaction so a fill-or-kill order
	// that cannot fully fill leaves no state behind.
	errFOKUnfilled = errors.New("fill-or-kill order cannot be fully filled")
)

// NoLiquidityReason is recorded on cancelled FOK placements.
const NoLiquidityReason = "NoLiquidity"
