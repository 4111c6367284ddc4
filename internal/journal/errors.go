package journal

import "errors"

var (
	// ErrDuplicateMatch means the maker/taker pair was already recorded
	ErrDuplicateMatch = errors.New("trade already recorded for order pair")

	// ErrUnknownTrade means the trade id resolves to nothing
	ErrUnknownTrade = errors.New("unknown trade")

	// ErrNotPending means a settlement transition was attempted on a trade
	// that already left the matched state
	ErrNotPending = errors.New("trade is not awaiting settlement")
)
