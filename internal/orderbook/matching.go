package orderbook

import (
	"github.com/shopspring/decimal"

	"github.com/corvex/exchange-core/internal/types"
)

// fillStep is one maker/taker fill pair computed by the walk. MakerDelta is
// denominated in the maker's ask asset, TakerDelta in the taker's.
type fillStep struct {
	Maker      *types.Order
	MakerDelta decimal.Decimal
	TakerDelta decimal.Decimal
}

// nextFill computes the fill one maker candidate would contribute given the
// taker's live remainders. Makers are price-makers: the taker pays each
// maker's own price, never its stated one. Quantities are truncated toward
// zero to the asset's decimal precision so no fill ever creates dust; a
// candidate whose truncated fill would be zero on either side reports false
// and is skipped rather than matched.
//
// The caller owns the remainders and decrements them only after the step
// actually applies, so a maker that fails to fill never consumes quantity the
// later candidates could still take.
func nextFill(maker *types.Order, remainingBid, remainingAsk decimal.Decimal, takerAskDecimals, makerAskDecimals int32) (fillStep, bool) {
	makerDelta := decimal.Min(maker.RemainingAsk(), remainingBid)
	if !makerDelta.IsPositive() {
		return fillStep{}, false
	}

	// taker's cost at the maker's price
	takerDelta := makerDelta.Mul(maker.BidAmount).Div(maker.AskAmount).Truncate(takerAskDecimals)

	// a market order carries no crossing filter, so its locked ask can
	// run out mid-walk; shrink the fill to what it can still afford
	if takerDelta.GreaterThan(remainingAsk) {
		takerDelta = remainingAsk
		makerDelta = takerDelta.Mul(maker.AskAmount).Div(maker.BidAmount).Truncate(makerAskDecimals)
		makerDelta = decimal.Min(makerDelta, maker.RemainingAsk())
	}
	if !takerDelta.IsPositive() || !makerDelta.IsPositive() {
		return fillStep{}, false
	}

	return fillStep{
		Maker:      maker,
		MakerDelta: makerDelta,
		TakerDelta: takerDelta,
	}, true
}

// crossingLimit is the lowest stored maker price the taker will accept. A
// maker's stored price is what it surrenders per unit received; the taker
// demands at least its own bid per ask, so makers at or above the limit
// cross.
func crossingLimit(bidAmount, askAmount decimal.Decimal) decimal.Decimal {
	return bidAmount.Div(askAmount)
}
