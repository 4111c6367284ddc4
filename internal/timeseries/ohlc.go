package timeseries

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradePoint is one trade projected onto a (market, asset) series: the
// quantity of the target asset that changed hands and what the other side
// paid per unit of it.
type TradePoint struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	At     time.Time
}

// OHLC is the aggregate of one window. Empty windows produce no OHLC.
type OHLC struct {
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// ComputeOHLC folds time-ordered trade points into one candle. Open and
// close follow first and last execution; high and low are the extremes;
// volume sums the target asset quantity.
func ComputeOHLC(points []TradePoint) (OHLC, bool) {
	if len(points) == 0 {
		return OHLC{}, false
	}

	agg := OHLC{
		Open:   points[0].Price,
		High:   points[0].Price,
		Low:    points[0].Price,
		Close:  points[len(points)-1].Price,
		Volume: decimal.Zero,
	}
	for _, p := range points {
		if p.Price.GreaterThan(agg.High) {
			agg.High = p.Price
		}
		if p.Price.LessThan(agg.Low) {
			agg.Low = p.Price
		}
		agg.Volume = agg.Volume.Add(p.Volume)
	}
	return agg, true
}
