package timeseries

import "errors"

var (
	// ErrCheckpointContention means another aggregator run owns the key
	ErrCheckpointContention = errors.New("checkpoint is held by another aggregator")

	// ErrNoTrades means a backfill found nothing to aggregate
	ErrNoTrades = errors.New("market has no trades to aggregate")

	// ErrBadWindow rejects a run whose window bounds are inverted or missing
	ErrBadWindow = errors.New("invalid aggregation window")
)
