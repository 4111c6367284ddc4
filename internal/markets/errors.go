package markets

import "errors"

var (
	// ErrSameAsset rejects a market whose two legs are the same asset
	ErrSameAsset = errors.New("market requires two distinct assets")

	// ErrMarketExists rejects a second market over the same unordered pair
	ErrMarketExists = errors.New("market already exists for asset pair")

	// ErrUnknownAsset means a referenced asset is not registered
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrUnknownMarket means the market id resolves to nothing
	ErrUnknownMarket = errors.New("unknown market")

	// ErrUnknownWallet means the wallet id resolves to nothing
	ErrUnknownWallet = errors.New("unknown wallet")

	// ErrPriceOutOfBand means a regulated market rejected the order price
	ErrPriceOutOfBand = errors.New("order price outside allowed band")
)
