package markets

import (
	"errors"

	"github.com/corvex/exchange-core/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateAsset(asset *types.Asset) error {
	return d.db.Create(asset).Error
}

func (d *Database) GetAsset(assetID uuid.UUID) (*types.Asset, error) {
	var asset types.Asset
	if err := d.db.Where("id = ?", assetID).First(&asset).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (d *Database) GetAssetBySymbol(symbol string) (*types.Asset, error) {
	var asset types.Asset
	if err := d.db.Where("symbol = ?", symbol).First(&asset).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (d *Database) ListAssets() ([]types.Asset, error) {
	var assets []types.Asset
	err := d.db.Order("created_at asc").Find(&assets).Error
	return assets, err
}

func (d *Database) CreateWallet(wallet *types.Wallet) error {
	return d.db.Create(wallet).Error
}

func (d *Database) GetWallet(walletID uuid.UUID) (*types.Wallet, error) {
	var wallet types.Wallet
	if err := d.db.Where("id = ?", walletID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ListWalletsByPrefix returns active wallets whose name starts with the
// given prefix, in creation order. The simulator discovers its synthetic
// accounts through this.
func (d *Database) ListWalletsByPrefix(prefix string) ([]types.Wallet, error) {
	var wallets []types.Wallet
	err := d.db.
		Where("name LIKE ? AND status = ?", prefix+"%", types.WalletActive).
		Order("created_at asc").
		Find(&wallets).Error
	return wallets, err
}

func (d *Database) CreateMarket(market *types.Market) error {
	return d.db.Create(market).Error
}

func (d *Database) GetMarket(marketID uuid.UUID) (*types.Market, error) {
	var market types.Market
	if err := d.db.Where("id = ?", marketID).First(&market).Error; err != nil {
		return nil, err
	}
	return &market, nil
}

// FindMarketByPair looks the market up by its unordered asset pair.
func (d *Database) FindMarketByPair(a, b uuid.UUID) (*types.Market, error) {
	var market types.Market
	err := d.db.
		Where("(asset_one = ? AND asset_two = ?) OR (asset_one = ? AND asset_two = ?)", a, b, b, a).
		First(&market).Error
	if err != nil {
		return nil, err
	}
	return &market, nil
}

func (d *Database) ListMarkets() ([]types.Market, error) {
	var markets []types.Market
	err := d.db.Order("created_at asc").Find(&markets).Error
	return markets, err
}

// IsNotFound reports whether the error is the store's missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
