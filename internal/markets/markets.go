package markets

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/corvex/exchange-core/internal/types"
	"github.com/corvex/exchange-core/pkg/response"
	"gorm.io/gorm"
)

// map the registry's sentinels onto the shared response vocabulary
func init() {
	response.RegisterError(ErrSameAsset, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrPriceOutOfBand, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrMarketExists, http.StatusConflict, response.ErrCodeDuplicateResource)
	response.RegisterError(ErrUnknownAsset, http.StatusNotFound, response.ErrCodeNotFound)
	response.RegisterError(ErrUnknownMarket, http.StatusNotFound, response.ErrCodeNotFound)
	response.RegisterError(ErrUnknownWallet, http.StatusNotFound, response.ErrCodeNotFound)
}

// Service is the registry for assets, wallets and markets. Everything the
// matching engine trades over must be created here first.
type Service struct {
	db *Database
}

// NewService creates a new registry service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateAsset registers a new tradeable asset. Decimals below zero are
// clamped to zero.
func (s *Service) CreateAsset(symbol, name string, decimals int32, assetType types.AssetType) (*types.Asset, error) {
	if decimals < 0 {
		decimals = 0
	}
	asset := &types.Asset{
		ID:        uuid.New(),
		Symbol:    symbol,
		Name:      name,
		Decimals:  decimals,
		AssetType: assetType,
		CreatedAt: time.Now(),
	}
	if err := s.db.CreateAsset(asset); err != nil {
		return nil, err
	}

	log.Info().
		Str("asset_id", asset.ID.String()).
		Str("symbol", symbol).
		Int32("decimals", decimals).
		Msg("asset registered")
	return asset, nil
}

// GetAsset retrieves an asset by its ID.
func (s *Service) GetAsset(assetID uuid.UUID) (*types.Asset, error) {
	asset, err := s.db.GetAsset(assetID)
	if IsNotFound(err) {
		return nil, ErrUnknownAsset
	}
	return asset, err
}

// ListAssets returns every registered asset in creation order.
func (s *Service) ListAssets() ([]types.Asset, error) {
	return s.db.ListAssets()
}

// CreateWallet registers a wallet for an owning account.
func (s *Service) CreateWallet(ownerAccountID uuid.UUID, name string) (*types.Wallet, error) {
	wallet := &types.Wallet{
		ID:             uuid.New(),
		OwnerAccountID: ownerAccountID,
		Name:           name,
		Status:         types.WalletActive,
		CreatedAt:      time.Now(),
	}
	if err := s.db.CreateWallet(wallet); err != nil {
		return nil, err
	}

	log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("name", name).
		Msg("wallet created")
	return wallet, nil
}

// GetWallet retrieves a wallet by its ID.
func (s *Service) GetWallet(walletID uuid.UUID) (*types.Wallet, error) {
	wallet, err := s.db.GetWallet(walletID)
	if IsNotFound(err) {
		return nil, ErrUnknownWallet
	}
	return wallet, err
}

// WalletsByPrefix lists active wallets whose name starts with prefix.
func (s *Service) WalletsByPrefix(prefix string) ([]types.Wallet, error) {
	return s.db.ListWalletsByPrefix(prefix)
}

// CreateMarket registers a market over two distinct assets. The pair is
// unordered: a BTC/USDT market blocks a later USDT/BTC one.
func (s *Service) CreateMarket(name string, assetOne, assetTwo uuid.UUID, regulation types.MarketRegulation, marketType types.MarketType) (*types.Market, error) {
	if assetOne == assetTwo {
		return nil, ErrSameAsset
	}
	for _, id := range []uuid.UUID{assetOne, assetTwo} {
		if _, err := s.db.GetAsset(id); err != nil {
			if IsNotFound(err) {
				return nil, ErrUnknownAsset
			}
			return nil, err
		}
	}
	if _, err := s.db.FindMarketByPair(assetOne, assetTwo); err == nil {
		return nil, ErrMarketExists
	} else if !IsNotFound(err) {
		return nil, err
	}

	market := &types.Market{
		ID:         uuid.New(),
		Name:       name,
		AssetOne:   assetOne,
		AssetTwo:   assetTwo,
		Status:     types.MarketActive,
		Regulation: regulation,
		MarketType: marketType,
		CreatedAt:  time.Now(),
	}
	if err := s.db.CreateMarket(market); err != nil {
		return nil, err
	}

	log.Info().
		Str("market_id", market.ID.String()).
		Str("name", name).
		Str("regulation", string(regulation)).
		Msg("market created")
	return market, nil
}

// GetMarket retrieves a market by its ID.
func (s *Service) GetMarket(marketID uuid.UUID) (*types.Market, error) {
	market, err := s.db.GetMarket(marketID)
	if IsNotFound(err) {
		return nil, ErrUnknownMarket
	}
	return market, err
}

// ListMarkets returns every market in creation order.
func (s *Service) ListMarkets() ([]types.Market, error) {
	return s.db.ListMarkets()
}

// SetMarketStatus flips a market's lifecycle state. Inactive and suspended
// markets reject new orders but keep their resting book.
func (s *Service) SetMarketStatus(marketID uuid.UUID, status types.MarketStatus) error {
	market, err := s.GetMarket(marketID)
	if err != nil {
		return err
	}
	market.Status = status
	return s.db.db.Save(market).Error
}

// GinHandlers contains HTTP handlers for registry endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for registry endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type createAssetRequest struct {
	Symbol    string          `json:"symbol" binding:"required"`
	Name      string          `json:"name" binding:"required"`
	Decimals  int32           `json:"decimals"`
	AssetType types.AssetType `json:"asset_type"`
}

// CreateAssetHandler handles POST requests to register assets
func (h *GinHandlers) CreateAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAssetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		asset, err := h.service.CreateAsset(req.Symbol, req.Name, req.Decimals, req.AssetType)
		response.Handle(c, asset, err)
	}
}

// ListAssetsHandler handles GET requests for the asset list
func (h *GinHandlers) ListAssetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assets, err := h.service.ListAssets()
		response.Handle(c, assets, err)
	}
}

type createWalletRequest struct {
	OwnerAccountID string `json:"owner_account_id" binding:"required"`
	Name           string `json:"name" binding:"required"`
}

// CreateWalletHandler handles POST requests to create wallets
func (h *GinHandlers) CreateWalletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createWalletRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		ownerID, err := uuid.Parse(req.OwnerAccountID)
		if err != nil {
			response.BadRequest(c, "invalid owner_account_id")
			return
		}

		wallet, err := h.service.CreateWallet(ownerID, req.Name)
		response.Handle(c, wallet, err)
	}
}

type createMarketRequest struct {
	Name       string                 `json:"name" binding:"required"`
	AssetOne   string                 `json:"asset_one" binding:"required"`
	AssetTwo   string                 `json:"asset_two" binding:"required"`
	Regulation types.MarketRegulation `json:"regulation"`
	MarketType types.MarketType       `json:"market_type"`
}

// CreateMarketHandler handles POST requests to create markets
func (h *GinHandlers) CreateMarketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMarketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		assetOne, err := uuid.Parse(req.AssetOne)
		if err != nil {
			response.BadRequest(c, "invalid asset_one")
			return
		}
		assetTwo, err := uuid.Parse(req.AssetTwo)
		if err != nil {
			response.BadRequest(c, "invalid asset_two")
			return
		}

		if req.Regulation == "" {
			req.Regulation = types.MarketUnregulated
		}
		if req.MarketType == "" {
			req.MarketType = types.MarketSpot
		}

		market, err := h.service.CreateMarket(req.Name, assetOne, assetTwo, req.Regulation, req.MarketType)
		response.Handle(c, market, err)
	}
}

// ListMarketsHandler handles GET requests for the market list
func (h *GinHandlers) ListMarketsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		markets, err := h.service.ListMarkets()
		response.Handle(c, markets, err)
	}
}
