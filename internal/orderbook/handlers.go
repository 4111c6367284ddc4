package orderbook

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corvex/exchange-core/internal/types"
	"github.com/corvex/exchange-core/pkg/response"
)

// map the engine's sentinels onto the shared response vocabulary; the
// ledger and registry sentinels a placement can surface register themselves
// in their own packages
func init() {
	response.RegisterError(ErrInvalidOrder, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrMarketClosed, http.StatusConflict, response.ErrCodeConflict)
	response.RegisterError(ErrWalletUnavailable, http.StatusConflict, response.ErrCodeConflict)
	response.RegisterError(ErrNotOpen, http.StatusConflict, response.ErrCodeConflict)
	response.RegisterError(ErrNotOwner, http.StatusConflict, response.ErrCodeConflict)
	response.RegisterError(ErrUnknownOrder, http.StatusNotFound, response.ErrCodeNotFound)
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	engine *Engine
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{
		engine: engine,
	}
}

type placeOrderRequest struct {
	WalletID  string     `json:"wallet_id" binding:"required"`
	MarketID  string     `json:"market_id" binding:"required"`
	BidAsset  string     `json:"bid_asset" binding:"required"`
	AskAsset  string     `json:"ask_asset" binding:"required"`
	BidAmount string     `json:"bid_amount" binding:"required"`
	AskAmount string     `json:"ask_amount" binding:"required"`
	Mode      string     `json:"mode"`
	OrderType string     `json:"order_type"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// PlaceOrderHandler handles POST requests to place orders
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var req placeOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		place, err := parsePlaceRequest(&req)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		place.IdempotencyKey = idempotencyKey

		result, err := h.engine.Place(*place)
		if err != nil {
			response.HandleError(c, err)
			return
		}

		response.Success(c, result)
	}
}

// GetOrderHandler handles GET requests for a single order
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("order_id"))
		if err != nil {
			response.BadRequest(c, "invalid order_id")
			return
		}

		order, err := h.engine.GetOrder(orderID)
		if err != nil {
			response.NotFound(c, "Order not found")
			return
		}
		response.Success(c, order)
	}
}

type cancelOrderRequest struct {
	WalletID string `json:"wallet_id" binding:"required"`
}

// CancelOrderHandler handles POST requests to cancel an open order
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("order_id"))
		if err != nil {
			response.BadRequest(c, "invalid order_id")
			return
		}

		var req cancelOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		walletID, err := uuid.Parse(req.WalletID)
		if err != nil {
			response.BadRequest(c, "invalid wallet_id")
			return
		}

		if err := h.engine.Cancel(orderID, walletID); err != nil {
			response.HandleError(c, err)
			return
		}
		response.Success(c, gin.H{"order_id": orderID, "status": types.OrderCancelled})
	}
}

// ListOrdersHandler handles GET requests for a wallet's orders, newest first
// Query parameter: wallet_id
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		walletID, err := uuid.Parse(c.Query("wallet_id"))
		if err != nil {
			response.BadRequest(c, "invalid wallet_id")
			return
		}

		orders, err := h.engine.OrdersForWallet(walletID)
		response.Handle(c, orders, err)
	}
}

// BookHandler handles GET requests for a market's open orders
// URL parameter: market_id
func (h *GinHandlers) BookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		marketID, err := uuid.Parse(c.Param("market_id"))
		if err != nil {
			response.BadRequest(c, "invalid market_id")
			return
		}

		orders, err := h.engine.Book(marketID)
		response.Handle(c, orders, err)
	}
}

func parsePlaceRequest(req *placeOrderRequest) (*PlaceRequest, error) {
	place := &PlaceRequest{
		Mode:      types.FillMode(req.Mode),
		OrderType: types.OrderType(req.OrderType),
		ExpiresAt: req.ExpiresAt,
	}

	var err error
	if place.WalletID, err = uuid.Parse(req.WalletID); err != nil {
		return nil, errors.New("invalid wallet_id")
	}
	if place.MarketID, err = uuid.Parse(req.MarketID); err != nil {
		return nil, errors.New("invalid market_id")
	}
	if place.BidAsset, err = uuid.Parse(req.BidAsset); err != nil {
		return nil, errors.New("invalid bid_asset")
	}
	if place.AskAsset, err = uuid.Parse(req.AskAsset); err != nil {
		return nil, errors.New("invalid ask_asset")
	}
	if place.BidAmount, err = decimal.NewFromString(req.BidAmount); err != nil {
		return nil, errors.New("invalid bid_amount")
	}
	if place.AskAmount, err = decimal.NewFromString(req.AskAmount); err != nil {
		return nil, errors.New("invalid ask_amount")
	}
	return place, nil
}
