package timeseries

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corvex/exchange-core/pkg/response"
)

// GinHandlers contains HTTP handlers for OHLCV queries.
type GinHandlers struct {
	store *Database
}

func NewGinHandlers(gormDB *gorm.DB) *GinHandlers {
	return &GinHandlers{store: NewDatabase(gormDB)}
}

// BarsHandler handles GET requests for one series' bars, oldest first.
// Query parameters: asset_id (required), interval (default 1min).
func (h *GinHandlers) BarsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		marketID, err := uuid.Parse(c.Param("market_id"))
		if err != nil {
			response.BadRequest(c, "invalid market_id")
			return
		}
		assetID, err := uuid.Parse(c.Query("asset_id"))
		if err != nil {
			response.BadRequest(c, "invalid asset_id")
			return
		}
		interval, err := ParseInterval(c.DefaultQuery("interval", "1min"))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		bars, err := h.store.Bars(marketID, assetID, interval)
		response.Handle(c, bars, err)
	}
}
