package ledger

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corvex/exchange-core/pkg/response"
)

// map the ledger's sentinels onto the shared response vocabulary
func init() {
	response.RegisterError(ErrNegativeAmount, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrInsufficientFunds, http.StatusForbidden, response.ErrCodeForbidden)
	response.RegisterError(ErrUnknownEntry, http.StatusForbidden, response.ErrCodeForbidden)
	response.RegisterError(ErrEntryExists, http.StatusConflict, response.ErrCodeDuplicateResource)
}

// GinHandlers contains HTTP handlers for balance queries.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// WalletBalancesHandler handles GET requests for every balance entry of a
// wallet, locked and spent quantities included.
func (h *GinHandlers) WalletBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		walletID, err := uuid.Parse(c.Param("wallet_id"))
		if err != nil {
			response.BadRequest(c, "Invalid wallet ID")
			return
		}

		entries, err := h.service.EntriesForWallet(walletID)
		response.Handle(c, entries, err)
	}
}
