package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tickerdeck/tickerdeck/internal/services"
	appErrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/response"
)

// SymbolHandler serves chart symbol resolution and the unresolved backlog.
type SymbolHandler struct {
	symbols *services.SymbolService
}

// NewSymbolHandler constructs a symbol handler.
func NewSymbolHandler(symbols *services.SymbolService) *SymbolHandler {
	if symbols == nil {
		return nil
	}
	return &SymbolHandler{symbols: symbols}
}

// Resolve maps a raw symbol to an ordered chart symbol candidate list.
// GET /api/symbols/resolve?symbol=GIGA2
func (h *SymbolHandler) Resolve(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol == "" {
		response.Error(c, appErrors.NewBadRequest("symbol query parameter is required"))
		return
	}

	res, err := h.symbols.Resolve(requestContext(c), symbol)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Missing lists unresolved symbols ordered by request frequency.
// GET /api/symbols/missing?limit=50
func (h *SymbolHandler) Missing(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)

	rows, err := h.symbols.MissingSymbols(requestContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, rows)
}
