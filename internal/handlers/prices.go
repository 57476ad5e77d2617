package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tickerdeck/tickerdeck/internal/services"
	appErrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/response"
)

// PriceHandler serves spot quotes and the market overview table.
type PriceHandler struct {
	prices *services.PriceService
}

// NewPriceHandler constructs a price handler.
func NewPriceHandler(prices *services.PriceService) *PriceHandler {
	if prices == nil {
		return nil
	}
	return &PriceHandler{prices: prices}
}

// Quotes returns spot quotes for the symbols named in the query string.
// GET /api/prices?symbols=BTC,ETH&force=true
func (h *PriceHandler) Quotes(c *gin.Context) {
	symbols := splitListQuery(c, "symbols")
	if len(symbols) == 0 {
		response.Error(c, appErrors.NewBadRequest("symbols query parameter is required"))
		return
	}

	force := parseBoolQuery(c, "force")
	quotes, err := h.prices.Quotes(requestContext(c), symbols, force)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, quotes)
}

// Markets returns a page of the stored coin universe ordered by market cap.
// GET /api/markets?limit=50&offset=0
func (h *PriceHandler) Markets(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	rows, total, err := h.prices.ListMarkets(requestContext(c), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, rows, &response.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

// splitListQuery reads a comma-separated query value into a trimmed slice.
func splitListQuery(c *gin.Context, key string) []string {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolQuery(c *gin.Context, key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
