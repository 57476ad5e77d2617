package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tickerdeck/tickerdeck/internal/services"
	"github.com/tickerdeck/tickerdeck/pkg/response"
)

// NewsHandler serves stored headlines.
type NewsHandler struct {
	news *services.NewsService
}

// NewNewsHandler constructs a news handler.
func NewNewsHandler(news *services.NewsService) *NewsHandler {
	if news == nil {
		return nil
	}
	return &NewsHandler{news: news}
}

// Latest returns recent headlines, optionally filtered by currency codes.
// GET /api/news?limit=25&currencies=BTC,ETH
func (h *NewsHandler) Latest(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 25)
	currencies := splitListQuery(c, "currencies")

	rows, err := h.news.Latest(requestContext(c), limit, currencies)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, rows)
}
