package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tickerdeck/tickerdeck/internal/services"
	appErrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/response"
)

// SentimentHandler serves social sentiment metrics.
type SentimentHandler struct {
	sentiment *services.SentimentService
}

// NewSentimentHandler constructs a sentiment handler.
func NewSentimentHandler(sentiment *services.SentimentService) *SentimentHandler {
	if sentiment == nil {
		return nil
	}
	return &SentimentHandler{sentiment: sentiment}
}

// Stats returns social metrics for the requested symbols.
// GET /api/sentiment?symbols=BTC,ETH&force=true
func (h *SentimentHandler) Stats(c *gin.Context) {
	symbols := splitListQuery(c, "symbols")
	if len(symbols) == 0 {
		response.Error(c, appErrors.NewBadRequest("symbols query parameter is required"))
		return
	}

	force := parseBoolQuery(c, "force")
	rows, err := h.sentiment.Stats(requestContext(c), symbols, force)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, rows)
}
