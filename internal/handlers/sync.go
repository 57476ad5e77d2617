package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tickerdeck/tickerdeck/internal/services"
	appErrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/response"
	appValidator "github.com/tickerdeck/tickerdeck/pkg/validator"
)

// SyncHandler exposes the snapshot sync jobs to operators. All routes sit
// behind the admin token middleware.
type SyncHandler struct {
	prices    *services.PriceService
	sentiment *services.SentimentService
	news      *services.NewsService
}

// NewSyncHandler constructs a sync handler.
func NewSyncHandler(prices *services.PriceService, sentiment *services.SentimentService, news *services.NewsService) *SyncHandler {
	return &SyncHandler{prices: prices, sentiment: sentiment, news: news}
}

// Markets triggers a coin universe sync.
// POST /api/sync/markets
func (h *SyncHandler) Markets(c *gin.Context) {
	input, ok := bindSyncInput(c)
	if !ok {
		return
	}

	report, err := h.prices.SyncUniverse(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// Sentiment triggers a social metrics sync.
// POST /api/sync/sentiment
func (h *SyncHandler) Sentiment(c *gin.Context) {
	input, ok := bindSyncInput(c)
	if !ok {
		return
	}

	report, err := h.sentiment.SyncSentiment(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// News triggers a headline sync.
// POST /api/sync/news
func (h *SyncHandler) News(c *gin.Context) {
	input, ok := bindSyncInput(c)
	if !ok {
		return
	}

	report, err := h.news.SyncNews(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// bindSyncInput reads the optional request body. An empty body means default
// settings; a present body must be valid JSON passing validation.
func bindSyncInput(c *gin.Context) (services.SyncInput, bool) {
	var input services.SyncInput

	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return input, true
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		if err == io.EOF {
			return input, true
		}
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return input, false
	}

	if err := appValidator.ValidateStruct(&input); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return input, false
	}

	return input, true
}
