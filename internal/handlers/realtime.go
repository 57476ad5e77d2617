package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/tickerdeck/tickerdeck/internal/realtime"
	appErrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/response"
)

// RealtimeHandler upgrades dashboard clients onto the realtime hub.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	if hub == nil {
		return nil
	}
	return &RealtimeHandler{hub: hub}
}

// Stream upgrades the connection and subscribes the client to the streams
// named in the query string, defaulting to live prices.
// GET /api/stream?streams=prices,news
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h == nil || h.hub == nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	streams := splitListQuery(c, "streams")
	h.hub.Serve(streams, c.Writer, c.Request)
}
