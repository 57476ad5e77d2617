package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tickerdeck/tickerdeck/pkg/response"
)

// Health returns a status payload useful for readiness checks. The database
// ping is included so load balancers stop routing before the store is usable.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "ok"

		if db == nil {
			dbStatus = "not configured"
		} else if sqlDB, err := db.DB(); err != nil {
			dbStatus = err.Error()
		} else if err := sqlDB.PingContext(requestContext(c)); err != nil {
			dbStatus = err.Error()
		}

		if dbStatus != "ok" {
			response.Success(c, http.StatusServiceUnavailable, gin.H{
				"status":   "degraded",
				"database": dbStatus,
			})
			return
		}

		response.Success(c, http.StatusOK, gin.H{
			"status":   "ok",
			"database": dbStatus,
		})
	}
}
