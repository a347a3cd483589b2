package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with all routes mounted.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "error": ""})
	})

	r.POST("/v1/agents", h.CreateAgent)
	r.POST("/api/daily", h.DailyChat)
	r.POST("/api/event", h.EventChat)
	r.GET("/api/v1/events", h.ListGlobalEvents)
	r.GET("/api/v1/messages", h.ListMessages)
	r.GET("/api/avatar", h.Avatar)

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
