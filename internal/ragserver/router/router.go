// Package router provides knowledge base service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/ragserver/internal/ragserver/handler"
)

// Register registers the knowledge base service routes.
func Register(engine *gin.Engine, h *handler.Handler) {
	logger.Info("Registering routes...")

	engine.GET("/healthz", h.Healthz)

	v1 := engine.Group("/v1")
	{
		docs := v1.Group("/documents")
		{
			docs.POST("", h.Ingest)
			docs.GET("", h.ListDocuments)
			docs.GET("/:id", h.GetDocument)
			docs.DELETE("/:id", h.DeleteDocument)
		}

		v1.POST("/query", h.Query)
		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
