package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentrygate/gateway/internal/streammediator"
	"github.com/sentrygate/gateway/internal/wireformat"
)

// RegisterOllamaRoutes wires the Ollama-native surface: /api/generate and
// /api/chat go through the full admission/scan/mediation pipeline;
// /api/tags and /api/version are pass-through.
func (r *Router) RegisterOllamaRoutes(g gin.IRouter) {
	ollamaParser := streammediator.NewOllamaFrameParser()

	g.POST("/api/generate", func(c *gin.Context) {
		r.handle(c, "/api/generate", http.MethodPost, wireformat.ParseOllama, ollamaParser)
	})
	g.POST("/api/chat", func(c *gin.Context) {
		r.handle(c, "/api/chat", http.MethodPost, wireformat.ParseOllama, ollamaParser)
	})
	g.GET("/api/tags", func(c *gin.Context) {
		r.PassThrough(c, "/api/tags", wireformat.FormatOllama)
	})
	g.GET("/api/version", func(c *gin.Context) {
		r.PassThrough(c, "/api/version", wireformat.FormatOllama)
	})
}
