package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentrygate/gateway/internal/streammediator"
	"github.com/sentrygate/gateway/internal/wireformat"
)

// RegisterOpenAIRoutes wires the OpenAI-compatible surface: chat
// completions go through the full pipeline; model listing is pass-through.
func (r *Router) RegisterOpenAIRoutes(g gin.IRouter) {
	openAIParser := streammediator.NewOpenAIFrameParser()

	g.POST("/v1/chat/completions", func(c *gin.Context) {
		r.handle(c, "/v1/chat/completions", http.MethodPost, wireformat.ParseOpenAI, openAIParser)
	})
	g.GET("/v1/models", func(c *gin.Context) {
		r.PassThrough(c, "/v1/models", wireformat.FormatOpenAI)
	})
}
