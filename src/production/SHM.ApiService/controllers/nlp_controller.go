package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/middleware"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// Assistant answers natural-language requests
type Assistant interface {
	Handle(ctx context.Context, req shmmodels.NLPRequest, requestID string) shmmodels.Envelope
}

// NLPController serves the assistant endpoint
type NLPController struct {
	assistant Assistant
	guards    []gin.HandlerFunc
}

// NewNLPController creates a new NLP controller. guards run before the
// handler, typically authentication and rate limiting.
func NewNLPController(assistant Assistant, guards ...gin.HandlerFunc) *NLPController {
	return &NLPController{assistant: assistant, guards: guards}
}

// RegisterRoutes registers the assistant routes with Gin
func (c *NLPController) RegisterRoutes(router *gin.Engine) {
	nlp := router.Group("/nlp", c.guards...)
	{
		nlp.POST("", c.Query)
		nlp.POST("/", c.Query)
	}
}

// Query always answers 200 with an envelope unless the body is not JSON.
func (c *NLPController) Query(ctx *gin.Context) {
	var req shmmodels.NLPRequest
	if !bindJSON(ctx, &req) {
		return
	}
	ctx.JSON(http.StatusOK, c.assistant.Handle(ctx.Request.Context(), req, middleware.GetRequestID(ctx)))
}
