package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkflow/backend/internal/application/generation"
	"github.com/inkflow/backend/internal/domain/shared"
	"github.com/inkflow/backend/internal/infrastructure/provider"
)

// GenerateRequest is the request body for POST /api/v1/generate
type GenerateRequest struct {
	Prompt string `json:"prompt" binding:"required,max=4000"`
	Tone   string `json:"tone" binding:"omitempty,max=50"`
}

// GenerateHandler serves metered generation requests
type GenerateHandler struct {
	BaseHandler
	service *generation.Service
	logger  *zap.Logger
}

// NewGenerateHandler creates a new GenerateHandler
func NewGenerateHandler(service *generation.Service, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{
		service: service,
		logger:  logger,
	}
}

// Generate handles POST /api/v1/generate
func (h *GenerateHandler) Generate(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.service.Generate(c.Request.Context(), generation.GenerateCommand{
		TenantID: tenantID,
		Prompt:   req.Prompt,
		Tone:     req.Tone,
	})
	if err != nil {
		h.handleGenerateError(c, err)
		return
	}

	h.Success(c, result)
}

// handleGenerateError maps provider failures onto upstream status codes.
// Retryable failures already burned the retry budget, so the service is
// telling the client the provider is briefly unavailable (503); terminal
// failures mean the upstream rejected the request (502).
func (h *GenerateHandler) handleGenerateError(c *gin.Context, err error) {
	var provErr *provider.Error
	if errors.As(err, &provErr) {
		if provErr.Retryable {
			h.Error(c, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE",
				"Generation service is temporarily unavailable, try again shortly")
			return
		}
		h.Error(c, http.StatusBadGateway, "PROVIDER_REJECTED",
			"Generation service rejected the request")
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.Error(c, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE",
			"Generation timed out, try again shortly")
		return
	}

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		h.logger.Error("Generation request failed", zap.Error(err))
	}
	h.HandleError(c, err)
}
