package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storygen/backend/internal/models"
	"storygen/backend/internal/service"
)

type CoCreatorHandler struct {
	cocreator *service.CoCreator
}

func NewCoCreatorHandler(cocreator *service.CoCreator) *CoCreatorHandler {
	return &CoCreatorHandler{cocreator: cocreator}
}

func (h *CoCreatorHandler) Clarify(c *gin.Context) {
	var req models.ClarifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	questions, err := h.cocreator.Clarify(c.Request.Context(), req.SeedPrompt)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (h *CoCreatorHandler) Upgrade(c *gin.Context) {
	var req models.UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	prompt, err := h.cocreator.Upgrade(c.Request.Context(), req.SeedPrompt, req.Answers)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": prompt})
}

func (h *CoCreatorHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/cocreator/clarify", h.Clarify)
	r.POST("/cocreator/upgrade", h.Upgrade)
}
