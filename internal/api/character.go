package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storygen/backend/internal/models"
	"storygen/backend/internal/service"
)

// CharacterHandler exposes the global continuity table.
type CharacterHandler struct {
	memory *service.CharacterMemory
}

func NewCharacterHandler(memory *service.CharacterMemory) *CharacterHandler {
	return &CharacterHandler{memory: memory}
}

// ListCharacters returns the table in insertion order.
func (h *CharacterHandler) ListCharacters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"characters": h.memory.List()})
}

func (h *CharacterHandler) ReinforceTrait(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.Error(invalidRequest(errors.New("character name is required")))
		return
	}
	var req models.ReinforceTraitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	if err := h.memory.Reinforce(c.Request.Context(), name, strings.TrimSpace(req.Trait)); err != nil {
		c.Error(toAppError(err))
		return
	}
	for _, rec := range h.memory.List() {
		if rec.Name == name {
			c.JSON(http.StatusOK, rec)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *CharacterHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/characters", h.ListCharacters)
	r.POST("/characters/:name/traits", h.ReinforceTrait)
}
