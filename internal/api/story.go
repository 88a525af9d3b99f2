package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storygen/backend/internal/models"
	"storygen/backend/internal/service"
)

// StoryHandler serves the session lifecycle.
type StoryHandler struct {
	story *service.StoryService
}

func NewStoryHandler(story *service.StoryService) *StoryHandler {
	return &StoryHandler{story: story}
}

// StoryResponse is returned by start and branch.
type StoryResponse struct {
	SessionID string        `json:"session_id"`
	Beats     []models.Beat `json:"beats"`
	Revision  int64         `json:"revision"`
	// StaleArtifacts is set when the stored artifacts describe an earlier
	// beat sequence.
	StaleArtifacts bool `json:"stale_artifacts,omitempty"`
}

// RenderResponse lists rendered artifacts in beat order.
type RenderResponse struct {
	SessionID string   `json:"session_id"`
	Images    []string `json:"images"`
}

func (h *StoryHandler) Start(c *gin.Context) {
	var req models.StartStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	sess, err := h.story.Start(c.Request.Context(), req)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, StoryResponse{SessionID: sess.SessionID, Beats: sess.Beats, Revision: sess.Revision})
}

func (h *StoryHandler) Branch(c *gin.Context) {
	var req models.BranchStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	sess, err := h.story.Branch(c.Request.Context(), req)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, StoryResponse{
		SessionID:      sess.SessionID,
		Beats:          sess.Beats,
		Revision:       sess.Revision,
		StaleArtifacts: sess.ArtifactsStale(),
	})
}

func (h *StoryHandler) Render(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.Error(invalidRequest(errors.New("session_id is required")))
		return
	}
	images, err := h.story.Render(c.Request.Context(), sessionID)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, RenderResponse{SessionID: sessionID, Images: images})
}

func (h *StoryHandler) GetSession(c *gin.Context) {
	sess, err := h.story.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *StoryHandler) SetCursor(c *gin.Context) {
	var req models.CursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	sess, err := h.story.SetCursor(c.Request.Context(), c.Param("id"), req.Cursor)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.SessionID, "cursor": sess.Cursor})
}

// RegisterRoutes mounts the story endpoints on r.
func (h *StoryHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/story/start", h.Start)
	r.POST("/story/branch", h.Branch)
	r.POST("/story/render", h.Render)
	r.GET("/story/session/:id", h.GetSession)
	r.PUT("/story/session/:id/cursor", h.SetCursor)
}
