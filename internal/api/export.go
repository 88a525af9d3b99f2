package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storygen/backend/internal/service"
)

// ExportHandler serves document and video exports.
type ExportHandler struct {
	docs  *service.DocumentExporter
	video *service.VideoExporter
}

func NewExportHandler(docs *service.DocumentExporter, video *service.VideoExporter) *ExportHandler {
	return &ExportHandler{docs: docs, video: video}
}

func (h *ExportHandler) ExportPDF(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.Error(invalidRequest(errors.New("session_id is required")))
		return
	}
	path, err := h.docs.Export(c.Request.Context(), sessionID)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"pdf": path})
}

func (h *ExportHandler) ExportVideo(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.Error(invalidRequest(errors.New("session_id is required")))
		return
	}
	var opts service.VideoOptions
	if raw := c.Query("fps"); raw != "" {
		fps, err := strconv.Atoi(raw)
		if err != nil || fps <= 0 {
			c.Error(invalidRequest(fmt.Errorf("fps must be a positive integer, got %q", raw)))
			return
		}
		opts.FPS = fps
	}
	if raw := c.Query("per_scene_sec"); raw != "" {
		sec, err := strconv.ParseFloat(raw, 64)
		if err != nil || sec <= 0 {
			c.Error(invalidRequest(fmt.Errorf("per_scene_sec must be a positive number, got %q", raw)))
			return
		}
		opts.PerSceneSec = sec
	}
	path, err := h.video.Export(c.Request.Context(), sessionID, opts)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"video": path})
}

func (h *ExportHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/export/pdf", h.ExportPDF)
	r.POST("/export/video", h.ExportVideo)
}
