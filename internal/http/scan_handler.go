package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lpr-service/internal/consensus"
	"lpr-service/internal/http/middleware"
	"lpr-service/internal/utils"
	"lpr-service/internal/video"
)

type createScanRequest struct {
	Source        string `json:"source" binding:"required"`
	FrameInterval int    `json:"frame_interval" binding:"omitempty,min=1"`
}

func (h *Handler) createScan(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok || !principal.CanScan() {
		c.JSON(http.StatusForbidden, errorResponse("scan permission required"))
		return
	}

	var req createScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if req.FrameInterval == 0 {
		req.FrameInterval = h.config.Scan.FrameInterval
	}

	h.log.Info().
		Str("source", utils.RedactURL(req.Source)).
		Int("frame_interval", req.FrameInterval).
		Str("user_id", principal.UserID.String()).
		Msg("starting scan")

	report, err := h.scanService.ScanSource(c.Request.Context(), req.Source, req.FrameInterval)
	switch {
	case err == nil, errors.Is(err, consensus.ErrNoPlateDetected):
		c.JSON(http.StatusOK, successResponse(report))
	case errors.Is(err, video.ErrSourceUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
			"data":  report,
		})
	default:
		h.handleError(c, err)
	}
}

func (h *Handler) listScans(c *gin.Context) {
	if !h.canRead(c) {
		return
	}
	limit, offset := pageParams(c)

	scans, err := h.scanService.ListScans(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(scans))
}

func (h *Handler) getScan(c *gin.Context) {
	if !h.canRead(c) {
		return
	}
	scan, err := h.scanService.GetScan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(scan))
}

func (h *Handler) canRead(c *gin.Context) bool {
	principal, ok := middleware.GetPrincipal(c)
	if !ok || !principal.CanRead() {
		c.JSON(http.StatusForbidden, errorResponse("read permission required"))
		return false
	}
	return true
}
