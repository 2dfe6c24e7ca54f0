package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetTripSummary 已结束行程的汇总
// GET /api/trips/:id/summary
func (h *Handler) GetTripSummary(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID"})
		return
	}

	summary, err := h.tripRepo.GetSummary(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get trip summary", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetTripTrack 行程完整轨迹
// GET /api/trips/:id/track
func (h *Handler) GetTripTrack(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID"})
		return
	}

	points, err := h.trackRepo.ListByTrip(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get trip track", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  points,
		"total": len(points),
	})
}
