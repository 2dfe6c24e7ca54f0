package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/models"
)

type startTripRequest struct {
	VehicleID int64 `json:"vehicle_id" binding:"required"`
	RouteID   int64 `json:"route_id" binding:"required"`
}

// sampleRequest 定位样本，经纬度用指针区分 0 和缺失
type sampleRequest struct {
	Lat       *float64  `json:"lat" binding:"required"`
	Lng       *float64  `json:"lng" binding:"required"`
	SpeedMps  float64   `json:"speed_mps"`
	AccuracyM float64   `json:"accuracy_m"`
	At        time.Time `json:"at"`
}

type passengersRequest struct {
	Delta int `json:"delta" binding:"required"`
}

type conditionRequest struct {
	Condition models.Condition `json:"condition" binding:"required"`
}

type faultRequest struct {
	Reason string `json:"reason"`
}

type stopRequest struct {
	Note string `json:"note"`
}

// StartTrip 开始行程并启动跟踪
// POST /api/trips
func (h *Handler) StartTrip(c *gin.Context) {
	var req startTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vehicle_id and route_id are required"})
		return
	}

	session, err := h.crewService.StartTrip(c.Request.Context(), req.VehicleID, req.RouteID)
	if err != nil {
		h.respondError(c, "Failed to start trip", err)
		return
	}

	h.logger.Info("Trip started via API",
		zap.Int64("trip_id", session.Trip().TripID),
		zap.Int64("vehicle_id", req.VehicleID),
		zap.Int64("route_id", req.RouteID))
	c.JSON(http.StatusCreated, gin.H{"data": session.Snapshot()})
}

// ResumeTrip 恢复后端仍在进行的行程
// POST /api/trips/resume
func (h *Handler) ResumeTrip(c *gin.Context) {
	session, err := h.crewService.Resume(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to resume trip", err)
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active trip on backend"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session.Snapshot()})
}

// GetCurrentTrip 当前会话快照，已停止的会话包含汇总
// GET /api/trips/current
func (h *Handler) GetCurrentTrip(c *gin.Context) {
	session := h.manager.Current()
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No trip"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session.Snapshot()})
}

// PushSample 上报定位样本
// POST /api/trips/current/samples
func (h *Handler) PushSample(c *gin.Context) {
	var req sampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return
	}

	sample := models.LocationSample{
		Lat:       *req.Lat,
		Lng:       *req.Lng,
		SpeedMps:  req.SpeedMps,
		AccuracyM: req.AccuracyM,
		At:        req.At,
	}
	if err := h.manager.Push(sample); err != nil {
		h.respondError(c, "Failed to push sample", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Sample accepted"})
}

// UpdatePassengers 乘客上下车，delta 只能为 +1 或 -1
// POST /api/trips/current/passengers
func (h *Handler) UpdatePassengers(c *gin.Context) {
	var req passengersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delta is required"})
		return
	}

	count, err := h.crewService.UpdatePassengers(c.Request.Context(), req.Delta)
	if err != nil {
		h.respondError(c, "Failed to update passengers", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"passengers": count}})
}

// UpdateCondition 更新路况
// POST /api/trips/current/condition
func (h *Handler) UpdateCondition(c *gin.Context) {
	var req conditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "condition is required"})
		return
	}

	if err := h.crewService.UpdateCondition(c.Request.Context(), req.Condition); err != nil {
		h.respondError(c, "Failed to update condition", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"condition": req.Condition}})
}

// ReportFault 定位源故障（如权限被收回），会话随即停止
// POST /api/trips/current/fault
func (h *Handler) ReportFault(c *gin.Context) {
	var req faultRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "unknown"
	}

	if err := h.manager.Fail(fmt.Errorf("location source failed: %s", req.Reason)); err != nil {
		h.respondError(c, "Failed to report fault", err)
		return
	}

	h.logger.Warn("Location source fault reported", zap.String("reason", req.Reason))
	c.JSON(http.StatusAccepted, gin.H{"message": "Fault reported"})
}

// StopTrip 结束行程
// POST /api/trips/current/stop
// 本地已停止但后端结束失败时，返回错误的同时带上汇总
func (h *Handler) StopTrip(c *gin.Context) {
	var req stopRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	summary, err := h.crewService.FinishTrip(c.Request.Context(), req.Note)
	if err != nil {
		if summary.TripID == 0 {
			h.respondError(c, "Failed to stop trip", err)
			return
		}
		h.logger.Error("Trip stopped locally but backend finish failed",
			zap.Int64("trip_id", summary.TripID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "data": summary})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// bindOptionalJSON 请求体可以为空，格式错误时返回 400
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	return true
}
