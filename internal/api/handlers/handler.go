package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/api/backend"
	"github.com/langchou/buskru/internal/metrics"
	"github.com/langchou/buskru/internal/repository"
	"github.com/langchou/buskru/internal/service"
	"github.com/langchou/buskru/internal/tracking"
	"github.com/langchou/buskru/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger      *zap.Logger
	crewService *service.CrewService
	manager     *tracking.Manager
	trackRepo   *repository.TrackRepository
	tripRepo    *repository.TripRepository
	metrics     *metrics.Collector
	wsHub       *ws.Hub
	upgrader    websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	crewService *service.CrewService,
	manager *tracking.Manager,
	trackRepo *repository.TrackRepository,
	tripRepo *repository.TripRepository,
	m *metrics.Collector,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:      logger,
		crewService: crewService,
		manager:     manager,
		trackRepo:   trackRepo,
		tripRepo:    tripRepo,
		metrics:     m,
		wsHub:       wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 观察端来自任意来源
			},
		},
	}
}

// statusFor 把领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, service.ErrNotLoggedIn), errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, tracking.ErrNotActive), errors.Is(err, service.ErrTripInProgress):
		return http.StatusConflict
	case errors.Is(err, tracking.ErrInvalidTripGeometry),
		errors.Is(err, tracking.ErrCapacityExceeded),
		errors.Is(err, tracking.ErrUnderflow),
		errors.Is(err, tracking.ErrInvalidDelta),
		errors.Is(err, tracking.ErrInvalidCondition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tracking.ErrFeedFull):
		return http.StatusTooManyRequests
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		// 后端的业务错误原样透传，其余视为网关错误
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, backend.ErrParse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError 输出错误响应，服务端错误记日志
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
