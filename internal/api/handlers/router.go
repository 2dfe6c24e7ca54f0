package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/buskru/pkg/ws"
)

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 登录
		api.POST("/auth/login", h.Login)
		api.POST("/auth/logout", h.Logout)

		// 车辆与线路
		api.GET("/fleet", h.ListFleet)
		api.GET("/routes", h.ListRoutes)

		// 当前行程
		api.POST("/trips", h.StartTrip)
		api.POST("/trips/resume", h.ResumeTrip)
		api.GET("/trips/current", h.GetCurrentTrip)
		api.POST("/trips/current/samples", h.PushSample)
		api.POST("/trips/current/passengers", h.UpdatePassengers)
		api.POST("/trips/current/condition", h.UpdateCondition)
		api.POST("/trips/current/fault", h.ReportFault)
		api.POST("/trips/current/stop", h.StopTrip)

		// 历史
		api.GET("/trips/:id/summary", h.GetTripSummary)
		api.GET("/trips/:id/track", h.GetTripTrack)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查与指标
	r.GET("/health", h.HealthCheck)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	}
	if session := h.manager.Current(); session != nil && session.Active() {
		resp["active_trip_id"] = session.Trip().TripID
	}
	c.JSON(http.StatusOK, resp)
}
