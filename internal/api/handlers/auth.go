package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 乘务登录
// POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	session, err := h.crewService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, "Failed to login", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session.Crew})
}

// Logout 乘务注销，行程进行中时返回 409
// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.crewService.Logout(c.Request.Context()); err != nil {
		h.respondError(c, "Failed to logout", err)
		return
	}

	h.logger.Info("Crew logged out via API")
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// ListFleet 获取可选车辆
func (h *Handler) ListFleet(c *gin.Context) {
	vehicles, err := h.crewService.Fleet(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list fleet", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// ListRoutes 获取可选线路
func (h *Handler) ListRoutes(c *gin.Context) {
	routes, err := h.crewService.Routes(c.Request.Context())
	if err != nil {
		h.logger.Warn("Route list unavailable", zap.Error(err))
		h.respondError(c, "Failed to list routes", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": routes})
}
