package websocket

import (
	"net/http"
	"time"

	constants "Travault/pkg/constant"
	"Travault/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler WebSocket HTTP处理器
type Handler struct {
	hub *Hub
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes 注册到已经挂载认证中间件的路由组
func RegisterRoutes(r gin.IRoutes, handler *Handler) {
	r.GET(RouteWebSocket, handler.HandleWebSocket)
	r.GET(RouteWebSocketStats, handler.GetStats)
}

// HandleWebSocket 处理WebSocket连接请求
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get(constants.UserField)
	if !exists {
		logger.Warn("websocket: unauthenticated upgrade")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized to access this route"})
		return
	}
	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}
	HandleWebSocket(h.hub, c.Writer, c.Request, userIDStr)
}

// GetStats 获取WebSocket统计信息
func (h *Handler) GetStats(c *gin.Context) {
	userID, _ := c.Get(constants.UserField)
	uid, _ := userID.(string)
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"total_connections": h.hub.GetConnectionCount(),
		"user_connections":  h.hub.GetUserConnections(uid),
		"max_connections":   h.hub.config.MaxConnections,
		"hub_running":       h.hub.ctx.Err() == nil,
		"timestamp":         time.Now().Unix(),
	})
}
