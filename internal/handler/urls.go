package handlers

import (
	"Travault/internal/emergency"
	"Travault/internal/models"
	"Travault/internal/proximity"
	"Travault/internal/safety"
	"Travault/pkg/config"
	"Travault/pkg/middleware"
	"Travault/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Services 路由依赖的业务服务
type Services struct {
	Emergency *emergency.Service
	Proximity *proximity.Service
	Safety    *safety.Service
}

type Handlers struct {
	db        *gorm.DB
	emergency *emergency.Service
	proximity *proximity.Service
	safety    *safety.Service
	ws        *websocket.Handler
	limiter   gin.HandlerFunc
	idem      middleware.IdemStore
}

func NewHandlers(db *gorm.DB, svc Services) *Handlers {
	return &Handlers{
		db:        db,
		emergency: svc.Emergency,
		proximity: svc.Proximity,
		safety:    svc.Safety,
	}
}

// WithWebsocket 挂载 /ws 与 /ws/stats
func (h *Handlers) WithWebsocket(ws *websocket.Handler) *Handlers {
	h.ws = ws
	return h
}

// WithRateLimit 作用于 /auth 与 /emergency
func (h *Handlers) WithRateLimit(mw gin.HandlerFunc) *Handlers {
	h.limiter = mw
	return h
}

// WithIdemStore 警报上报去重使用的存储，为空时使用进程内存
func (h *Handlers) WithIdemStore(store middleware.IdemStore) *Handlers {
	h.idem = store
	return h
}

func apiPrefix() string {
	if config.GlobalConfig != nil && config.GlobalConfig.APIPrefix != "" {
		return config.GlobalConfig.APIPrefix
	}
	return "/api"
}

func (h *Handlers) Register(engine *gin.Engine) {
	r := engine.Group(apiPrefix())

	// Register Global Singleton DB
	r.Use(middleware.InjectDB(h.db))
	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerAuthRoutes(r)
	h.registerEmergencyRoutes(r)
	h.registerSafetyRoutes(r)
	h.registerWebsocketRoutes(r)
}

func (h *Handlers) limited(r *gin.RouterGroup) {
	if h.limiter != nil {
		r.Use(h.limiter)
	}
}

// User Module
func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	auth := r.Group("auth")
	h.limited(auth)
	{
		auth.POST("/register", h.handleRegister)

		auth.POST("/login", h.handleLogin)

		auth.GET("/me", models.AuthRequired, h.handleMe)
	}
}

func (h *Handlers) registerEmergencyRoutes(r *gin.RouterGroup) {
	em := r.Group("emergency")
	h.limited(em)
	em.Use(models.AuthRequired)
	{
		em.POST("/alert", h.handleRaiseEmergency)

		em.GET("/contacts", h.handleEmergencyContacts)

		em.GET("/services/:country", h.handleEmergencyServices)

		em.POST("/check-in", h.handleCheckIn)

		em.GET("/reports", h.handleListReports)

		em.GET("/reports/:id", h.handleGetReport)

		em.PUT("/reports/:id", h.handleUpdateReport)

		em.POST("/reports/:id/updates", h.handleAddReportUpdate)
	}
}

func (h *Handlers) registerSafetyRoutes(r *gin.RouterGroup) {
	sf := r.Group("safety")
	sf.Use(models.AuthRequired)
	idem := middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{Store: h.idem})
	{
		sf.GET("/alerts", h.handleListAlerts)

		sf.POST("/alerts", models.VerifiedRequired, idem, h.handleCreateAlert)

		sf.POST("/alerts/:id/reactions", h.handleReactAlert)

		sf.GET("/routes", h.handleListRoutes)

		sf.POST("/routes", models.VerifiedRequired, h.handleCreateRoute)

		sf.GET("/groups", h.handleListGroups)

		sf.POST("/groups", models.VerifiedRequired, h.handleCreateGroup)

		sf.POST("/groups/:id/join", h.handleJoinGroup)

		sf.POST("/groups/:id/leave", h.handleLeaveGroup)

		sf.PUT("/location", h.handleUpdateLocation)
	}
}

func (h *Handlers) registerWebsocketRoutes(r *gin.RouterGroup) {
	if h.ws == nil {
		return
	}
	websocket.RegisterRoutes(r.Group("", models.AuthRequired), h.ws)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}
