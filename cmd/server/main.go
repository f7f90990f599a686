package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	handlers "Travault/internal/handler"
	"Travault/internal/emergency"
	"Travault/internal/models"
	"Travault/internal/proximity"
	"Travault/internal/safety"
	"Travault/pkg/cache"
	"Travault/pkg/config"
	constants "Travault/pkg/constant"
	"Travault/pkg/logger"
	"Travault/pkg/metrics"
	"Travault/pkg/middleware"
	"Travault/pkg/notification"
	"Travault/pkg/scheduler"
	"Travault/pkg/util"
	"Travault/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		fmt.Printf("load config failed: %v\n", err)
		os.Exit(1)
	}
	cfg := config.GlobalConfig
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		fmt.Printf("init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	gin.SetMode(cfg.Mode)

	if err := run(cfg); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.Default()

	db, err := util.InitDatabase(logger.Writer(), cfg.DBDriver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.Use(&metrics.GormPlugin{Metrics: m}); err != nil {
		return fmt.Errorf("register gorm metrics: %w", err)
	}
	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer c.Close()

	hub := websocket.NewHub(websocket.LoadConfigFromEnv())
	defer hub.Close()

	dispatcher, err := newDispatcher(cfg)
	if err != nil {
		return err
	}

	prox := proximity.NewService(db, hub).WithCache(c, cfg.ContactCacheTTL).WithRecorder(m)
	em := emergency.NewService(db, dispatcher, hub).WithLocationUpdater(prox).WithRecorder(m)
	sf := safety.NewService(db, hub).WithRecorder(m)
	hub.SetHooks(sf.Hooks(prox))
	go logResponderEvents(ctx, hub)

	cr := scheduler.NewCron(time.UTC)
	if _, err := cr.Add(cfg.AlertExpirySchedule, "expire-safety-alerts", sf.ExpiryJob()); err != nil {
		return fmt.Errorf("schedule alert expiry: %w", err)
	}
	cr.Start()
	defer cr.Stop()

	limiterStore, err := newLimiterStore(cfg)
	if err != nil {
		return err
	}
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:          cfg.RateLimit,
		PerRouteRates: map[string]string{cfg.APIPrefix + "/emergency/alert": cfg.EmergencyRateLimit},
		Identifier:    "ip",
		AddHeaders:    true,
		DenyMessage:   "Too many requests, please try again later.",
	}, limiterStore).WithObserver(middleware.NewPrometheusObserver())

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestID(uuid.NewString), metrics.MonitorMiddleware(m))
	engine.GET(cfg.MetricsPath, metrics.Handler(prometheus.DefaultGatherer))

	handlers.NewHandlers(db, handlers.Services{Emergency: em, Proximity: prox, Safety: sf}).
		WithWebsocket(websocket.NewHandler(hub)).
		WithRateLimit(rl.Middleware()).
		WithIdemStore(middleware.CacheIdemStore{Cache: c}).
		Register(engine)

	srv := &http.Server{Addr: cfg.Addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr), zap.String("prefix", cfg.APIPrefix))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newDispatcher(cfg *config.Config) (*notification.Dispatcher, error) {
	sms, err := notification.NewSMSClient(cfg.SMS)
	if err != nil {
		return nil, fmt.Errorf("init sms client: %w", err)
	}
	return notification.NewDispatcher().
		WithTimeout(cfg.DispatchTimeout).
		Register(notification.ChannelEmergencyServices, notification.NewMailSender(cfg.Mail, cfg.EmergencyServicesEmail)).
		Register(notification.ChannelSMS, notification.NewSMSSender(sms)), nil
}

func newLimiterStore(cfg *config.Config) (limiter.Store, error) {
	if !strings.EqualFold(cfg.Cache.Type, "redis") {
		return nil, nil
	}
	store, err := middleware.NewRedisStore(cache.NewRedisClient(cfg.Cache.Redis), "travault:limiter")
	if err != nil {
		return nil, fmt.Errorf("init rate limit store: %w", err)
	}
	return store, nil
}

// logResponderEvents 记录推送给急救响应方的事件
func logResponderEvents(ctx context.Context, hub *websocket.Hub) {
	events, cancel := hub.Subscribe(constants.TopicEmergencyResponders)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			logger.Info("responder event", zap.String("type", ev.Type), zap.Any("data", ev.Data))
		}
	}
}
