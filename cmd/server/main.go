package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/buskru/internal/api/backend"
	"github.com/langchou/buskru/internal/api/directions"
	"github.com/langchou/buskru/internal/api/handlers"
	"github.com/langchou/buskru/internal/config"
	"github.com/langchou/buskru/internal/live"
	"github.com/langchou/buskru/internal/metrics"
	"github.com/langchou/buskru/internal/repository"
	"github.com/langchou/buskru/internal/service"
	"github.com/langchou/buskru/internal/tracking"
	"github.com/langchou/buskru/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting buskru", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	trackRepo := repository.NewTrackRepository(db.Pool)
	tripRepo := repository.NewTripRepository(db.Pool)

	// 实时存储，不可用时只告警，写入失败不影响跟踪
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("Realtime store unavailable, live updates will fail until it recovers", zap.Error(err))
	}

	channels := live.Fanout{live.NewRedisChannel(redisClient, cfg.LiveKeyPrefix)}
	if cfg.NATSURL != "" {
		natsChannel, err := live.NewNATSChannel(cfg.NATSURL, cfg.LiveKeyPrefix, logger)
		if err != nil {
			logger.Warn("NATS unavailable, push feed disabled", zap.Error(err))
		} else {
			defer natsChannel.Close()
			channels = append(channels, natsChannel)
		}
	}

	m := metrics.NewCollector()

	// 未配置 API key 时只使用本地估算
	var etaProvider tracking.ETAProvider
	if cfg.DirectionsAPIKey != "" {
		etaProvider = directions.NewClient(cfg.DirectionsURL, cfg.DirectionsAPIKey, cfg.ETATimeout, logger)
	} else {
		logger.Warn("DIRECTIONS_API_KEY not set, ETA uses local estimate only")
	}

	manager := tracking.NewManager(channels, etaProvider, tracking.OptionsFromConfig(cfg), logger, m)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	wsHub.SetInitDataProvider(func() interface{} {
		if session := manager.Current(); session != nil {
			return session.Snapshot()
		}
		return nil
	})
	go wsHub.Run(ctx)

	// 每个会话的事件落库并推送到 WebSocket
	recorder := repository.NewRecorder(trackRepo, tripRepo, logger)
	manager.OnSessionStart(func(session *tracking.Session) {
		recorder.Record(session.Subscribe())
		wsHub.Relay(session.Subscribe())
	})

	backendClient := backend.NewClient(cfg.BackendURL, logger)
	crewService := service.NewCrewService(logger, backendClient, manager)

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		crewService,
		manager,
		trackRepo,
		tripRepo,
		m,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// 停止活动会话，等汇总落库后再断开
	manager.Shutdown(shutdownCtx)
	recorder.Wait()
	cancel()

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
