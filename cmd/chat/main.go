package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sudooom.estate.chat/internal/auth"
	"sudooom.estate.chat/internal/chat"
	"sudooom.estate.chat/internal/config"
	"sudooom.estate.chat/internal/connection"
	"sudooom.estate.chat/internal/handler"
	"sudooom.estate.chat/internal/health"
	"sudooom.estate.chat/internal/httpapi"
	"sudooom.estate.chat/internal/notify"
	"sudooom.estate.chat/internal/presence"
	"sudooom.estate.chat/internal/push"
	"sudooom.estate.chat/internal/repository"
	"sudooom.estate.chat/internal/router"
	"sudooom.estate.chat/internal/server"
	"sudooom.estate.chat/internal/workerpool"
)

func main() {
	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// 加载配置
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接 NATS
	natsClient, err := notify.NewClient(cfg.NATS)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 连接 Redis
	redisClient := connectRedis(cfg.Redis)
	defer redisClient.Close()
	logger.Info("Connected to Redis", "host", cfg.Redis.Host)

	// 连接数据库
	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)

	// 仓库
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)

	// 核心组件
	verifier := auth.NewVerifier(cfg.JWT.Secret, logger)
	presenceStore := presence.NewStore(redisClient)
	eventRouter := router.New(convRepo, presenceStore, logger)
	chatService := chat.NewService(convRepo, msgRepo)
	publisher := notify.NewPublisher(natsClient.Conn())

	// 推送管线
	dispatcher := push.NewDispatcher(subRepo, push.NewWebPushSender(cfg.Push), cfg.Push.MaxConcurrency)
	subscriber := notify.NewSubscriber(natsClient.Conn(), dispatcher, presenceStore)
	if err := subscriber.Start(ctx); err != nil {
		logger.Error("Failed to start push subscriber", "error", err)
		os.Exit(1)
	}
	defer subscriber.Stop()

	// 事件处理
	pool := workerpool.New(cfg.Worker.Workers, cfg.Worker.QueueSize, logger)
	eventHandler := handler.NewHandler(eventRouter, chatService, publisher, pool, logger)
	wsServer := server.New(verifier, connection.NewManager(), eventRouter, eventHandler, convRepo, cfg.Server.AllowedOrigins, logger)

	// HTTP 路由
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", wsServer.HandleWS)
	httpapi.NewAPI(dispatcher, convRepo, msgRepo).Register(r, verifier)
	health.NewChecker(natsClient.Conn(), redisClient, db).Register(r)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Chat service started", "name", cfg.App.Name, "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
	}

	cancel()
	subscriber.Stop()
	pool.Shutdown()
	logger.Info("Chat service stopped")
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}
