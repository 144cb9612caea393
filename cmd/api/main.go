package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wachannel/internal/config"
	"wachannel/internal/handler"
	"wachannel/internal/logger"
	"wachannel/internal/queue"
	"wachannel/internal/repository"
	"wachannel/internal/service"
	"wachannel/internal/simulator"
)

const version = "1.0.0"

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Logger

	// Connect to database
	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	// Connect to RabbitMQ
	conn, err := queue.NewConnection(cfg.GetRabbitMQURL(), log)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Close()

	publisher, err := queue.NewPublisher(conn, cfg.RabbitMQ.SendQueue)
	if err != nil {
		logger.Fatal("failed to create publisher", zap.Error(err))
	}

	// Redis is optional and only reported by the health check here
	var cache redis.Cmdable
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		cache = rdb
	}

	// Simulator observers connect here; the worker reaches them through the fanout exchange
	hub := simulator.NewHub(log)
	defer hub.Close()

	relay, err := queue.NewBroadcastSubscriber(conn, cfg.RabbitMQ.BroadcastExchange, hub, log)
	if err != nil {
		logger.Fatal("failed to create simulator relay", zap.Error(err))
	}
	if err := relay.Start(); err != nil {
		logger.Fatal("failed to start simulator relay", zap.Error(err))
	}
	defer relay.Stop()

	// Initialize services
	ledger := service.NewLedgerService(repository.NewChatLogRepository(db), log)
	messaging := service.NewMessagingService(publisher, log)
	health := service.NewHealthService(db, cfg.GetRabbitMQURL(), cache, version)

	routes := handler.Routes{
		Health:    handler.NewHealthHandler(health),
		Webhook:   handler.NewWebhookHandler(ledger, cfg.WhatsApp.AppSecret, cfg.WhatsApp.VerifyToken, log),
		Messages:  handler.NewMessageHandler(messaging),
		ChatLogs:  handler.NewChatLogHandler(ledger),
		Simulator: hub,
	}

	if keyPEM, err := cfg.FlowPrivateKey(); err != nil {
		logger.Warn("flow endpoint disabled", zap.Error(err))
	} else {
		routes.Flow = handler.NewFlowHandler(keyPEM, cfg.Flow.Passphrase, nil, log)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.NewRouter(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.Bool("simulate", cfg.WhatsApp.Simulate),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
