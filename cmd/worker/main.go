package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wachannel/internal/config"
	"wachannel/internal/dispatcher"
	"wachannel/internal/logger"
	"wachannel/internal/queue"
	"wachannel/internal/repository"
	"wachannel/internal/service"
	"wachannel/internal/simulator"
)

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

	deps := dispatcher.Deps{Logger: log}
	if cfg.WhatsApp.Simulate {
		deps.Publisher, err = queue.NewBroadcastPublisher(conn, cfg.RabbitMQ.BroadcastExchange)
		if err != nil {
			logger.Fatal("failed to create simulator publisher", zap.Error(err))
		}
		deps.Identities = identityLookup(cfg, log)
	}

	transport, err := dispatcher.NewTransport(cfg.WhatsApp, deps)
	if err != nil {
		logger.Fatal("failed to select transport", zap.Error(err))
	}
	d := dispatcher.New(transport, cfg.WhatsApp.DispatchTimeout, log)
	logger.Info("transport selected", zap.String("provider", d.Provider()))

	// Initialize services
	ledger := service.NewLedgerService(repository.NewChatLogRepository(db), log)
	delivery := service.NewDeliveryService(d, ledger, log)

	consumer, err := queue.NewConsumer(conn, cfg.RabbitMQ.SendQueue, delivery.Deliver, log)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	if err := consumer.Start(); err != nil {
		logger.Fatal("failed to start consumer", zap.Error(err))
	}
	logger.Info("worker started", zap.String("queue", cfg.RabbitMQ.SendQueue))

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")

	if err := consumer.Stop(); err != nil {
		logger.Error("error stopping consumer", zap.Error(err))
	}

	logger.Info("worker stopped")
}

// identityLookup prefers the Redis identity table when Redis is configured,
// seeding it from SIMULATOR_IDENTITIES, and falls back to the static map.
func identityLookup(cfg *config.Config, log *zap.Logger) simulator.IdentityLookup {
	static := simulator.StaticLookup(cfg.Simulator.Identities)
	if cfg.Redis.Addr == "" {
		return static
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lookup := simulator.NewRedisLookup(rdb, cfg.Redis.IdentityKey, log)

	ctx := context.Background()
	for phone, identity := range cfg.Simulator.Identities {
		if err := lookup.Set(ctx, phone, identity); err != nil {
			log.Warn("failed to seed simulator identity", zap.String("phone", phone), zap.Error(err))
			return static
		}
	}
	return lookup
}
