// cmd/historian/main.go runs the judge-run historian: it drains the Redis
// queue the server publishes to and persists batches to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/codincod/internal/cache"
	"github.com/jason-s-yu/codincod/internal/config"
	"github.com/jason-s-yu/codincod/internal/database"
	"github.com/jason-s-yu/codincod/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	svc := historian.NewService(rdb, database.NewStore(pool), cfg.HistorianQueue, cfg.HistorianBatchSize, cfg.HistorianFlush, logger)
	svc.Run(ctx)
}
