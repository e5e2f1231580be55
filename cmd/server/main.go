// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/auth"
	"github.com/jason-s-yu/codincod/internal/cache"
	"github.com/jason-s-yu/codincod/internal/config"
	"github.com/jason-s-yu/codincod/internal/database"
	"github.com/jason-s-yu/codincod/internal/handlers"
	"github.com/jason-s-yu/codincod/internal/judge"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/jason-s-yu/codincod/internal/piston"
	"github.com/jason-s-yu/codincod/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// roomResolver resolves room references from Postgres, with users going
// through the Redis cache.
type roomResolver struct {
	*database.Store
	users *cache.UserCache
}

func (r roomResolver) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.users.User(ctx, id)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	pool, err := database.Connect(startCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	store := database.NewStore(pool)

	rdb, err := cache.Connect(startCtx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()
	users := cache.NewUserCache(rdb, store, cfg.UserCacheTTL, logger)

	pc := piston.NewClient(cfg.PistonURL, cfg.JudgeHTTPTimeout)
	catalog, err := piston.LoadCatalog(startCtx, pc)
	if err != nil {
		logger.Fatalf("languages: %v", err)
	}
	logger.Infof("loaded %d languages", len(catalog.All()))

	tokens, err := auth.NewTokenIssuer(cfg.TokenExpire)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	judgeClient := judge.NewClient(pc, logger,
		judge.WithRetryLimit(cfg.JudgeRetryLimit),
		judge.WithRunTimeout(cfg.JudgeRunTimeout),
	)
	dispatcher := judge.NewDispatcher(judgeClient, cfg.JudgeWorkers, logger)
	var gs *handlers.GameServer
	registry := room.NewRegistry(store, roomResolver{Store: store, users: users}, logger,
		room.WithRestoreHook(func(rm *room.GameRoom, sub *judge.Submission) { gs.ResumeJudging(rm, sub) }))

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	go registry.Run(baseCtx, cfg.RoomTickInterval)

	gs = &handlers.GameServer{
		Users:       store,
		Resolver:    users,
		Puzzles:     store,
		Submissions: store,
		Languages:   catalog,
		Rooms:       registry,
		Judge:       judgeClient,
		Dispatcher:  dispatcher,
		Runs:        cache.NewPublisher(rdb, cfg.HistorianQueue),
		Tokens:      tokens,
		Hasher:      auth.NewHasher(auth.DefaultParams()),
		BaseCtx:     baseCtx,
		Logger:      logger,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewMux(gs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go gracefulShutdown(httpServer, registry, dispatcher, cancelBase, logger, done)

	logger.Infof("Running on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
	<-done
	logger.Info("graceful shutdown complete")
}

// gracefulShutdown waits for SIGINT/SIGTERM, stops accepting requests, lets
// in-flight judging finish, and persists every active room.
func gracefulShutdown(httpServer *http.Server, registry *room.Registry, dispatcher *judge.Dispatcher, cancelBase context.CancelFunc, logger logrus.FieldLogger, done chan<- struct{}) {
	defer close(done)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutdown signal received, press Ctrl+C again to force")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP server forced to shutdown: %v", err)
	}

	judged := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(judged)
	}()
	select {
	case <-judged:
	case <-shutdownCtx.Done():
		// Unfinished submissions are stored as such and resume when their room is next loaded.
		logger.Warn("judging did not finish before the shutdown deadline")
	}
	cancelBase()

	if err := registry.FlushAll(shutdownCtx); err != nil {
		logger.Errorf("flush rooms: %v", err)
	}
}
