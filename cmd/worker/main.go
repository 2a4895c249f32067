package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"fpconsole/internal/audit"
	"fpconsole/internal/config"
	"fpconsole/internal/logger"
	"fpconsole/internal/queue"
	"fpconsole/internal/store"
)

// Worker consumes console events from Redis and writes the audit trail.
func main() {
	logger.Init()
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		logger.LogError("worker needs a shared queue", errors.New("QUEUE_BACKEND=memory is local to the console"), "hint", "set QUEUE_BACKEND=redis")
		os.Exit(1)
	}

	dsn := cfg.AuditDSN
	if dsn == "" && cfg.AuditDriver == store.DriverSQLite {
		dsn = "fpconsole-audit.db"
	}
	db, err := store.NewDB(cfg.AuditDriver, dsn)
	if err != nil {
		logger.LogError("audit db connect failed", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := audit.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		logger.LogError("audit migrate failed", err)
		os.Exit(1)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.LogWarn("redis not reachable yet, consumer will retry", "addr", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	logger.LogInfo("worker started, waiting for messages", "queue", queue.DefaultKey)
	if err := audit.NewService(repo).Run(ctx, q); err != nil {
		logger.LogError("worker stopped", err)
		os.Exit(1)
	}
	logger.LogInfo("worker stopped")
}
