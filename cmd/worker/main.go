package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/reconcile"
	"rollcall/internal/store"
	"rollcall/internal/worker"
)

// Worker consumes attendance.marked messages and expires stale presence.
func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" || cfg.StoreBackend == "memory" {
		log.Fatalf("worker needs shared backends; with in-memory ones the api runs the worker in-process")
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient, err := store.OpenRedis(ctx, cfg.RedisAddr)
	if redisClient == nil {
		log.Fatalf("redis config: %v", err)
	}
	defer redisClient.Close()
	if err != nil {
		log.Printf("WARNING: redis not reachable (%v), will keep retrying", err)
	}

	var cache attendance.SummaryCache
	if cfg.SummaryCacheTTL > 0 {
		cache = attendance.NewRedisSummaryCache(redisClient, cfg.SummaryCacheTTL)
	}
	q := queue.NewRedisQueue(redisClient, queue.EventsKey)

	// the worker never publishes, so no publisher is wired
	att := attendance.NewService(attendance.NewRepository(db.Client), reconcile.SystemClock(cfg.Location), cache, nil)

	if err := worker.New(q, att, cfg.SweepInterval, cfg.PresenceMaxAge).Run(ctx); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}
