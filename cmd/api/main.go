package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/httpapi"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/memstore"
	"rollcall/internal/queue"
	"rollcall/internal/reconcile"
	"rollcall/internal/seed"
	"rollcall/internal/store"
	"rollcall/internal/worker"
)

func main() {
	cfg := config.Load()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]httpapi.HealthCheck{}

	var authStore auth.Store
	var attStore attendance.Store
	if cfg.StoreBackend == "memory" {
		mem := memstore.New(nil)
		authStore, attStore = mem, mem
		log.Println("using in-memory store, data is lost on exit")
	} else {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		authStore = auth.NewRepository(db.Client)
		attStore = attendance.NewRepository(db.Client)
		health["db"] = db.Healthy
	}

	// redis backs the summary cache and the redis queue
	var redisClient *redis.Client
	if cfg.QueueBackend != "memory" || cfg.SummaryCacheTTL > 0 {
		var err error
		redisClient, err = store.OpenRedis(ctx, cfg.RedisAddr)
		if redisClient == nil {
			return fmt.Errorf("redis config: %w", err)
		}
		defer redisClient.Close()
		if err != nil {
			log.Printf("WARNING: redis not reachable (%v), serving degraded", err)
		}
		health["redis"] = store.RedisHealthy(redisClient)
	}

	var cache attendance.SummaryCache
	if redisClient != nil && cfg.SummaryCacheTTL > 0 {
		cache = attendance.NewRedisSummaryCache(redisClient, cfg.SummaryCacheTTL)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient, queue.EventsKey)
	}

	att := attendance.NewService(attStore, reconcile.SystemClock(cfg.Location), cache, q)
	authSvc := auth.NewService(authStore, auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL))

	if cfg.SeedDemo {
		if err := seed.Demo(ctx, authSvc, att, time.Now()); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	// the in-memory queue only delivers within this process
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := worker.New(q, att, cfg.SweepInterval, cfg.PresenceMaxAge).Run(ctx); err != nil {
				log.Printf("in-process worker: %v", err)
			}
		}()
	}

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go sweepLimiter(ctx, limiter)

	r := httpapi.NewRouter(httpapi.Options{
		Auth:              authSvc,
		Attendance:        att,
		CORSOrigins:       cfg.CORSOrigins,
		OpenTeacherSignup: cfg.OpenTeacherSignup,
		Limiter:           limiter,
		Health:            health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

func sweepLimiter(ctx context.Context, l *httpmiddleware.TokenBucket) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.Sweep(10 * time.Minute)
		case <-ctx.Done():
			return
		}
	}
}
