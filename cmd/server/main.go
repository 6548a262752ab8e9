package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pointbook/backend/internal/cache"
	"pointbook/backend/internal/config"
	"pointbook/backend/internal/erp"
	"pointbook/backend/internal/httpapi"
	"pointbook/backend/internal/service"
	"pointbook/backend/internal/store"
	"pointbook/backend/internal/store/jsonfile"
	pgstore "pointbook/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	switch repoBackend(cfg) {
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with file fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	default:
		fs, err := jsonfile.New(cfg.DataDir)
		if err != nil {
			log.Fatalf("open data dir %q: %v", cfg.DataDir, err)
		}
		repo = fs
		log.Printf("repository: json files in %s", cfg.DataDir)
	}

	throttle := cache.SyncThrottle(cache.NewMemorySyncThrottle())
	if cfg.RedisAddr != "" {
		redisThrottle := cache.NewRedisSyncThrottle(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisThrottle.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), sync throttle is in-memory only", err)
		} else {
			throttle = redisThrottle
			closers = append(closers, redisThrottle.Close)
			log.Println("sync throttle: redis")
		}
	}

	erpClient := erp.New(erp.Config{
		ZoneURL:            cfg.ERPZoneURL,
		HostPattern:        cfg.ERPHostPattern,
		SandboxHostPattern: cfg.ERPSandboxHostPattern,
		SyncInterval:       cfg.ERPSyncInterval,
	}, throttle)

	svc := service.New(repo, erpClient)
	api := httpapi.New(svc, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("loyalty backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// repoBackend picks the persistence backend. A configured DATABASE_URL
// always wins; otherwise state lives in whole-file JSON documents under
// the data dir.
func repoBackend(cfg config.Config) string {
	if cfg.DatabaseURL != "" {
		return "postgres"
	}
	return "jsonfile"
}
