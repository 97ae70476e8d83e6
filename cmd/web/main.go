package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"expense-tracker-client/core"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "web.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	shutdownTracing, err := core.SetupTracing(ctx, cfg, "expense-web")
	if err != nil {
		log.Fatalf("failed to setup tracing: %v", err)
	}

	var rdb *redis.Client
	if cfg.MirrorBackend == core.MirrorRedis {
		rdb, err = core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
	}

	// The cookie may carry the bearer token, so it is encrypted as well as signed.
	blockKey := sha256.Sum256([]byte("block:" + cfg.SessionKey))
	store := sessions.NewCookieStore([]byte(cfg.SessionKey), blockKey[:])

	gateway := core.NewHTTPAuthGateway(cfg.APIBaseURL, cfg.RequestTimeout())
	authService := core.NewAuthService(gateway)
	expenses := core.NewExpenseClient(cfg.APIBaseURL, nil, cfg.RequestTimeout())

	var mirror redis.Cmdable
	if rdb != nil {
		mirror = rdb
	}
	router := core.NewRouter(cfg, store, authService, expenses, mirror)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("starting web server on %s api=%s mirror=%s", srv.Addr, cfg.APIBaseURL, cfg.MirrorBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
