package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"anvil/internal/balancer"
	"anvil/internal/component"
	"anvil/internal/config"
	"anvil/internal/logger"
	"anvil/internal/tracer"
	"anvil/internal/web/middleware"
)

const (
	registryTTL   = 30 * time.Minute
	registrySweep = 5 * time.Minute
)

func main() {
	godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger.Init(cfg.SERVICE_NAME)

	if cfg.TRACE_URL != "" {
		shutdownTracer, err := tracer.InitTracer(ctx, cfg.SERVICE_NAME, cfg.TRACE_URL)
		if err != nil {
			log.Fatalf("error initialising trace: %v", err)
		}
		defer shutdownTracer()
	}

	bcfg, err := config.GetBalancerConfig()
	if err != nil {
		log.Fatalf("balancer config error: %v", err)
	}

	registry, err := component.GetRegistry(ctx, bcfg.REGISTRY_TYPE)
	if err != nil {
		log.Fatalf("registry initialization error: %v", err)
	}
	defer registry.Close()

	b, err := balancer.New(registry, bcfg.WORKERS, balancer.NewRoundRobin())
	if err != nil {
		log.Fatalf("balancer initialization error: %v", err)
	}
	go b.RunSweeper(ctx, registryTTL, registrySweep)

	limiter := middleware.NewLimiter(64, 16)
	srv := &http.Server{
		Addr:              bcfg.LISTEN_ADDR,
		Handler:           otelhttp.NewHandler(balancer.NewServer(b, limiter).Router(), "balancer"),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Log.Info().Str("addr", bcfg.LISTEN_ADDR).Int("workers", len(bcfg.WORKERS)).Msg("balancer started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	logger.Log.Info().Msg("balancer shutdown gracefully")
}
