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

	"anvil/internal/builder"
	"anvil/internal/component"
	"anvil/internal/config"
	"anvil/internal/executor"
	"anvil/internal/logger"
	"anvil/internal/tracer"
	"anvil/internal/worker"
	"anvil/internal/worklock"
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

	wcfg, err := config.GetWorkerConfig()
	if err != nil {
		log.Fatalf("worker config error: %v", err)
	}

	projects, err := builder.LoadProjects(wcfg.PROJECTS_CONFIG)
	if err != nil {
		log.Fatalf("projects config error: %v", err)
	}

	store, err := component.GetResultStore(ctx, wcfg.STORE_TYPE)
	if err != nil {
		log.Fatalf("result store initialization error: %v", err)
	}
	defer store.Close()

	archive, err := component.GetArchive(wcfg.ARCHIVE_TYPE)
	if err != nil {
		log.Fatalf("archive initialization error: %v", err)
	}

	runner, err := component.GetRunner(wcfg.RUNNER_TYPE)
	if err != nil {
		log.Fatalf("runner initialization error: %v", err)
	}

	exec := &executor.Executor{
		WorkerID:   wcfg.WORKER_ID,
		ScratchDir: wcfg.SCRATCH_DIR,
		Lock:       worklock.New(),
		Store:      store,
		Runner:     runner,
		Archive:    archive,
	}
	service := worker.NewService(wcfg.WORKER_ID, projects, store, exec)

	if rscfg, err := config.GetResultStoreConfig(); err == nil {
		go service.RunSweeper(ctx,
			time.Duration(rscfg.TTL)*time.Second,
			time.Duration(rscfg.SWEEP_SECONDS)*time.Second)
	}

	srv := &http.Server{
		Addr:              wcfg.LISTEN_ADDR,
		Handler:           otelhttp.NewHandler(worker.NewServer(service).Router(), "worker"),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Log.Info().Str("addr", wcfg.LISTEN_ADDR).Msg("worker started")
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
	logger.Log.Info().Msg("worker shutdown gracefully")
}
