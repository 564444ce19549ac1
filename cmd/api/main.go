package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"arbor/api/internal/app"
	"arbor/api/internal/archive"
	"arbor/api/internal/config"
	"arbor/api/internal/export"
	"arbor/api/internal/extract"
	"arbor/api/internal/generate"
	"arbor/api/internal/nvq"
	"arbor/api/internal/ratelimit"
	"arbor/api/internal/search"
	"arbor/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		go searchService.ReindexAllFromPG(ctx)
	}

	var guard *ratelimit.Guard
	if strings.TrimSpace(cfg.RedisURL) != "" {
		guard, err = ratelimit.NewGuard(cfg.RedisURL, cfg.MaxPendingPerUser, cfg.MaxHourlyPerUser)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer guard.Close()
		log.Printf("Enqueue guard enabled via Redis")
	}

	var archiver extract.Archiver
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			log.Fatalf("failed to create archive dir: %v", err)
		}
		archiver = archive.New(cfg.ArchiveDir)
		log.Printf("Note archive enabled at %s", cfg.ArchiveDir)
	}

	generator := generate.NewClient(cfg.GeneratorURL, cfg.GeneratorAPIKey, cfg.GeneratorModel, cfg.GeneratorTimeout)
	evaluator := nvq.NewEvaluator(cfg.NVQThreshold)

	workerOpts := extract.Options{
		MaxRefinements: cfg.MaxRefinements,
		ContextNotes:   cfg.ContextNotes,
		Archiver:       archiver,
	}
	if guard != nil {
		workerOpts.OnDone = func(userID string) {
			guard.RecordDone(context.Background(), userID)
		}
	}
	worker := extract.NewWorker(dataStore, searchService, generator, evaluator, workerOpts)

	service := app.NewService(dataStore, worker, app.ServiceOptions{
		Guard:       guard,
		Exporter:    export.NewService(dataStore),
		StuckAfter:  cfg.StuckAfter,
		MaxAttempts: cfg.MaxAttempts,
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	for i := 0; i < cfg.Workers; i++ {
		w := extract.NewWorker(dataStore, searchService, generator, evaluator, workerOpts)
		go w.Run(runCtx, cfg.PollInterval)
	}
	log.Printf("Started %d extraction workers (poll %s)", cfg.Workers, cfg.PollInterval)

	// Sweep abandoned claims back to pending on a fixed cadence.
	go func() {
		ticker := time.NewTicker(cfg.StuckAfter / 2)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := service.ResetStuck(runCtx); err != nil {
					log.Printf("stuck sweep: %v", err)
				}
			}
		}
	}()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Arbor API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
