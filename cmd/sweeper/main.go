package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lautaro-loggia/fitcoach-sub003/internal/config"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/domain"
	persistence "github.com/lautaro-loggia/fitcoach-sub003/internal/persistence/postgres"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/sweep"
)

func main() {
	cfg := config.Load()

	if len(cfg.SweepTenants) == 0 {
		log.Fatal("SWEEP_TENANTS must list at least one tenant")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	sweeper := sweep.NewSweeper(repo, domain.SystemClock(), cfg.SweepBatchSize)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("sweeper metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	log.Printf("sweeper started (interval=%s, tenants=%d)", cfg.SweepInterval, len(cfg.SweepTenants))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	runAll := func() {
		for _, tenantID := range cfg.SweepTenants {
			result, err := sweeper.Run(ctx, tenantID)
			if err != nil {
				log.Printf("sweep error for tenant %s: %v", tenantID, err)
				continue
			}
			log.Printf("sweep tenant=%s scanned=%d due=%d overdue=%d", tenantID, result.Scanned, len(result.Due), len(result.Overdue))
		}
	}

	runAll()

	for {
		select {
		case <-ctx.Done():
			goto shutdown
		case <-ticker.C:
			runAll()
		case <-stop:
			log.Println("sweeper received shutdown signal")
			cancel()
			goto shutdown
		}
	}

shutdown:
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
}
