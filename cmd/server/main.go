// Command server runs the annotation platform's task scheduler and
// exposes its prometheus metrics. The HTTP API that submits work lives
// in a separate service; this process owns the queue, the admission
// loop, and the periodic reclamation of stale entries.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quietlabs/annoq/internal/config"
	"github.com/quietlabs/annoq/internal/platform/logger"
	"github.com/quietlabs/annoq/internal/queue"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	scheduler := queue.New(queue.Config{
		CPUWorkers:   cfg.Scheduler.CPUWorkers,
		GPUWorkers:   cfg.Scheduler.GPUWorkers,
		MaxBacklog:   cfg.Scheduler.MaxBacklog,
		TickInterval: cfg.Scheduler.TickInterval,
		StaleAge:     cfg.Scheduler.StaleAge,
		AdmitAll:     cfg.Scheduler.AdmitAll,
		Registerer:   prometheus.DefaultRegisterer,
	}, log)
	scheduler.Start()
	defer scheduler.Close()

	// The scheduler does not self-clean; this process is the external
	// driver that reclaims stale entries on its own schedule.
	maintCtx, stopMaint := context.WithCancel(context.Background())
	defer stopMaint()
	go maintenanceLoop(maintCtx, scheduler, cfg.Scheduler.CleanInterval, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.Info("metrics server listening", "addr", srv.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("metrics server failed: %w", err)
	case s := <-sig:
		log.Info("shutting down", "signal", s.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	return nil
}

// maintenanceLoop periodically drops entries older than the configured
// stale age from the scheduler's bookkeeping.
func maintenanceLoop(ctx context.Context, s *queue.Scheduler, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.CleanOldProcesses(0); removed > 0 {
				log.Info("maintenance reclaimed stale entries", "removed", removed)
			}
		}
	}
}
