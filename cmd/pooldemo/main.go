// Package main is the entrypoint for the pool demo process. It loads
// target configuration, brings up a pool per target through the registry,
// exposes Prometheus metrics and health endpoints, and waits for a shutdown
// signal.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arannis/docpool/internal/config"
	"github.com/arannis/docpool/internal/healthsrv"
	"github.com/arannis/docpool/internal/metrics"
	"github.com/arannis/docpool/internal/registry"
	"github.com/arannis/docpool/internal/transport"
)

var (
	configPath  = flag.String("config", "configs/targets.yaml", "Path to target configuration file")
	metricsAddr = flag.String("metrics-addr", ":9090", "Address for the Prometheus /metrics endpoint")
	healthAddr  = flag.String("health-addr", ":9091", "Address for the /health endpoints")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[main] starting docpool demo")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] failed to load configuration: %v", err)
	}
	log.Printf("[main] configuration loaded: %d targets", len(cfg.Targets))

	for _, t := range cfg.Targets {
		log.Printf("[main]   target %s -> %s (min=%d, max=%d)", t.Name, t.URI, t.MinSize, t.MaxSize)
		metrics.ConnectionsMax.WithLabelValues(t.Name).Set(float64(t.MaxSize))
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         *metricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[main] metrics server listening on %s/metrics", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[main] metrics server error: %v", err)
		}
	}()

	reg := registry.Default()
	log.Println("[main] initializing connection pools...")
	if err := reg.CreateAll(cfg.Targets, transport.NewWSDialer()); err != nil {
		log.Fatalf("[main] failed to initialize pools: %v", err)
	}
	defer func() {
		log.Println("[main] closing pools...")
		if err := reg.CloseAll(); err != nil {
			log.Printf("[main] pool shutdown error: %v", err)
		}
	}()
	log.Println("[main] pools ready")
	for name, s := range reg.Stats() {
		log.Printf("[main]   pool %s: size=%d in_use=%d", name, s.CurrentSize, s.CurrentInUse)
	}

	checker := healthsrv.NewChecker(reg)
	healthServer := checker.ServeHTTP(context.Background(), *healthAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Println("[main] ready, waiting for shutdown signal...")
	sig := <-sigCh
	log.Printf("[main] received signal %v, shutting down gracefully...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] health server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] metrics server shutdown error: %v", err)
	}

	log.Println("[main] shutdown complete")
}
