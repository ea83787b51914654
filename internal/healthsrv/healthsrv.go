// Package healthsrv exposes liveness and readiness HTTP endpoints backed by
// a registry.Registry's pool stats.
package healthsrv

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/arannis/docpool/internal/registry"
)

// Status is the health verdict for one component or the report overall.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// PoolHealth is one pool's contribution to a Report.
type PoolHealth struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Size   int    `json:"size"`
	InUse  int    `json:"in_use"`
	Queued int    `json:"queued"`
}

// Report is the overall health document served at /health and /health/ready.
type Report struct {
	Status    Status       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Pools     []PoolHealth `json:"pools"`
}

// Checker produces Reports from a Registry's current pool set. An empty
// registry (no pools configured) reports healthy.
type Checker struct {
	reg *registry.Registry
}

// NewChecker returns a Checker over reg.
func NewChecker(reg *registry.Registry) *Checker {
	return &Checker{reg: reg}
}

// Check snapshots every registered pool's stats and reports the process
// unhealthy if any pool is at zero idle capacity with a non-empty queue at
// the moment of the snapshot.
func (c *Checker) Check() *Report {
	stats := c.reg.Stats()

	report := &Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Pools:     make([]PoolHealth, 0, len(stats)),
	}

	for name, s := range stats {
		status := StatusHealthy
		if s.CurrentWaiters > 0 && s.CurrentInUse >= s.CurrentSize {
			status = StatusUnhealthy
		}

		report.Pools = append(report.Pools, PoolHealth{
			Name:   name,
			Status: status,
			Size:   s.CurrentSize,
			InUse:  s.CurrentInUse,
			Queued: s.CurrentWaiters,
		})

		if status == StatusUnhealthy {
			report.Status = StatusUnhealthy
		}
	}

	return report
}

// ServeHTTP starts the health HTTP server on addr in a background goroutine
// and returns it so the caller can shut it down gracefully.
func (c *Checker) ServeHTTP(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()

	writeReport := func(w http.ResponseWriter, report *Report) {
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, c.Check())
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, c.Check())
	})

	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("[health] HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[health] HTTP server error: %v", err)
		}
	}()

	return server
}
