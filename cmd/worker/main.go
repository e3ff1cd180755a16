// Package main is the entry point for a standalone background-task worker
// process. It exposes /healthz and /metrics on a dedicated port, the same
// framing as the teacher's cmd/worker/main.go, but registers handlers
// against workerrt/pool.Pool instead of the teacher's single-handler
// worker.Worker.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskengine/backgroundtask/observability/metrics"
	"github.com/taskengine/backgroundtask/registry"
	"github.com/taskengine/backgroundtask/workerrt/pool"
)

func main() {
	workerID := getEnv("WORKER_ID", "worker-1")
	metricsPort := getEnv("METRICS_PORT", "9091")

	// Register Prometheus metrics for this worker process. The Collector is
	// not stored because promauto registers all metrics with the default
	// registry on construction; the /metrics handler serves them
	// automatically.
	_ = metrics.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","service":"background-task-worker"}`))
	})

	runtime := pool.New(0)
	reg := registry.New(nil)
	registerDemoHandlers(runtime, reg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{Addr: ":" + metricsPort, Handler: mux}
	go func() {
		log.Printf("worker %s metrics server listening on :%s", workerID, metricsPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("worker %s ready (no connector wired in standalone mode)", workerID)
	<-ctx.Done()
	_ = srv.Shutdown(context.Background())
	log.Printf("worker %s stopped", workerID)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
