package telemetry

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantfold/tip/errs"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

// NewMetricsServer builds the HTTP server exposing the Prometheus pull
// endpoint at /metrics and a liveness probe at /healthz.
func NewMetricsServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}
}

// ServeMetrics runs the metrics endpoint until ctx is cancelled, then drains
// in-flight scrapes before returning.
func ServeMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *log.Logger) error {
	if registry == nil {
		return errs.New("telemetry", errs.CodeConfig,
			errs.WithMessage("metrics endpoint requires an active telemetry provider"))
	}

	server := NewMetricsServer(addr, registry)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && logger != nil {
			logger.Printf("metrics server shutdown: %v", err)
		}
	}()

	if logger != nil {
		logger.Printf("metrics endpoint listening on %s", addr)
	}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
