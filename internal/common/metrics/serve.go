package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Handler returns an http.Handler serving GET /metrics from the given gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

// ServeMetrics exposes the gatherer on the given port in the background and returns a function that shuts the
// server down. Port 0 disables the server and returns a no-op.
func ServeMetrics(port uint16, gatherer prometheus.Gatherer) func() {
	if port == 0 {
		return func() {}
	}
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: Handler(gatherer),
	}
	go func() {
		log.Infof("Serving metrics on port %d", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Failed to shut down metrics server cleanly")
		}
	}
}
