package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/framepipe/types"
)

// metricsServer serves a Prometheus registry over HTTP.
type metricsServer struct {
	server   *http.Server
	listener net.Listener
	logger   types.Logger
}

// startMetricsServer listens on addr and serves /metrics and /health until shutdown.
//
// Parameters:
//   - addr: Address to listen on (e.g., ":9090")
//   - gatherer: Registry to expose
//   - logger: Logger for serve errors
//
// Returns:
//   - *metricsServer: Running server
//   - error: Listen failure
func startMetricsServer(addr string, gatherer prometheus.Gatherer, logger types.Logger) (*metricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK\n")
	})

	ln, err := net.Listen("tcp", addr) //nolint:noctx // listener outlives the command context
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &metricsServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics server listening", "addr", ln.Addr().String())

	return s, nil
}

// Addr returns the bound address.
func (s *metricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *metricsServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
