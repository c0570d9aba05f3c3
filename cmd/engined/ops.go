package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/engine"
	"github.com/jthadison/tmt-sub003/internal/logger"
)

// opsServer exposes liveness and metrics endpoints next to the engine.
type opsServer struct {
	httpServer *http.Server
	listener   net.Listener
	log        *logger.Logger
}

func newOpsServer(eng engine.ExecutionEngine, log *logger.Logger) *opsServer {
	return &opsServer{
		httpServer: &http.Server{ //nolint:exhaustruct // default server with handler
			Handler:           opsRouter(eng),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: nil,
		log:      log,
	}
}

// opsRouter builds the operational route table.
func opsRouter(eng engine.ExecutionEngine) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", handleHealthz()).Methods("GET")
	router.HandleFunc("/metrics", handleMetrics(eng)).Methods("GET")

	return router
}

// Start begins serving on the given address.
func (s *opsServer) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create ops listener: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			s.log.Error("ops listener failed", zap.Error(err))
		}
	}()

	s.log.Info("ops listener started", zap.String("address", listener.Addr().String()))

	return nil
}

// Stop shuts the listener down.
func (s *opsServer) Stop() error {
	if s.listener == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// handleHealthz reports process liveness.
func handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// handleMetrics serves the engine's metrics snapshot as JSON.
func handleMetrics(eng engine.ExecutionEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(eng.GetMetrics())
	}
}
