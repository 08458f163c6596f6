// Package api exposes the engine to the external dashboard surface as a
// JSON API: lifecycle control, status polling, transaction history and
// the token-management reads/writes. Rendering is the dashboard's
// problem; nothing here emits HTML.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tronsweep/internal/config"
	"tronsweep/internal/engine"
	"tronsweep/internal/pool"
	"tronsweep/internal/storage"
)

// Controller is the engine lifecycle surface the API forwards to.
type Controller interface {
	Start() error
	Stop() error
	Status() engine.Status
}

// SlotReporter exposes the credential pool diagnostics.
type SlotReporter interface {
	Snapshot() []pool.SlotStatus
}

// Server hosts the engine control API.
type Server struct {
	cfg     config.APIConfig
	ctrl    Controller
	ledger  storage.LedgerReader
	assets  storage.AssetStore
	slots   SlotReporter
	logger  zerolog.Logger
	httpSrv *http.Server
}

// NewServer wires the API routes.
func NewServer(cfg config.APIConfig, ctrl Controller, ledger storage.LedgerReader, assets storage.AssetStore, slots SlotReporter, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		ctrl:   ctrl,
		ledger: ledger,
		assets: assets,
		slots:  slots,
		logger: logger.With().Str("component", "api").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.statusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/start", s.startHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/stop", s.stopHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/transactions", s.transactionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/assets", s.listAssetsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/assets/{id:[0-9]+}", s.updateAssetHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/pool", s.poolHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Handler:      r,
		Addr:         cfg.ListenAddr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("api server listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}
