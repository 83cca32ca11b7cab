// Package server hosts the UDF handler over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rxtech-lab/tradingview-udf/internal/config"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"go.uber.org/zap"
)

// APIDocsPath serves the route catalogue.
const APIDocsPath = "/api-docs"

// Server serves the UDF routes, /health and /api-docs.
type Server struct {
	config  config.ServerConfig
	logger  *logger.Logger
	handler *udf.Handler
	router  *mux.Router

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New builds a server around provider. It fails when provider is nil or the
// UDF settings are invalid.
func New(cfg config.ServerConfig, provider udf.Provider, log *logger.Logger) (*Server, error) {
	s := &Server{
		config:     cfg,
		logger:     log,
		handler:    nil,
		router:     mux.NewRouter(),
		mu:         sync.Mutex{},
		httpServer: nil,
		listener:   nil,
	}

	handler, err := udf.NewHandler(provider, cfg.UDFSettings(),
		udf.WithLogger(log.Logger),
		udf.WithErrorHandler(s.writeError),
	)
	if err != nil {
		return nil, err
	}

	s.handler = handler

	s.router.Use(requestIDMiddleware, accessLogMiddleware(log))
	s.router.HandleFunc(APIDocsPath, s.handleAPIDocs).Methods(http.MethodGet)
	handler.Register(s.router)

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return HealthCheck{}.Handler(s.router)
}

// Start listens on address and serves in the background. An empty address
// uses the configured one.
func (s *Server) Start(address string) error {
	if address == "" {
		address = s.config.Address
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to listen on %s", address)
	}

	readHeaderTimeout := s.config.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}

	//nolint:exhaustruct // the remaining fields keep net/http defaults
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info("UDF server listening",
		zap.String("address", listener.Addr().String()),
		zap.String("base_path", s.handler.Settings().RoutePrefix()),
	)

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	if httpServer == nil {
		return nil
	}

	s.logger.Info("Shutting down UDF server")

	return httpServer.Shutdown(ctx)
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(""); err != nil {
		return err
	}

	<-ctx.Done()

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.Stop(shutdownCtx)
}

// Address returns the address the server is listening on.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the base URL for the server.
func (s *Server) BaseURL() string {
	return "http://" + s.Address()
}

// handleAPIDocs handles GET /api-docs
func (s *Server) handleAPIDocs(w http.ResponseWriter, _ *http.Request) {
	routes := s.handler.Routes()
	if routes == nil {
		routes = []udf.RouteDoc{}
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(routes); err != nil {
		s.logger.Error("Failed to encode api docs", zap.Error(err))
	}
}

type errorResponse struct {
	Code      errors.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	RequestID string           `json:"request_id,omitempty"`
}

// writeError is the generic error writer for UDF routes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	requestID := RequestID(r.Context())

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", requestID),
		zap.Error(err),
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("UDF request failed", fields...)
	} else {
		s.logger.Warn("UDF request rejected", fields...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := errorResponse{Code: errors.GetCode(err), Message: err.Error(), RequestID: requestID}
	if encodeErr := json.NewEncoder(w).Encode(body); encodeErr != nil {
		s.logger.Error("Failed to encode error response", zap.Error(encodeErr))
	}
}
