// Package api exposes the query service over HTTP and the stream over a
// websocket.
package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"market_pulse/internal/service"
	"market_pulse/internal/stream"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options wires the server to its collaborators.
type Options struct {
	Addr        string
	CORSOrigins []string
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	query    *service.Query
	registry *stream.Registry
	gatherer prometheus.Gatherer
	origins  []string
	logger   *slog.Logger

	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
}

// NewServer builds the router. It does not listen until Start.
func NewServer(q *service.Query, reg *stream.Registry, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{
		query:    q,
		registry: reg,
		gatherer: opts.Gatherer,
		origins:  opts.CORSOrigins,
		logger:   opts.Logger.With(slog.String("module", "api")),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(s.loggingMiddleware)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	apiRouter.HandleFunc("/stocks/{symbol}", s.handleStocks).Methods(http.MethodGet)
	apiRouter.HandleFunc("/crypto/{symbol}", s.handleCrypto).Methods(http.MethodGet)
	// pairs may arrive as EUR/USD, so the variable spans slashes
	apiRouter.HandleFunc("/forex/{pair:.+}", s.handleForex).Methods(http.MethodGet)
	apiRouter.HandleFunc("/economic-indicators", s.handleEconomicIndicators).Methods(http.MethodGet)
	apiRouter.HandleFunc("/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	apiRouter.HandleFunc("/market-overview", s.handleMarketOverview).Methods(http.MethodGet)
	apiRouter.HandleFunc("/available-assets", s.handleAvailableAssets).Methods(http.MethodGet)
	apiRouter.HandleFunc("/realtime/price/{symbol}", s.handleRealtimePrice).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	})

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError)),
	)
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	s.handler = cors(recovery(s.router))
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("🌐 HTTP server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Debug("HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote", r.RemoteAddr),
		)
	})
}

// statusRecorder captures the status code and still allows the websocket
// upgrade to hijack the connection.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
