package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/crypto_market_table/internal/domain"
	"github.com/vitos/crypto_market_table/internal/usecase"
	"go.uber.org/zap"
)

// Observer is notified about rendering-layer activity.
type Observer interface {
	ObserveSort(col domain.Column)
	ObserveConnections(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveSort(domain.Column) {}
func (nopObserver) ObserveConnections(int)    {}

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	view      *usecase.DatasetView
	scheduler *usecase.RefreshScheduler
	journal   domain.RefreshJournal
	hub       *Hub
	observer  Observer
	metrics   http.Handler
	logger    *zap.Logger
}

// NewServer wires the JSON API and the websocket feed. journal, observer and
// metrics may be nil.
func NewServer(
	port int,
	view *usecase.DatasetView,
	scheduler *usecase.RefreshScheduler,
	journal domain.RefreshJournal,
	hub *Hub,
	observer Observer,
	metrics http.Handler,
	logger *zap.Logger,
) *Server {
	if observer == nil {
		observer = nopObserver{}
	}
	s := &Server{
		router:    http.NewServeMux(),
		view:      view,
		scheduler: scheduler,
		journal:   journal,
		hub:       hub,
		observer:  observer,
		metrics:   metrics,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Table
	s.router.HandleFunc("GET /api/coins", s.handleCoins)
	s.router.HandleFunc("GET /api/columns", s.handleColumns)
	s.router.HandleFunc("POST /api/sort/{column}", s.handleSort)

	// Refresh cycles
	s.router.HandleFunc("GET /api/status", s.handleStatus)
	s.router.HandleFunc("GET /api/refreshes", s.handleRefreshes)
	s.router.HandleFunc("POST /api/refresh", s.handleRefreshNow)

	// Live feed
	s.router.HandleFunc("GET /ws", s.handleWS)

	s.router.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return withCORS(s.router)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
