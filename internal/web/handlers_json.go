package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/crypto_market_table/internal/domain"
	"github.com/vitos/crypto_market_table/internal/usecase"
	"go.uber.org/zap"
)

const (
	defaultRefreshLimit = 50
	maxRefreshLimit     = 500
)

type statusResponse struct {
	Scheduler usecase.RefreshStats `json:"scheduler"`
	Version   uint64               `json:"version"`
	Rows      int                  `json:"rows"`
	Sort      domain.SortSpec      `json:"sort"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// pinger is implemented by journals backed by a database connection.
type pinger interface {
	Ping(ctx context.Context) error
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.view.Current())
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, domain.Columns)
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	col, err := domain.ParseColumn(r.PathValue("column"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.observer.ObserveSort(col)
	ds, err := s.view.RequestSort(col)
	if err != nil {
		s.logger.Error("Failed to sort", zap.String("column", string(col)), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to sort"})
		return
	}
	s.writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ds := s.view.Current()
	s.writeJSON(w, http.StatusOK, statusResponse{
		Scheduler: s.scheduler.Stats(),
		Version:   ds.Version,
		Rows:      len(ds.Rows),
		Sort:      ds.Sort,
		UpdatedAt: ds.UpdatedAt,
	})
}

func (s *Server) handleRefreshes(w http.ResponseWriter, r *http.Request) {
	limit := defaultRefreshLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRefreshLimit)
	}

	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, []*domain.RefreshRecord{})
		return
	}

	recs, err := s.journal.ListRefreshes(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list refreshes", zap.Error(err))
		http.Error(w, "Failed to list refreshes", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*domain.RefreshRecord{}
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleRefreshNow(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.FetchNow(r.Context()); err != nil {
		if errors.Is(err, usecase.ErrSchedulerStopped) {
			s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		status := http.StatusBadGateway
		var fe *domain.FetchError
		if errors.As(err, &fe) && fe.StatusCode == http.StatusTooManyRequests {
			status = http.StatusTooManyRequests
		}
		s.writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, s.view.Current())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.journal.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Error("Journal ping failed", zap.Error(err))
			http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
