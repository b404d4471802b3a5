package query

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/pkg/metrics"
	"github.com/varikb/varikb/pkg/mid"
)

// Server exposes the query engine over HTTP.
type Server struct {
	service *Service
	log     *slog.Logger
	reg     *metrics.Registry
}

// NewServer creates the HTTP server shell around a query service.
func NewServer(service *Service, log *slog.Logger, reg *metrics.Registry) *Server {
	return &Server{service: service, log: log, reg: reg}
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/statements", s.handleSearch)
	mux.HandleFunc("GET /batch_search/statements", s.handleBatchSearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.reg.Handler())

	return mid.Chain(mux,
		mid.Recover(s.log),
		mid.Logger(s.log),
		mid.CORS("*"),
		mid.OTel("varikb-query"),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// intParam parses an optional integer query parameter. A malformed value is
// a client error, reported as such rather than defaulted.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("parameter " + name + " must be an integer")
	}
	return n, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params := r.URL.Query()

	q := Query{
		Variation:   params.Get("variation"),
		Disease:     params.Get("disease"),
		Therapy:     params.Get("therapy"),
		Gene:        params.Get("gene"),
		StatementID: params.Get("statement_id"),
	}
	var err error
	if q.Start, err = intParam(r, "start"); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if q.Limit, err = intParam(r, "limit"); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := s.service.SearchStatements(r.Context(), q)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}

	s.observe("search", start)
	writeJSON(w, http.StatusOK, searchResponse{Result: result, DurationS: time.Since(start).Seconds()})
}

func (s *Server) handleBatchSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	variations := splitList(r.URL.Query()["variations"])
	pageStart, err := intParam(r, "start")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := s.service.BatchSearchStatements(r.Context(), variations, pageStart, limit)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}

	s.observe("batch_search", start)
	writeJSON(w, http.StatusOK, batchResponse{BatchResult: result, DurationS: time.Since(start).Seconds()})
}

func (s *Server) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery), errors.Is(err, domain.ErrInvalidPagination):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) observe(op string, start time.Time) {
	s.reg.Counter(metrics.WithLabels("query_requests_total", "op", op), "Search requests served").Inc()
	s.reg.Histogram(metrics.WithLabels("query_duration_seconds", "op", op), "Search request duration", nil).Since(start)
}

// splitList flattens repeated and comma-separated parameter values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type searchResponse struct {
	*Result
	DurationS float64 `json:"duration_s"`
}

type batchResponse struct {
	*BatchResult
	DurationS float64 `json:"duration_s"`
}
