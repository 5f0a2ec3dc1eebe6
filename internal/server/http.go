package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CrediLedger/internal/ingestion"
	"CrediLedger/internal/observability"
	"CrediLedger/internal/query"
)

// Server exposes the query and ingest APIs over HTTP/JSON. Queries read
// from the projection tables; writes are parsed and queued for the
// deterministic core.
type Server struct {
	queryService  *query.QueryService
	ingestService *ingestion.IngestService
	health        *observability.HealthChecker
	metrics       *observability.Metrics
	logger        zerolog.Logger
	httpServer    *http.Server
}

func NewServer(
	addr string,
	queryService *query.QueryService,
	ingestService *ingestion.IngestService,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		queryService:  queryService,
		ingestService: ingestService,
		health:        health,
		metrics:       metrics,
		logger:        observability.NewLogger("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/accounts/{accountID}/balance", s.handleGetBalance)
		r.Get("/accounts/{accountID}/stake-usage", s.handleGetStakeUsage)
		r.Get("/accounts/{accountID}/loans", s.handleGetLoanHistory)
		r.Get("/accounts/{accountID}/journal", s.handleGetJournalHistory)
		r.Get("/loans/{receivableID}", s.handleGetLoan)
		r.Get("/pool/stats", s.handleGetPoolStats)
		r.Get("/pool/losses", s.handleGetLossEvents)

		r.Post("/ops/{opType}", s.handleSubmitOp)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/integrity", s.handleVerifyIntegrity)
			r.Post("/liquidate", s.handleInjectLiquidation)
		})
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// ListenAndServe blocks until the server exits.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.metrics != nil {
			endpoint := chi.RouteContext(r.Context()).RoutePattern()
			s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(ww.Status())).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	})
}

// --- query handlers ---

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	resp, err := s.queryService.GetBalance(r.Context(), accountID)
	if err != nil {
		s.queryFailed(w, "get balance", err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStakeUsage(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	resp, err := s.queryService.GetStakeUsage(r.Context(), accountID)
	if err != nil {
		s.queryFailed(w, "get stake usage", err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPoolStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.queryService.GetPoolStats(r.Context())
	if err != nil {
		s.queryFailed(w, "get pool stats", err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetLoanHistory(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	limit, after := paginationParams(r)
	resp, err := s.queryService.GetLoanHistory(r.Context(), accountID, limit, after)
	if err != nil {
		s.queryFailed(w, "get loan history", err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	receivableID, err := uuid.Parse(chi.URLParam(r, "receivableID"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid receivable id")
		return
	}

	resp, err := s.queryService.GetLoan(r.Context(), receivableID)
	if err != nil {
		s.queryFailed(w, "get loan", err)
		return
	}
	if len(resp) == 0 {
		s.writeError(w, http.StatusNotFound, "loan not found")
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetLossEvents(w http.ResponseWriter, r *http.Request) {
	limit, after := paginationParams(r)
	resp, err := s.queryService.GetLossEvents(r.Context(), limit, after)
	if err != nil {
		s.queryFailed(w, "get loss events", err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJournalHistory(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	limit, after := paginationParams(r)
	resp, err := s.queryService.GetJournalHistory(r.Context(), accountID, limit, after)
	if err != nil {
		s.queryFailed(w, "get journal history", err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queryService.VerifyIntegrity(r.Context())
	if err != nil {
		s.queryFailed(w, "verify integrity", err)
		return
	}

	status := http.StatusOK
	if !report.IsHealthy {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, report)
}

// --- ingest handlers ---

// handleSubmitOp accepts a JSON operation payload for any known op type and
// queues it for the core. Returns 202: application is asynchronous and the
// result lands in the operation log.
func (s *Server) handleSubmitOp(w http.ResponseWriter, r *http.Request) {
	opType := chi.URLParam(r, "opType")

	body := http.MaxBytesReader(w, r.Body, 1<<20)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "body too large or unreadable")
		return
	}

	parsed, err := ingestion.ParseRawOp(ingestion.RawOp{Data: data}, opType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.ingestService.Submit(r.Context(), parsed); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "core unavailable")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":          "accepted",
		"idempotency_key": parsed.IdempotencyKey(),
	})
}

type liquidateRequest struct {
	InvoiceID string `json:"invoice_id"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleInjectLiquidation(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	if err := s.ingestService.InjectLiquidation(r.Context(), invoiceID, req.Timestamp); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// --- helpers ---

func paginationParams(r *http.Request) (int, *int64) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var after *int64
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			after = &n
		}
	}

	return limit, after
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) queryFailed(w http.ResponseWriter, what string, err error) {
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(what, "internal").Inc()
	}
	s.logger.Error().Err(err).Msg(what + " failed")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
