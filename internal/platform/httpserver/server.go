package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	abtestengine "newsfinder/contexts/experimentation/abtest-engine"
	abtesterrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	abtesthttp "newsfinder/contexts/experimentation/abtest-engine/transport/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	_ "newsfinder/internal/platform/httpserver/docs"
)

const maxBodyBytes = 1 << 16

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	abtest   abtestengine.Module
	gatherer prometheus.Gatherer
}

func New(
	abtest abtestengine.Module,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		abtest:   abtest,
		gatherer: gatherer,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down",
			"event", "http_server_stopping",
			"module", "internal/platform/httpserver",
			"layer", "platform",
		)
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("GET /v1/abtest/campaigns", s.handleListCampaigns)
	s.mux.HandleFunc("POST /v1/abtest/campaigns/{campaign_id}/assignments", s.handleAssign)
	s.mux.HandleFunc("GET /v1/abtest/campaigns/{campaign_id}/assignments/{user_id}", s.handleGetAssignment)
	s.mux.HandleFunc("POST /v1/abtest/campaigns/{campaign_id}/outcomes", s.handleRecordOutcome)
	s.mux.HandleFunc("GET /v1/abtest/campaigns/{campaign_id}/estimate", s.handleEstimate)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.abtest.Handler.ListCampaignsHandler(r.Context()))
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req abtesthttp.AssignRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = r.Header.Get("X-User-Id")
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeAbtestError(w, http.StatusBadRequest, "missing_user", "user_id or X-User-Id header is required")
		return
	}

	resp, err := s.abtest.Handler.AssignHandler(r.Context(), r.PathValue("campaign_id"), req)
	if err != nil {
		writeAbtestDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	resp, err := s.abtest.Handler.GetAssignmentHandler(r.Context(), r.PathValue("campaign_id"), r.PathValue("user_id"))
	if err != nil {
		if errors.Is(err, abtesterrors.ErrNoAssignment) {
			writeAbtestError(w, http.StatusNotFound, "assignment_not_found", err.Error())
			return
		}
		writeAbtestDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req abtesthttp.RecordOutcomeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAbtestError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = r.Header.Get("X-User-Id")
	}

	resp, err := s.abtest.Handler.RecordOutcomeHandler(
		r.Context(),
		r.PathValue("campaign_id"),
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeAbtestDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	resp, err := s.abtest.Handler.EstimateHandler(r.Context(), r.PathValue("campaign_id"))
	if err != nil {
		writeAbtestDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeOptionalBody accepts an empty body. It writes the 400 itself and
// reports false when the body is present but malformed.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(target)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeAbtestError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
	return false
}

func writeAbtestDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, abtesterrors.ErrUnknownCampaign):
		writeAbtestError(w, http.StatusNotFound, "campaign_not_found", err.Error())
	case errors.Is(err, abtesterrors.ErrUnknownVariant):
		writeAbtestError(w, http.StatusNotFound, "variant_not_found", err.Error())
	case errors.Is(err, abtesterrors.ErrNoAssignment):
		writeAbtestError(w, http.StatusConflict, "no_assignment", err.Error())
	case errors.Is(err, abtesterrors.ErrAlreadyAssigned),
		errors.Is(err, abtesterrors.ErrConflict):
		writeAbtestError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, abtesterrors.ErrUnsupportedVariantCount):
		writeAbtestError(w, http.StatusUnprocessableEntity, "unsupported_variant_count", err.Error())
	case errors.Is(err, abtesterrors.ErrInvalidInput),
		errors.Is(err, abtesterrors.ErrInvalidPrior):
		writeAbtestError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeAbtestError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeAbtestError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, abtesthttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
