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

	votingengine "ideajar/contexts/group-decision/voting-engine"
	votingerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	votinghttp "ideajar/contexts/group-decision/voting-engine/transport/http"
	_ "ideajar/internal/platform/httpserver/docs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux      *http.ServeMux
	http     *http.Server
	logger   *slog.Logger
	addr     string
	voting   votingengine.Module
	gatherer prometheus.Gatherer
}

// New builds the API server. A nil gatherer serves the default registry on
// /metrics.
func New(
	voting votingengine.Module,
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
		voting:   voting,
		gatherer: gatherer,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.mux.HandleFunc("POST /v1/groups/{group_id}/votes", s.handleStartVote)
	s.mux.HandleFunc("POST /v1/groups/{group_id}/votes/ballots", s.handleCastVote)
	s.mux.HandleFunc("POST /v1/groups/{group_id}/votes/vetoes", s.handleVetoIdea)
	s.mux.HandleFunc("POST /v1/groups/{group_id}/votes/resolve", s.handleResolveVote)
	s.mux.HandleFunc("POST /v1/groups/{group_id}/votes/cancel", s.handleCancelVote)
	s.mux.HandleFunc("POST /v1/groups/{group_id}/votes/extend", s.handleExtendVote)
	s.mux.HandleFunc("GET /v1/groups/{group_id}/votes/status", s.handleVoteStatus)
	s.mux.HandleFunc("GET /v1/groups/{group_id}/votes/{session_id}/audit", s.handleSessionAudit)
	s.mux.HandleFunc("POST /v1/groups/{group_id}/vetoes/grants", s.handleGrantVetoes)
}

// handleStartVote godoc
// @Summary Start a vote for a group
// @Tags votes
// @Param group_id path string true "group id"
// @Param X-User-Id header string true "caller"
// @Param Idempotency-Key header string false "replay key"
// @Success 201 {object} votinghttp.SessionResponse
// @Router /v1/groups/{group_id}/votes [post]
func (s *Server) handleStartVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req votinghttp.StartVoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.StartVoteHandler(
		r.Context(),
		r.PathValue("group_id"),
		userID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req votinghttp.CastVoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.CastVoteHandler(
		r.Context(),
		r.PathValue("group_id"),
		userID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVetoIdea(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req votinghttp.VetoIdeaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.VetoIdeaHandler(
		r.Context(),
		r.PathValue("group_id"),
		userID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResolveVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.ResolveVoteHandler(r.Context(), r.PathValue("group_id"), userID)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.CancelVoteHandler(r.Context(), r.PathValue("group_id"), userID)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExtendVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req votinghttp.ExtendVoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.ExtendVoteHandler(r.Context(), r.PathValue("group_id"), userID, req)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVoteStatus godoc
// @Summary Current vote status for the caller
// @Tags votes
// @Param group_id path string true "group id"
// @Param X-User-Id header string true "caller"
// @Success 200 {object} votinghttp.VoteStatusResponse
// @Router /v1/groups/{group_id}/votes/status [get]
func (s *Server) handleVoteStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.VoteStatusHandler(r.Context(), r.PathValue("group_id"), userID)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessionAudit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.SessionAuditHandler(
		r.Context(),
		r.PathValue("group_id"),
		userID,
		r.PathValue("session_id"),
	)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGrantVetoes(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req votinghttp.GrantVetoesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.GrantVetoesHandler(r.Context(), r.PathValue("group_id"), userID, req)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeVotingDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, votingerrors.ErrInvalidInput):
		writeVotingError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, votingerrors.ErrSessionNotFound):
		writeVotingError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, votingerrors.ErrNotMember):
		writeVotingError(w, http.StatusForbidden, "not_member", err.Error())
	case errors.Is(err, votingerrors.ErrForbidden):
		writeVotingError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, votingerrors.ErrVoteAlreadyActive):
		writeVotingError(w, http.StatusConflict, "vote_already_active", err.Error())
	case errors.Is(err, votingerrors.ErrIdempotencyConflict):
		writeVotingError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, votingerrors.ErrConflict):
		writeVotingError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, votingerrors.ErrInsufficientCandidates):
		writeVotingError(w, http.StatusUnprocessableEntity, "insufficient_candidates", err.Error())
	case errors.Is(err, votingerrors.ErrSessionNotActive):
		writeVotingError(w, http.StatusUnprocessableEntity, "session_not_active", err.Error())
	case errors.Is(err, votingerrors.ErrAlreadyResolved):
		writeVotingError(w, http.StatusUnprocessableEntity, "already_resolved", err.Error())
	case errors.Is(err, votingerrors.ErrVotingClosed):
		writeVotingError(w, http.StatusUnprocessableEntity, "voting_closed", err.Error())
	case errors.Is(err, votingerrors.ErrNotEligible):
		writeVotingError(w, http.StatusUnprocessableEntity, "not_eligible", err.Error())
	case errors.Is(err, votingerrors.ErrCandidateNotInRound):
		writeVotingError(w, http.StatusUnprocessableEntity, "candidate_not_in_round", err.Error())
	case errors.Is(err, votingerrors.ErrNotInCurrentRound):
		writeVotingError(w, http.StatusUnprocessableEntity, "not_in_current_round", err.Error())
	case errors.Is(err, votingerrors.ErrNoVotesCast):
		writeVotingError(w, http.StatusUnprocessableEntity, "no_votes_cast", err.Error())
	case errors.Is(err, votingerrors.ErrNoVetoesRemaining):
		writeVotingError(w, http.StatusUnprocessableEntity, "no_vetoes_remaining", err.Error())
	default:
		s.logger.Error("voting request failed",
			"event", "http_voting_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeVotingError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeVotingError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}

// decodeBody accepts an empty body as the zero request.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func writeVotingError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, votinghttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
