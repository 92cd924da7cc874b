package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	votingengine "ideajar/contexts/group-decision/voting-engine"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	votinghttp "ideajar/contexts/group-decision/voting-engine/transport/http"
	"ideajar/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T) (*Server, votingengine.Module) {
	t.Helper()
	module := votingengine.NewInMemoryModule(nil)
	module.Store.SetMember("jar-1", "admin", entities.RoleAdmin)
	module.Store.SetMember("jar-1", "ann", entities.RoleMember)
	module.Store.SetMember("jar-1", "ben", entities.RoleMember)
	module.Store.SetIdea(entities.Idea{IdeaID: "bowling", GroupID: "jar-1", AuthorID: "carol"})
	module.Store.SetIdea(entities.Idea{IdeaID: "picnic", GroupID: "jar-1", AuthorID: "dave"})

	registry := prometheus.NewRegistry()
	voting := metrics.NewVotingMetrics()
	if err := voting.Register(registry); err != nil {
		t.Fatalf("register metrics: %v", err)
	}
	voting.BallotCast()
	return New(module, registry, nil, ":0"), module
}

func doJSON(t *testing.T, server *Server, method string, path string, userID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
	return out
}

func TestVotingRoutesRequireUser(t *testing.T) {
	server, _ := newTestServer(t)
	rr := doJSON(t, server, http.MethodGet, "/v1/groups/jar-1/votes/status", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[votinghttp.ErrorResponse](t, rr); got.Code != "missing_user" {
		t.Fatalf("expected missing_user, got %+v", got)
	}
}

func TestVotingFlowOverHTTP(t *testing.T) {
	server, module := newTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes", "admin", `{"tie_breaker_mode":"re_vote"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	session := decode[votinghttp.SessionResponse](t, rr)
	if session.Status != "active" || len(session.CandidateIDs) != 2 {
		t.Fatalf("unexpected session %+v", session)
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes", "ann", `{}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a second session, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/ballots", "ann", `{"candidate_id":"missing"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}

	for _, voter := range []string{"admin", "ann"} {
		rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/ballots", voter, `{"candidate_id":"picnic"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("cast by %s: expected 200, got %d body=%s", voter, rr.Code, rr.Body.String())
		}
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/groups/jar-1/votes/status", "admin", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	status := decode[votinghttp.VoteStatusResponse](t, rr)
	if !status.Active || status.VotesCast != 2 || len(status.PendingVoters) != 1 || status.PendingVoters[0] != "ben" {
		t.Fatalf("unexpected status %+v", status)
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/ballots", "ben", `{"candidate_id":"bowling"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	cast := decode[votinghttp.CastVoteResponse](t, rr)
	if cast.Outcome == nil || cast.Outcome.Kind != "winner" || cast.Outcome.Session.WinnerID != "picnic" {
		t.Fatalf("expected picnic to win, got %+v", cast.Outcome)
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/resolve", "admin", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if outcome := decode[votinghttp.OutcomeResponse](t, rr); outcome.Kind != "no_change" {
		t.Fatalf("expected no_change on a resolved session, got %+v", outcome)
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/groups/jar-1/votes/"+session.SessionID+"/audit", "admin", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if audit := decode[votinghttp.SessionAuditResponse](t, rr); len(audit.Ballots) != 3 {
		t.Fatalf("expected 3 audited ballots, got %d", len(audit.Ballots))
	}
	rr = doJSON(t, server, http.MethodGet, "/v1/groups/jar-1/votes/"+session.SessionID+"/audit", "ann", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a member audit, got %d", rr.Code)
	}

	// No hand-off consumer runs behind the server, so the winner stays in the jar.
	if module.Store.IsSelected("picnic") {
		t.Fatalf("expected selection to wait for the hand-off worker")
	}
}

func TestVetoAndGrantRoutes(t *testing.T) {
	server, _ := newTestServer(t)
	doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes", "admin", "")

	rr := doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/vetoes", "ann", `{"candidate_id":"picnic"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without cards, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[votinghttp.ErrorResponse](t, rr); got.Code != "no_vetoes_remaining" {
		t.Fatalf("expected no_vetoes_remaining, got %+v", got)
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/vetoes/grants", "ann", `{"member_id":"ann","count":1}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a member grant, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/vetoes/grants", "admin", `{"member_id":"ann","count":1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/vetoes", "ann", `{"candidate_id":"picnic"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	veto := decode[votinghttp.VetoIdeaResponse](t, rr)
	if veto.Outcome == nil || veto.Outcome.Kind != "winner" || veto.Outcome.Session.ResolutionMethod != "last_candidate" {
		t.Fatalf("expected bowling to win as the last candidate, got %+v", veto.Outcome)
	}
}

func TestCancelAndExtendRoutes(t *testing.T) {
	server, _ := newTestServer(t)
	rr := doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/cancel", "admin", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a session, got %d body=%s", rr.Code, rr.Body.String())
	}

	doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes", "admin", `{"time_limit_minutes":10}`)
	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/extend", "admin", `{"delta_minutes":5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	extended := decode[votinghttp.ExtendVoteResponse](t, rr)
	if extended.Session.EndsAt == nil {
		t.Fatalf("expected a deadline after extend")
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/extend", "admin", `{"delta_minutes":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/groups/jar-1/votes/cancel", "admin", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if cancelled := decode[votinghttp.SessionResponse](t, rr); cancelled.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
}

func TestStartVoteReplayReturnsOK(t *testing.T) {
	server, _ := newTestServer(t)
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/groups/jar-1/votes", strings.NewReader(`{}`))
		req.Header.Set("X-User-Id", "admin")
		req.Header.Set("Idempotency-Key", "idem-start-1")
		rr := httptest.NewRecorder()
		server.mux.ServeHTTP(rr, req)
		return rr
	}
	if rr := send(); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr := send()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d body=%s", rr.Code, rr.Body.String())
	}
	if replay := decode[votinghttp.SessionResponse](t, rr); !replay.Replayed {
		t.Fatalf("expected replayed flag")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	rr := doJSON(t, server, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "ideajar_voting_ballots_cast_total 1") {
		t.Fatalf("expected ballot counter in exposition, got %s", rr.Body.String())
	}
}
