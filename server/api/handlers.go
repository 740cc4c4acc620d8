package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"llm-arena/server/metrics"
	"llm-arena/server/models"
	"llm-arena/server/rating"
	"llm-arena/server/session"
)

func wrapInvalid(err error) error {
	return errors.Wrapf(models.ErrInvalidRequest, "malformed body: %v", err)
}

// identity returns the caller's identity or writes a 401.
func identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	ident, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, r, errors.Wrap(models.ErrUnauthorized, "no session"))
	}
	return ident, ok
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.catalog.All()})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.SessionResponse{Identity: ident})
}

// createSession returns the caller's identity, provisioning an anonymous
// user when the request carries no valid session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	if ident, ok := session.FromContext(r.Context()); ok {
		writeJSON(w, http.StatusOK, models.SessionResponse{Identity: ident})
		return
	}
	issued, err := s.sessions.Anonymous(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.sessions.SetCookie(w, issued)
	writeJSON(w, http.StatusCreated, models.SessionResponse{
		Identity:  issued.Identity,
		Token:     issued.Token,
		ExpiresAt: &issued.Expires,
	})
}

// deleteSession revokes the presented token and clears the cookie.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Revoke(r.Context(), session.TokenFromRequest(r)); err != nil {
		writeError(w, r, err)
		return
	}
	s.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// link is called by the identity provider after an anonymous visitor signs in.
func (s *Server) link(w http.ResponseWriter, r *http.Request) {
	if s.cfg.LinkSecret == "" {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "account linking is disabled"})
		return
	}
	if !session.SecretsEqual(session.BearerToken(r), s.cfg.LinkSecret) {
		writeError(w, r, errors.Wrap(models.ErrUnauthorized, "bad link secret"))
		return
	}
	var req models.LinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	moved, err := s.sessions.Link(r.Context(), req.AnonymousUserID, req.UserID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.LinkResponse{UserID: req.UserID, BattlesMoved: moved})
}

func (s *Server) battle(w http.ResponseWriter, r *http.Request) {
	var req models.BattleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	resp, err := s.battles.Submit(r.Context(), req)
	if err != nil {
		_, tag := statusOf(err)
		metrics.ObserveBattle(tag, time.Since(start))
		writeError(w, r, err)
		return
	}
	metrics.ObserveBattle("ok", time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		metrics.ObserveVote("unknown", "rejected", false)
		return
	}
	var req models.VoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		metrics.ObserveVote("unknown", "rejected", false)
		writeError(w, r, err)
		return
	}
	outcome := "unknown"
	if req.Result.Valid() {
		outcome = string(req.Result.Outcome())
	}
	receipt, err := s.votes.Cast(r.Context(), ident.UserID, req)
	if err != nil {
		status := "rejected"
		if code, _ := statusOf(err); code >= http.StatusInternalServerError {
			status = "error"
		}
		metrics.ObserveVote(outcome, status, false)
		writeError(w, r, err)
		return
	}
	metrics.ObserveVote(outcome, "ok", receipt.PersonalUpdated)
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	s.writeBoard(w, r, "")
}

func (s *Server) personalLeaderboard(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	s.writeBoard(w, r, ident.UserID)
}

func (s *Server) writeBoard(w http.ResponseWriter, r *http.Request, owner string) {
	ms, err := s.boards.Leaderboard(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rating.Rows(ms)})
}

func (s *Server) listBattles(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	bs, err := s.boards.ListBattles(r.Context(), ident.UserID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": bs})
}

func (s *Server) eloHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("model_id"))
	if id == "" {
		writeError(w, r, errors.Wrap(models.ErrInvalidRequest, "model_id is required"))
		return
	}
	if !s.catalog.Contains(id) {
		writeError(w, r, errors.Wrapf(models.ErrModelNotFound, "%q", id))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	points, err := s.boards.RatingHistory(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"model_id": id, "rows": points})
}
