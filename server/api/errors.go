package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"llm-arena/server/models"
)

type errorStatus struct {
	err  error
	code int
	tag  string
}

// statusTable maps sentinel errors to HTTP responses. First match wins.
var statusTable = []errorStatus{
	{models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{models.ErrModelNotFound, http.StatusNotFound, "model_not_found"},
	{models.ErrBattleNotFound, http.StatusNotFound, "battle_not_found"},
	{models.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{models.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{models.ErrBattleMismatch, http.StatusBadRequest, "battle_mismatch"},
	{models.ErrInvalidResult, http.StatusBadRequest, "invalid_result"},
	{models.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{models.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{models.ErrUpstream, http.StatusBadGateway, "upstream_error"},
	{models.ErrTransient, http.StatusServiceUnavailable, "temporarily_unavailable"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

func statusOf(err error) (int, string) {
	for _, s := range statusTable {
		if errors.Is(err, s.err) {
			return s.code, s.tag
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError reports err to the client. Server-side failures are logged and
// their details withheld.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, tag := statusOf(err)
	resp := models.ErrorResponse{Error: tag}
	if code < http.StatusInternalServerError {
		resp.Message = err.Error()
	} else {
		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
			"status":     code,
		}).WithError(err).Error("request failed")
		resp.Message = "Something went wrong. Please try again."
	}
	writeJSON(w, code, resp)
}
