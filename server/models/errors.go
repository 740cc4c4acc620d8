package models

import "github.com/pkg/errors"

var (
	ErrModelNotFound  = errors.New("model not found")
	ErrBattleNotFound = errors.New("battle not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrAlreadyVoted   = errors.New("battle already voted")
	ErrBattleMismatch = errors.New("vote models do not match battle")
	ErrInvalidResult  = errors.New("invalid vote result")
	ErrInvalidModel   = errors.New("invalid model data")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
	ErrUpstream       = errors.New("inference upstream failed")

	// ErrTransient marks serialization failures and connectivity faults.
	// Callers may resubmit; nothing retries internally.
	ErrTransient = errors.New("transient storage failure")
)
