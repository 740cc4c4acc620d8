package models

import "time"

// Request types

type VoteRequest struct {
	BattleID int64  `json:"battleId"`
	Result   Result `json:"result"`
	Model1   string `json:"model1"`
	Model2   string `json:"model2"`
}

type BattleRequest struct {
	Model1   string `json:"model1"`
	Model2   string `json:"model2"`
	Question string `json:"question"`
}

// LinkRequest is sent by the identity provider when an anonymous user signs in.
type LinkRequest struct {
	AnonymousUserID string `json:"anonymousUserId"`
	UserID          string `json:"userId"`
	Name            string `json:"name"`
}

// Response types

type BattleResponse struct {
	Response1 string `json:"response1"`
	Response2 string `json:"response2"`
	BattleID  int64  `json:"battleId"`
}

// Standing is a model's record right after a vote was applied.
type Standing struct {
	ModelID  string  `json:"id"`
	Name     string  `json:"name"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Draws    int     `json:"draws"`
	Invalid  int     `json:"invalid"`
	Elo      float64 `json:"elo"`
	EloDelta float64 `json:"eloDelta"`
}

type VoteReceipt struct {
	BattleID        int64      `json:"battleId"`
	Outcome         Outcome    `json:"outcome"`
	Global          []Standing `json:"global"`
	Personal        []Standing `json:"personal,omitempty"`
	PersonalUpdated bool       `json:"personalUpdated"`
}

type LeaderboardRow struct {
	ModelID     string  `json:"id"`
	Name        string  `json:"name"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Draws       int     `json:"draws"`
	Invalid     int     `json:"invalid"`
	Elo         float64 `json:"elo"`
	WinRate     float64 `json:"winRate"`
	WinRateLow  float64 `json:"winRateLow"`
	WinRateHigh float64 `json:"winRateHigh"`
}

type LinkResponse struct {
	UserID       string `json:"userId"`
	BattlesMoved int64  `json:"battlesMoved"`
}

type SessionResponse struct {
	Identity
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
