package models

import "time"

// DefaultElo is the rating every model record starts from.
const DefaultElo = 1500.0

// Result is the vote a client submits for a battle.
type Result string

const (
	ResultModel1  Result = "model1"
	ResultModel2  Result = "model2"
	ResultDraw    Result = "draw"
	ResultInvalid Result = "invalid"
)

func (r Result) Valid() bool {
	switch r {
	case ResultModel1, ResultModel2, ResultDraw, ResultInvalid:
		return true
	}
	return false
}

// Outcome maps a vote to the tag persisted on the battle row.
func (r Result) Outcome() Outcome {
	switch r {
	case ResultModel1:
		return OutcomeModel1Win
	case ResultModel2:
		return OutcomeModel2Win
	case ResultDraw:
		return OutcomeDraw
	default:
		return OutcomeInvalid
	}
}

// Outcome is the result tag stored on a finalized battle.
type Outcome string

const (
	OutcomeModel1Win Outcome = "model1_win"
	OutcomeModel2Win Outcome = "model2_win"
	OutcomeDraw      Outcome = "draw"
	OutcomeInvalid   Outcome = "invalid"
)

// Decisive reports whether the outcome moves ratings.
func (o Outcome) Decisive() bool { return o == OutcomeModel1Win || o == OutcomeModel2Win }

func (o Outcome) FirstWon() bool { return o == OutcomeModel1Win }

// Winner returns the winning model identifier, or "" for draws and invalid votes.
func (o Outcome) Winner(model1, model2 string) string {
	switch o {
	case OutcomeModel1Win:
		return model1
	case OutcomeModel2Win:
		return model2
	}
	return ""
}

// Deltas returns the counter increments for the first and second model.
func (o Outcome) Deltas() (first, second Counters) {
	switch o {
	case OutcomeModel1Win:
		return Counters{Wins: 1}, Counters{Losses: 1}
	case OutcomeModel2Win:
		return Counters{Losses: 1}, Counters{Wins: 1}
	case OutcomeDraw:
		return Counters{Draws: 1}, Counters{Draws: 1}
	default:
		return Counters{Invalid: 1}, Counters{Invalid: 1}
	}
}

// Counters is an increment applied to a model record.
type Counters struct {
	Wins    int
	Losses  int
	Draws   int
	Invalid int
}

// Model is one row of the models table: a model's standing either globally
// (UserID nil) or on one user's personal leaderboard.
type Model struct {
	ID      int64   `json:"-"`
	ModelID string  `json:"id"`
	Name    string  `json:"name"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Draws   int     `json:"draws"`
	Invalid int     `json:"invalid"`
	Elo     float64 `json:"elo"`
	UserID  *string `json:"-"`
}

// Owner returns the owning user id, "" for global records.
func (m Model) Owner() string {
	if m.UserID == nil {
		return ""
	}
	return *m.UserID
}

// Add returns a copy of m with c applied.
func (m Model) Add(c Counters) Model {
	m.Wins += c.Wins
	m.Losses += c.Losses
	m.Draws += c.Draws
	m.Invalid += c.Invalid
	return m
}

// Games counts every vote the record took part in, invalid ones included.
func (m Model) Games() int { return m.Wins + m.Losses + m.Draws + m.Invalid }

// ModelInfo is a catalog entry used to seed global records.
type ModelInfo struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Battle is one question answered by two models, pending or voted.
type Battle struct {
	ID        int64      `json:"id"`
	Model1    string     `json:"model1"`
	Model2    string     `json:"model2"`
	Winner    *string    `json:"winner"`
	Question  string     `json:"question"`
	Response1 string     `json:"response1"`
	Response2 string     `json:"response2"`
	Result    *Outcome   `json:"result"`
	UserID    *string    `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	VotedAt   *time.Time `json:"votedAt"`
}

type NewBattle struct {
	Model1    string
	Model2    string
	Question  string
	Response1 string
	Response2 string
}

// Finalization is the write applied to a battle when it is voted on.
type Finalization struct {
	BattleID int64
	Model1   string
	Model2   string
	Outcome  Outcome
	Winner   string
	UserID   string
	VotedAt  time.Time
}

// RatingChange is one rating_history row.
type RatingChange struct {
	ModelRowID int64
	BattleID   int64
	EloBefore  float64
	EloAfter   float64
}

type RatingPoint struct {
	BattleID  int64     `json:"battleId"`
	EloBefore float64   `json:"eloBefore"`
	EloAfter  float64   `json:"eloAfter"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is what the session gate hands to the core.
type Identity struct {
	UserID      string `json:"userId"`
	IsAnonymous bool   `json:"isAnonymous"`
}

type User struct {
	ID          string
	Name        string
	IsAnonymous bool
	LinkedTo    *string
	CreatedAt   time.Time
}
