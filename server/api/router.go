// Package api serves the arena's JSON endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"llm-arena/server/metrics"
	"llm-arena/server/models"
	"llm-arena/server/session"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Boards is the read side of the store.
type Boards interface {
	Leaderboard(ctx context.Context, owner string) ([]models.Model, error)
	ListBattles(ctx context.Context, owner string, limit int) ([]models.Battle, error)
	RatingHistory(ctx context.Context, modelID string, limit int) ([]models.RatingPoint, error)
}

type Voter interface {
	Cast(ctx context.Context, userID string, req models.VoteRequest) (models.VoteReceipt, error)
}

type Submitter interface {
	Submit(ctx context.Context, req models.BattleRequest) (models.BattleResponse, error)
}

type Sessions interface {
	Anonymous(ctx context.Context) (session.Issued, error)
	Revoke(ctx context.Context, token string) error
	Link(ctx context.Context, anonID, permanentID, name string) (int64, error)
	SetCookie(w http.ResponseWriter, s session.Issued)
	ClearCookie(w http.ResponseWriter)
	Middleware(next http.Handler) http.Handler
}

type Catalog interface {
	All() []models.ModelInfo
	Contains(id string) bool
}

type Config struct {
	LinkSecret     string
	RequestTimeout time.Duration
	BattleTimeout  time.Duration
}

type Server struct {
	db       Pinger
	boards   Boards
	votes    Voter
	battles  Submitter
	sessions Sessions
	catalog  Catalog
	cfg      Config
}

func NewServer(db Pinger, boards Boards, votes Voter, battles Submitter, sessions Sessions, catalog Catalog, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.BattleTimeout <= 0 {
		cfg.BattleTimeout = 90 * time.Second
	}
	return &Server{db: db, boards: boards, votes: votes, battles: battles, sessions: sessions, catalog: catalog, cfg: cfg}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.sessions.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))

			r.Get("/health", s.health)
			r.Get("/models", s.listModels)
			r.Get("/session", s.getSession)
			r.Post("/session", s.createSession)
			r.Delete("/session", s.deleteSession)
			r.Post("/auth/link", s.link)
			r.Post("/vote", s.vote)
			r.Get("/leaderboard", s.leaderboard)
			r.Get("/leaderboard/personal", s.personalLeaderboard)
			r.Get("/battles", s.listBattles)
			r.Get("/elo-history", s.eloHistory)
		})

		r.With(middleware.Timeout(s.cfg.BattleTimeout)).Post("/battle", s.battle)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return wrapInvalid(err)
	}
	return nil
}
