// Package battle asks two models the same question and stores the pending
// battle for a later vote.
package battle

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"llm-arena/server/models"
)

// MaxQuestionLen bounds a question in runes.
const MaxQuestionLen = 4000

type Responder interface {
	Respond(ctx context.Context, model, question string) (string, error)
}

type Store interface {
	CreateBattle(ctx context.Context, b models.NewBattle) (int64, error)
}

// Catalog reports which models may battle.
type Catalog interface {
	Contains(id string) bool
}

type Service struct {
	store     Store
	responder Responder
	catalog   Catalog
	limiter   *rate.Limiter
}

// NewService builds a Service allowing perMinute submissions process-wide.
// perMinute <= 0 disables the limit.
func NewService(s Store, r Responder, c Catalog, perMinute int) *Service {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		burst := perMinute / 6
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
	}
	return &Service{store: s, responder: r, catalog: c, limiter: lim}
}

func (s *Service) validate(req *models.BattleRequest) error {
	req.Model1 = strings.TrimSpace(req.Model1)
	req.Model2 = strings.TrimSpace(req.Model2)
	req.Question = strings.TrimSpace(req.Question)
	switch {
	case req.Model1 == "" || req.Model2 == "" || req.Question == "":
		return errors.Wrap(models.ErrInvalidRequest, "model1, model2 and question are required")
	case req.Model1 == req.Model2:
		return errors.Wrap(models.ErrInvalidRequest, "pick two different models")
	case utf8.RuneCountInString(req.Question) > MaxQuestionLen:
		return errors.Wrapf(models.ErrInvalidRequest, "question longer than %d characters", MaxQuestionLen)
	}
	if s.catalog != nil {
		for _, id := range []string{req.Model1, req.Model2} {
			if !s.catalog.Contains(id) {
				return errors.Wrapf(models.ErrModelNotFound, "%q", id)
			}
		}
	}
	return nil
}

// Submit asks both models concurrently and stores the pending battle.
func (s *Service) Submit(ctx context.Context, req models.BattleRequest) (models.BattleResponse, error) {
	if err := s.validate(&req); err != nil {
		return models.BattleResponse{}, err
	}
	if !s.limiter.Allow() {
		return models.BattleResponse{}, models.ErrRateLimited
	}

	var r1, r2 string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		r1, err = s.responder.Respond(gctx, req.Model1, req.Question)
		return err
	})
	g.Go(func() (err error) {
		r2, err = s.responder.Respond(gctx, req.Model2, req.Question)
		return err
	})
	if err := g.Wait(); err != nil {
		if !errors.Is(err, models.ErrUpstream) {
			err = errors.Wrapf(models.ErrUpstream, "%v", err)
		}
		return models.BattleResponse{}, err
	}

	id, err := s.store.CreateBattle(ctx, models.NewBattle{
		Model1:    req.Model1,
		Model2:    req.Model2,
		Question:  req.Question,
		Response1: r1,
		Response2: r2,
	})
	if err != nil {
		return models.BattleResponse{}, err
	}
	log.WithFields(log.Fields{"battle_id": id, "model1": req.Model1, "model2": req.Model2}).Info("battle created")
	return models.BattleResponse{Response1: r1, Response2: r2, BattleID: id}, nil
}
