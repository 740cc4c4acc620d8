// Package vote applies a vote to a battle and to the global and personal
// leaderboards.
package vote

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"llm-arena/server/models"
	"llm-arena/server/rating"
	"llm-arena/server/store"
)

// Tx is the transactional surface the processor writes through.
type Tx interface {
	FinalizeBattle(ctx context.Context, f models.Finalization) error
	LockModels(ctx context.Context, owner string, ids ...string) ([]models.Model, error)
	EnsurePersonal(ctx context.Context, owner string, templates ...models.Model) error
	Increment(ctx context.Context, rowID int64, c models.Counters) error
	SetElo(ctx context.Context, rowID int64, elo float64) error
	AppendRating(ctx context.Context, c models.RatingChange) error
}

// Store runs fn in one transaction, rolling back on error.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

type pgStore struct{ db *store.DB }

func (s pgStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return s.db.WithTx(ctx, func(t *store.Tx) error { return fn(t) })
}

// Postgres adapts the pgx store.
func Postgres(db *store.DB) Store { return pgStore{db: db} }

type Processor struct {
	store Store
	elo   rating.Elo
	now   func() time.Time
}

func NewProcessor(s Store, elo rating.Elo) *Processor {
	return &Processor{store: s, elo: elo, now: time.Now}
}

func validate(userID string, req models.VoteRequest) error {
	if userID == "" {
		return models.ErrUnauthorized
	}
	if !req.Result.Valid() {
		return errors.Wrapf(models.ErrInvalidResult, "%q", req.Result)
	}
	if req.BattleID <= 0 {
		return errors.Wrap(models.ErrInvalidRequest, "battleId is required")
	}
	if req.Model1 == "" || req.Model2 == "" {
		return errors.Wrap(models.ErrInvalidRequest, "both model ids are required")
	}
	if req.Model1 == req.Model2 {
		return errors.Wrap(models.ErrInvalidRequest, "a model cannot battle itself")
	}
	return nil
}

// Cast records userID's vote on a battle.
//
// The battle is finalized and the global records updated in one transaction;
// any failure there rolls all of it back and is returned. The voter's personal
// records are then provisioned and updated in a second transaction whose
// failure is logged and reported through PersonalUpdated only.
func (p *Processor) Cast(ctx context.Context, userID string, req models.VoteRequest) (models.VoteReceipt, error) {
	if err := validate(userID, req); err != nil {
		return models.VoteReceipt{}, err
	}
	outcome := req.Result.Outcome()
	receipt := models.VoteReceipt{BattleID: req.BattleID, Outcome: outcome}

	var templates []models.Model
	err := p.store.InTx(ctx, func(tx Tx) error {
		if err := tx.FinalizeBattle(ctx, models.Finalization{
			BattleID: req.BattleID,
			Model1:   req.Model1,
			Model2:   req.Model2,
			Outcome:  outcome,
			Winner:   outcome.Winner(req.Model1, req.Model2),
			UserID:   userID,
			VotedAt:  p.now().UTC(),
		}); err != nil {
			return err
		}
		pair, err := tx.LockModels(ctx, "", req.Model1, req.Model2)
		if err != nil {
			return err
		}
		receipt.Global, err = p.apply(ctx, tx, req.BattleID, outcome, pair[0], pair[1])
		templates = pair
		return err
	})
	if err != nil {
		return models.VoteReceipt{}, err
	}

	fields := log.Fields{"battle_id": req.BattleID, "outcome": outcome, "user_id": userID}
	err = p.store.InTx(ctx, func(tx Tx) error {
		if err := tx.EnsurePersonal(ctx, userID, templates...); err != nil {
			return err
		}
		pair, err := tx.LockModels(ctx, userID, req.Model1, req.Model2)
		if err != nil {
			return err
		}
		receipt.Personal, err = p.apply(ctx, tx, req.BattleID, outcome, pair[0], pair[1])
		return err
	})
	if err != nil {
		receipt.Personal = nil
		log.WithFields(fields).WithError(err).Warn("personal leaderboard update failed")
	} else {
		receipt.PersonalUpdated = true
	}
	log.WithFields(fields).Info("vote recorded")
	return receipt, nil
}

// apply writes one vote to a pair of records of the same scope.
func (p *Processor) apply(ctx context.Context, tx Tx, battleID int64, o models.Outcome, a, b models.Model) ([]models.Standing, error) {
	da, db := o.Deltas()
	if err := tx.Increment(ctx, a.ID, da); err != nil {
		return nil, err
	}
	if err := tx.Increment(ctx, b.ID, db); err != nil {
		return nil, err
	}

	oldA, oldB := rating.OrDefault(a.Elo), rating.OrDefault(b.Elo)
	newA, newB := oldA, oldB
	if o.Decisive() {
		var err error
		if newA, newB, err = p.elo.Calculate(a, b, o.FirstWon()); err != nil {
			return nil, err
		}
		for _, c := range []models.RatingChange{
			{ModelRowID: a.ID, BattleID: battleID, EloBefore: oldA, EloAfter: newA},
			{ModelRowID: b.ID, BattleID: battleID, EloBefore: oldB, EloAfter: newB},
		} {
			if err := tx.SetElo(ctx, c.ModelRowID, c.EloAfter); err != nil {
				return nil, err
			}
			if err := tx.AppendRating(ctx, c); err != nil {
				return nil, err
			}
		}
	}
	return []models.Standing{
		standing(a.Add(da), newA, newA-oldA),
		standing(b.Add(db), newB, newB-oldB),
	}, nil
}

func standing(m models.Model, elo, delta float64) models.Standing {
	return models.Standing{
		ModelID:  m.ModelID,
		Name:     m.Name,
		Wins:     m.Wins,
		Losses:   m.Losses,
		Draws:    m.Draws,
		Invalid:  m.Invalid,
		Elo:      elo,
		EloDelta: delta,
	}
}
