package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"llm-arena/server/models"
)

// CreateBattle stores a pending battle between two global models.
func (db *DB) CreateBattle(ctx context.Context, b models.NewBattle) (int64, error) {
	var id int64
	err := db.WithTx(ctx, func(t *Tx) error {
		pair, err := lookupModels(ctx, t.tx, "", false, []string{b.Model1, b.Model2})
		if err != nil {
			return err
		}
		return t.tx.QueryRow(ctx, `
			INSERT INTO battles(model1_id, model2_id, question, response1, response2)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, pair[0].ID, pair[1].ID, b.Question, b.Response1, b.Response2).Scan(&id)
	})
	if err != nil {
		return 0, errors.Wrap(err, "create battle")
	}
	return id, nil
}

// FinalizeBattle records a vote on a pending battle. A battle is finalized at
// most once: a second call returns models.ErrAlreadyVoted and writes nothing.
func (t *Tx) FinalizeBattle(ctx context.Context, f models.Finalization) error {
	var (
		voted          bool
		model1, model2 string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT b.voted_at IS NOT NULL, m1.model_id, m2.model_id
		  FROM battles b
		  JOIN models m1 ON m1.id = b.model1_id
		  JOIN models m2 ON m2.id = b.model2_id
		 WHERE b.id = $1
		   FOR UPDATE OF b
	`, f.BattleID).Scan(&voted, &model1, &model2)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(models.ErrBattleNotFound, "battle %d", f.BattleID)
	}
	if err != nil {
		return errors.Wrap(err, "load battle")
	}
	if voted {
		return errors.Wrapf(models.ErrAlreadyVoted, "battle %d", f.BattleID)
	}
	if model1 != f.Model1 || model2 != f.Model2 {
		// Unknown models are reported as such before the pairing.
		if _, err := lookupModels(ctx, t.tx, "", false, []string{f.Model1, f.Model2}); err != nil {
			return err
		}
		return errors.Wrapf(models.ErrBattleMismatch, "battle %d is %s vs %s", f.BattleID, model1, model2)
	}

	var winner any
	if f.Winner != "" {
		winner = f.Winner
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE battles
		   SET result = $2,
		       winner_id = (SELECT id FROM models WHERE model_id = $3 AND user_id IS NULL),
		       user_id = $4,
		       voted_at = $5
		 WHERE id = $1 AND voted_at IS NULL
	`, f.BattleID, string(f.Outcome), winner, ownerArg(f.UserID), f.VotedAt)
	return errors.Wrap(err, "finalize battle")
}

// ListBattles returns the battles owner voted on, newest first.
func (db *DB) ListBattles(ctx context.Context, owner string, limit int) ([]models.Battle, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.Query(ctx, `
		SELECT b.id, m1.model_id, m2.model_id, w.model_id,
		       b.question, b.response1, b.response2, b.result,
		       b.user_id, b.created_at, b.voted_at
		  FROM battles b
		  JOIN models m1 ON m1.id = b.model1_id
		  JOIN models m2 ON m2.id = b.model2_id
		  LEFT JOIN models w ON w.id = b.winner_id
		 WHERE b.user_id = $1
		 ORDER BY b.voted_at DESC NULLS LAST, b.id DESC
		 LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list battles")
	}
	defer rows.Close()
	out := []models.Battle{}
	for rows.Next() {
		var (
			b      models.Battle
			result *string
		)
		if err := rows.Scan(&b.ID, &b.Model1, &b.Model2, &b.Winner,
			&b.Question, &b.Response1, &b.Response2, &result,
			&b.UserID, &b.CreatedAt, &b.VotedAt); err != nil {
			return nil, err
		}
		if result != nil {
			o := models.Outcome(*result)
			b.Result = &o
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ReassignBattles moves battle ownership from one user to another inside an
// existing transaction and returns the number of rows moved.
func (t *Tx) ReassignBattles(ctx context.Context, from, to string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE battles SET user_id = $2 WHERE user_id = $1`, from, to)
	if err != nil {
		return 0, errors.Wrap(err, "reassign battles")
	}
	return tag.RowsAffected(), nil
}
