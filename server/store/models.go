package store

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"llm-arena/server/models"
)

const modelColumns = `id, model_id, name, wins, losses, draws, invalid, COALESCE(elo, 1500), user_id`

func scanModel(row pgx.Row) (models.Model, error) {
	var m models.Model
	err := row.Scan(&m.ID, &m.ModelID, &m.Name, &m.Wins, &m.Losses, &m.Draws, &m.Invalid, &m.Elo, &m.UserID)
	return m, err
}

func collectModels(rows pgx.Rows, err error) ([]models.Model, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ownerArg maps "" to SQL NULL (global scope).
func ownerArg(owner string) any {
	if owner == "" {
		return nil
	}
	return owner
}

// Leaderboard returns every record in one scope, best rating first. An empty
// owner selects the global scope.
func (db *DB) Leaderboard(ctx context.Context, owner string) ([]models.Model, error) {
	ms, err := collectModels(db.Query(ctx, `
		SELECT `+modelColumns+`
		  FROM models
		 WHERE user_id IS NOT DISTINCT FROM $1
		 ORDER BY elo DESC, wins DESC, model_id
	`, ownerArg(owner)))
	if err != nil {
		return nil, errors.Wrap(classify(err), "leaderboard")
	}
	return ms, nil
}

// LockModels selects one scope's rows for ids FOR NO KEY UPDATE, in primary
// key order. The lock does not conflict with the KEY SHARE locks taken by
// foreign key checks on battles and rating_history, so a transaction that
// already finalized a battle against these rows cannot deadlock with another
// one doing the same. The result follows the order of ids.
func (t *Tx) LockModels(ctx context.Context, owner string, ids ...string) ([]models.Model, error) {
	return lookupModels(ctx, t.tx, owner, true, ids)
}

func lookupModels(ctx context.Context, q querier, owner string, lock bool, ids []string) ([]models.Model, error) {
	sql := `SELECT ` + modelColumns + `
		  FROM models
		 WHERE user_id IS NOT DISTINCT FROM $1 AND model_id = ANY($2)
		 ORDER BY id`
	if lock {
		sql += ` FOR NO KEY UPDATE`
	}
	rows, err := collectModels(q.Query(ctx, sql, ownerArg(owner), ids))
	if err != nil {
		return nil, errors.Wrap(err, "select models")
	}
	byID := make(map[string]models.Model, len(rows))
	for _, m := range rows {
		byID[m.ModelID] = m
	}
	out := make([]models.Model, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, errors.Wrapf(models.ErrModelNotFound, "%q", id)
		}
		out = append(out, m)
	}
	return out, nil
}

// EnsurePersonal creates any missing personal rows for owner from the given
// global templates. Existing rows are left alone.
func (t *Tx) EnsurePersonal(ctx context.Context, owner string, templates ...models.Model) error {
	if owner == "" {
		return errors.Wrap(models.ErrUnauthorized, "personal rows need an owner")
	}
	ts := append([]models.Model(nil), templates...)
	sort.Slice(ts, func(i, j int) bool { return ts[i].ModelID < ts[j].ModelID })
	for _, m := range ts {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO models(model_id, name, user_id)
			VALUES ($1, $2, $3)
			ON CONFLICT ON CONSTRAINT models_user_id_model_id_key DO NOTHING
		`, m.ModelID, m.Name, owner); err != nil {
			return errors.Wrapf(err, "ensure personal %s", m.ModelID)
		}
	}
	return nil
}

// Increment adds c to a row's counters in place.
func (t *Tx) Increment(ctx context.Context, rowID int64, c models.Counters) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE models
		   SET wins = wins + $2,
		       losses = losses + $3,
		       draws = draws + $4,
		       invalid = invalid + $5,
		       updated_at = now()
		 WHERE id = $1
	`, rowID, c.Wins, c.Losses, c.Draws, c.Invalid)
	if err != nil {
		return errors.Wrap(err, "increment counters")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrModelNotFound, "row %d", rowID)
	}
	return nil
}

func (t *Tx) SetElo(ctx context.Context, rowID int64, elo float64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE models SET elo = $2, updated_at = now() WHERE id = $1`, rowID, elo)
	if err != nil {
		return errors.Wrap(err, "set elo")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrModelNotFound, "row %d", rowID)
	}
	return nil
}

func (t *Tx) AppendRating(ctx context.Context, c models.RatingChange) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO rating_history(model_row_id, battle_id, elo_before, elo_after)
		VALUES ($1, $2, $3, $4)
	`, c.ModelRowID, c.BattleID, c.EloBefore, c.EloAfter)
	return errors.Wrap(err, "append rating history")
}

// RatingHistory returns the global rating timeline of one model, oldest first.
func (db *DB) RatingHistory(ctx context.Context, modelID string, limit int) ([]models.RatingPoint, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(ctx, `
		SELECT battle_id, elo_before, elo_after, created_at
		  FROM (
		        SELECT h.id, h.battle_id, h.elo_before, h.elo_after, h.created_at
		          FROM rating_history h
		          JOIN models m ON m.id = h.model_row_id
		         WHERE m.model_id = $1 AND m.user_id IS NULL
		         ORDER BY h.id DESC
		         LIMIT $2
		  ) recent
		 ORDER BY id
	`, modelID, limit)
	if err != nil {
		return nil, errors.Wrap(classify(err), "rating history")
	}
	defer rows.Close()
	out := []models.RatingPoint{}
	for rows.Next() {
		var p models.RatingPoint
		if err := rows.Scan(&p.BattleID, &p.EloBefore, &p.EloAfter, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SeedModels upserts the global rows for a catalog. Names are refreshed,
// statistics are kept.
func (db *DB) SeedModels(ctx context.Context, catalog []models.ModelInfo) (int, error) {
	n := 0
	err := db.WithTx(ctx, func(t *Tx) error {
		for _, m := range catalog {
			tag, err := t.tx.Exec(ctx, `
				INSERT INTO models(model_id, name)
				VALUES ($1, $2)
				ON CONFLICT (model_id) WHERE user_id IS NULL
				DO UPDATE SET name = EXCLUDED.name
				 WHERE models.name IS DISTINCT FROM EXCLUDED.name
			`, m.ID, m.Name)
			if err != nil {
				return errors.Wrapf(err, "seed %s", m.ID)
			}
			n += int(tag.RowsAffected())
		}
		return nil
	})
	return n, err
}

// ResetLeaderboards zeroes every global row and drops personal rows,
// battles and rating history.
func (db *DB) ResetLeaderboards(ctx context.Context) error {
	return db.WithTx(ctx, func(t *Tx) error {
		for _, stmt := range []string{
			`DELETE FROM rating_history`,
			`DELETE FROM battles`,
			`DELETE FROM models WHERE user_id IS NOT NULL`,
			`UPDATE models SET wins = 0, losses = 0, draws = 0, invalid = 0, elo = 1500, updated_at = now()`,
		} {
			if _, err := t.tx.Exec(ctx, stmt); err != nil {
				return errors.Wrap(err, "reset leaderboards")
			}
		}
		return nil
	})
}
