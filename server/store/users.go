package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"llm-arena/server/models"
)

func (db *DB) CreateUser(ctx context.Context, u models.User) error {
	_, err := db.Exec(ctx, `
		INSERT INTO users(id, name, is_anonymous) VALUES ($1, $2, $3)
	`, u.ID, u.Name, u.IsAnonymous)
	if pgErrCode(err) == CodeUniqueViolation {
		return errors.Wrapf(models.ErrInvalidRequest, "user %s exists", u.ID)
	}
	return errors.Wrap(classify(err), "create user")
}

// CreateSession stores the hash of a session token.
func (db *DB) CreateSession(ctx context.Context, tokenHash, userID string, expires time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO sessions(token_hash, user_id, expires_at) VALUES ($1, $2, $3)
	`, tokenHash, userID, expires)
	if pgErrCode(err) == CodeForeignKeyViolation {
		return errors.Wrapf(models.ErrUserNotFound, "user %s", userID)
	}
	return errors.Wrap(classify(err), "create session")
}

// LookupSession resolves a live session to the user it acts for. Sessions of
// linked anonymous users act for the permanent account.
func (db *DB) LookupSession(ctx context.Context, tokenHash string) (models.User, time.Time, error) {
	var (
		u       models.User
		expires time.Time
	)
	err := db.QueryRow(ctx, `
		SELECT COALESCE(p.id, u.id), COALESCE(p.name, u.name),
		       COALESCE(p.is_anonymous, u.is_anonymous), u.linked_to,
		       COALESCE(p.created_at, u.created_at), s.expires_at
		  FROM sessions s
		  JOIN users u ON u.id = s.user_id
		  LEFT JOIN users p ON p.id = u.linked_to
		 WHERE s.token_hash = $1 AND s.expires_at > now()
	`, tokenHash).Scan(&u.ID, &u.Name, &u.IsAnonymous, &u.LinkedTo, &u.CreatedAt, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, time.Time{}, models.ErrUnauthorized
	}
	if err != nil {
		return models.User{}, time.Time{}, errors.Wrap(classify(err), "lookup session")
	}
	return u, expires, nil
}

func (db *DB) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return errors.Wrap(classify(err), "delete session")
}

// DeleteExpiredSessions prunes sessions past their expiry.
func (db *DB) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, errors.Wrap(classify(err), "prune sessions")
	}
	return tag.RowsAffected(), nil
}

// LinkAccount attaches an anonymous user to a permanent account and moves
// its battles over, all in one transaction.
func (db *DB) LinkAccount(ctx context.Context, anonID, permanentID, name string) (int64, error) {
	if anonID == "" || permanentID == "" || anonID == permanentID {
		return 0, errors.Wrap(models.ErrInvalidRequest, "link needs two distinct users")
	}
	var moved int64
	err := db.WithTx(ctx, func(t *Tx) error {
		var anonymous bool
		err := t.tx.QueryRow(ctx, `SELECT is_anonymous FROM users WHERE id = $1 FOR UPDATE`, anonID).Scan(&anonymous)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(models.ErrUserNotFound, "user %s", anonID)
		}
		if err != nil {
			return err
		}
		if !anonymous {
			return errors.Wrapf(models.ErrInvalidRequest, "user %s is not anonymous", anonID)
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO users(id, name, is_anonymous) VALUES ($1, $2, FALSE)
			ON CONFLICT (id) DO UPDATE
			   SET name = CASE WHEN EXCLUDED.name = '' THEN users.name ELSE EXCLUDED.name END,
			       is_anonymous = FALSE
		`, permanentID, name); err != nil {
			return errors.Wrap(err, "upsert permanent user")
		}
		if _, err := t.tx.Exec(ctx, `UPDATE users SET linked_to = $2 WHERE id = $1`, anonID, permanentID); err != nil {
			return errors.Wrap(err, "mark linked")
		}
		moved, err = t.ReassignBattles(ctx, anonID, permanentID)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "link account")
	}
	return moved, nil
}
