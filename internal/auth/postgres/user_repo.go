// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/speakdoc/speakdoc/internal/auth"
)

// emailIndex is the unique index on LOWER(email).
const emailIndex = "users_email_lower_idx"

const userColumns = `id, name, email, password_hash, created_at, confirmed, confirmed_at, challenge_token_hash, challenge_expires_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
// Reads made inside a transaction lock the returned row.
type UserRepository struct {
	db DB
}

var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. The unique index decides email conflicts, so two
// concurrent signups for one address cannot both succeed.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	q, _ := conn(ctx, r.db)
	tokenHash, expiresAt := challengeColumns(user.Challenge)

	_, err := q.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.Confirmed,
		user.ConfirmedAt,
		tokenHash,
		expiresAt,
	)
	if isEmailConflict(err) {
		return oops.Code("USER_EMAIL_EXISTS").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.With("user_id", user.ID.String()).Wrap(storageError("USER_CREATE_FAILED", "insert user", err))
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.getOne(ctx, "get user by id", `id = $1`, id.String())
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getOne(ctx, "get user by email", `LOWER(email) = LOWER($1)`, email)
}

// GetByChallenge retrieves the user holding a challenge token hash.
func (r *UserRepository) GetByChallenge(ctx context.Context, tokenHash string) (*auth.User, error) {
	return r.getOne(ctx, "get user by challenge", `challenge_token_hash = $1`, tokenHash)
}

func (r *UserRepository) getOne(ctx context.Context, operation, where string, arg any) (*auth.User, error) {
	q, inTx := conn(ctx, r.db)
	sql := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	if inTx {
		sql += ` FOR UPDATE`
	}

	user, err := scanUser(q.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("operation", operation).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, storageError("USER_QUERY_FAILED", operation, err)
	}
	return user, nil
}

// Save writes every mutable column in a single UPDATE.
func (r *UserRepository) Save(ctx context.Context, user *auth.User) error {
	q, _ := conn(ctx, r.db)
	tokenHash, expiresAt := challengeColumns(user.Challenge)

	result, err := q.Exec(ctx, `
		UPDATE users SET
			name = $2,
			email = $3,
			password_hash = $4,
			confirmed = $5,
			confirmed_at = $6,
			challenge_token_hash = $7,
			challenge_expires_at = $8
		WHERE id = $1
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Confirmed,
		user.ConfirmedAt,
		tokenHash,
		expiresAt,
	)
	if isEmailConflict(err) {
		return oops.Code("USER_EMAIL_EXISTS").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.With("user_id", user.ID.String()).Wrap(storageError("USER_SAVE_FAILED", "update user", err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func isEmailConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == emailIndex
}

func challengeColumns(c *auth.Challenge) (*string, *time.Time) {
	if c == nil {
		return nil, nil
	}
	tokenHash := c.TokenHash
	expiresAt := c.ExpiresAt.UTC()
	return &tokenHash, &expiresAt
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr       string
		user        auth.User
		confirmedAt *time.Time
		tokenHash   *string
		expiresAt   *time.Time
	)

	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.Confirmed,
		&confirmedAt,
		&tokenHash,
		&expiresAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	if confirmedAt != nil {
		t := confirmedAt.UTC()
		user.ConfirmedAt = &t
	}

	switch {
	case tokenHash != nil && expiresAt != nil:
		user.Challenge = &auth.Challenge{TokenHash: *tokenHash, ExpiresAt: expiresAt.UTC()}
	case tokenHash != nil || expiresAt != nil:
		return nil, oops.Code("USER_CORRUPT_CHALLENGE").
			With("user_id", idStr).
			Errorf("challenge token and expiry must be set together")
	}

	return &user, nil
}
