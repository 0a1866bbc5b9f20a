// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/speakdoc/speakdoc/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	q, _ := conn(ctx, r.db)
	_, err := q.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, pending_reset_email, user_agent, ip_address, expires_at, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		session.ID.String(),
		userIDArg(session),
		session.TokenHash,
		session.PendingResetEmail,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.CreatedAt,
		session.LastSeenAt,
	)
	if err != nil {
		return oops.With("user_id", session.UserID.String()).
			Wrap(storageError("SESSION_CREATE_FAILED", "insert session", err))
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	q, _ := conn(ctx, r.db)
	row := q.QueryRow(ctx, `
		SELECT id, COALESCE(user_id, ''), token_hash, pending_reset_email, user_agent, ip_address, expires_at, created_at, last_seen_at
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, storageError("SESSION_GET_BY_TOKEN_FAILED", "get session by token hash", err)
	}
	return session, nil
}

// SetPendingResetEmail replaces the email a later reset request will use.
func (r *SessionRepository) SetPendingResetEmail(ctx context.Context, id ulid.ULID, email string) error {
	q, _ := conn(ctx, r.db)
	result, err := q.Exec(ctx, `
		UPDATE sessions SET pending_reset_email = $2
		WHERE id = $1
	`, id.String(), email)
	if err != nil {
		return oops.With("id", id.String()).
			Wrap(storageError("SESSION_SET_PENDING_EMAIL_FAILED", "update pending_reset_email", err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *SessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	q, _ := conn(ctx, r.db)
	result, err := q.Exec(ctx, `
		UPDATE sessions SET last_seen_at = $2
		WHERE id = $1
	`, id.String(), lastSeen.UTC())
	if err != nil {
		return oops.With("id", id.String()).
			Wrap(storageError("SESSION_UPDATE_LAST_SEEN_FAILED", "update last_seen_at", err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	q, _ := conn(ctx, r.db)
	result, err := q.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id.String())
	if err != nil {
		return oops.With("id", id.String()).
			Wrap(storageError("SESSION_DELETE_FAILED", "delete session", err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes sessions expired at now and returns the count.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	q, _ := conn(ctx, r.db)
	result, err := q.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, storageError("SESSION_DELETE_EXPIRED_FAILED", "delete expired sessions", err)
	}
	return result.RowsAffected(), nil
}

// userIDArg stores anonymous sessions with a NULL user.
func userIDArg(s *auth.Session) any {
	if s.Anonymous() {
		return nil
	}
	return s.UserID.String()
}

// scanSession scans a single row into a Session.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr     string
		userIDStr string
		session   auth.Session
	)

	err := row.Scan(
		&idStr,
		&userIDStr,
		&session.TokenHash,
		&session.PendingResetEmail,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.LastSeenAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	if session.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	// Anonymous sessions have no user.
	if userIDStr != "" {
		if session.UserID, err = ulid.Parse(userIDStr); err != nil {
			return nil, oops.Code("SESSION_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
		}
	}
	session.ExpiresAt = session.ExpiresAt.UTC()
	session.CreatedAt = session.CreatedAt.UTC()
	session.LastSeenAt = session.LastSeenAt.UTC()

	return &session, nil
}
