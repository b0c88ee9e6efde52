package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/olympiad/internal/model"
)

// DefaultSessionTTL applies when CreateAuthSession gets a non-positive TTL.
const DefaultSessionTTL = 24 * time.Hour

// hashToken is the stored form of a bearer token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateAuthSession opens a login session for userID that lasts ttl. The
// returned token is the caller's credential; it is not recoverable later.
func (s *Store) CreateAuthSession(ctx context.Context, userID int64, ttl time.Duration) (string, *model.AuthSession, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now().UTC()
	sess := &model.AuthSession{
		ID:        hashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	); err != nil {
		return "", nil, fmt.Errorf("create auth session: %w", err)
	}
	return token, sess, nil
}

// GetAuthSession resolves a bearer token. Unknown and expired tokens both
// yield ErrNotFound; expired rows are left for CleanupExpiredSessions.
func (s *Store) GetAuthSession(ctx context.Context, token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRowContext(ctx,
		`SELECT token_hash, user_id, created_at, expires_at FROM auth_sessions
		 WHERE token_hash = ? AND expires_at > ?`,
		hashToken(token), time.Now().UTC(),
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteAuthSession ends the session behind token. Unknown tokens are
// ignored.
func (s *Store) DeleteAuthSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token_hash = ?`, hashToken(token))
	return err
}

// CleanupExpiredSessions removes all expired auth sessions and reports how
// many were deleted.
func (s *Store) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
