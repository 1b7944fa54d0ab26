package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/pavelanni/pushups/internal/model"
)

// DefaultTokenTTL is the lifetime of a bearer token issued at login.
const DefaultTokenTTL = 24 * time.Hour

// CreateAuthSession issues a bearer token for a user.
func (s *Store) CreateAuthSession(userID int64, ttl time.Duration) (model.AuthSession, error) {
	token, err := generateToken()
	if err != nil {
		return model.AuthSession{}, err
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	sess := model.AuthSession{ID: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	_, err = s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return model.AuthSession{}, err
	}
	return sess, nil
}

// UserForToken resolves a bearer token to its active user. It returns nil
// for unknown or expired tokens and for deactivated users.
func (s *Store) UserForToken(token string) (*model.User, error) {
	var u model.User
	var expires time.Time
	err := s.db.QueryRow(
		`SELECT u.id, u.username, u.display_name, u.password_hash, u.active, u.created_at, a.expires_at
		 FROM auth_sessions a JOIN users u ON u.id = a.user_id
		 WHERE a.id = ?`, token,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Active, &u.CreatedAt, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(expires) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	if !u.Active {
		return nil, nil
	}
	return &u, nil
}

// DeleteAuthSession revokes a token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired tokens and reports how many.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
