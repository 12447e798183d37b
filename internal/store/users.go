package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is an API account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	Active       bool
}

// RefreshToken is a stored refresh token joined with its user's state.
type RefreshToken struct {
	ID         string
	UserID     string
	ExpiresAt  time.Time
	Roles      []string
	UserActive bool
}

// CreateUser inserts a user with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, roles []string) (string, error) {
	id := uuid.New().String()
	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO _users (id, email, password_hash, roles) VALUES (%s, %s, %s, %s)",
		pb.Add(id), pb.Add(email), pb.Add(passwordHash), pb.Add(s.Dialect.ArrayParam(roles)))
	if _, err := s.DB.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return "", fmt.Errorf("create user: %w", s.Dialect.MapError(err))
	}
	return id, nil
}

// FindUserByEmail returns ErrNotFound when no user has that email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	pb := s.Dialect.NewParamBuilder()
	row, err := QueryRow(ctx, s.DB,
		fmt.Sprintf("SELECT id, email, password_hash, roles, active FROM _users WHERE email = %s", pb.Add(email)),
		pb.Params()...)
	if err != nil {
		return nil, err
	}
	roles, err := s.Dialect.ScanArray(row["roles"])
	if err != nil {
		return nil, err
	}
	return &User{
		ID:           row.String("id"),
		Email:        row.String("email"),
		PasswordHash: row.String("password_hash"),
		Roles:        roles,
		Active:       row.Bool("active"),
	}, nil
}

// CreateRefreshToken stores an opaque refresh token for a user.
func (s *Store) CreateRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO _refresh_tokens (id, user_id, token, expires_at) VALUES (%s, %s, %s, %s)",
		pb.Add(uuid.New().String()), pb.Add(userID), pb.Add(token), pb.Add(expiresAt.UTC().Format(time.RFC3339)))
	if _, err := s.DB.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken looks up a refresh token and its user.
func (s *Store) FindRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	pb := s.Dialect.NewParamBuilder()
	row, err := QueryRow(ctx, s.DB,
		fmt.Sprintf(`SELECT rt.id, rt.user_id, rt.expires_at, u.roles, u.active
		 FROM _refresh_tokens rt
		 JOIN _users u ON u.id = rt.user_id
		 WHERE rt.token = %s`, pb.Add(token)),
		pb.Params()...)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	roles, err := s.Dialect.ScanArray(row["roles"])
	if err != nil {
		return nil, err
	}
	return &RefreshToken{
		ID:         row.String("id"),
		UserID:     row.String("user_id"),
		ExpiresAt:  row.Time("expires_at"),
		Roles:      roles,
		UserActive: row.Bool("active"),
	}, nil
}

// DeleteRefreshToken removes a token by its value.
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	pb := s.Dialect.NewParamBuilder()
	_, err := Exec(ctx, s.DB, fmt.Sprintf("DELETE FROM _refresh_tokens WHERE token = %s", pb.Add(token)), pb.Params()...)
	return err
}
