package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"snackngo/internal/model"
)

var (
	ErrLoginTaken         = errors.New("login already exists")
	ErrInvalidCredentials = errors.New("invalid login or password")
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Register(ctx context.Context, login, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id, login, created_at`,
		login, hash,
	)

	var user model.User
	if err := row.Scan(&user.ID, &user.Login, &user.CreatedAt); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, ErrLoginTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	user.PasswordHash = hash

	return &user, nil
}

func (s *UserStore) Authenticate(ctx context.Context, login, password string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	)

	var user model.User
	if err := row.Scan(&user.ID, &user.Login, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}
