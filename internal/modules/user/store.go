// README: User store: PostgreSQL and in-memory implementations.
package user

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gocab/internal/types"
)

var ErrNotFound = errors.New("user not found")

type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id types.ID) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	MarkVerified(ctx context.Context, id types.ID) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, name, phone, email, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		string(u.ID), u.Name, u.Phone, u.Email, u.Verified, u.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*User, error) {
	return s.scanOne(s.db.QueryRow(ctx, `
		SELECT id, name, phone, email, verified, created_at, updated_at
		FROM users WHERE id = $1`, string(id)))
}

func (s *PGStore) GetByPhone(ctx context.Context, phone string) (*User, error) {
	return s.scanOne(s.db.QueryRow(ctx, `
		SELECT id, name, phone, email, verified, created_at, updated_at
		FROM users WHERE phone = $1`, phone))
}

func (s *PGStore) scanOne(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.Email, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) MarkVerified(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET verified = TRUE, updated_at = NOW() WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PGStore)(nil)

type MemStore struct {
	mu    sync.Mutex
	users map[types.ID]*User
}

func NewMemStore() *MemStore {
	return &MemStore{users: make(map[types.ID]*User)}
}

func (s *MemStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemStore) Get(ctx context.Context, id types.ID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) GetByPhone(ctx context.Context, phone string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) MarkVerified(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Verified = true
	u.UpdatedAt = time.Now()
	return nil
}

var _ Store = (*MemStore)(nil)
