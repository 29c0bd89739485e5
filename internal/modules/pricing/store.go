// README: Category store: PostgreSQL and in-memory implementations.
package pricing

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gocab/internal/types"
)

var ErrNotFound = errors.New("category not found")

type Store interface {
	Get(ctx context.Context, id types.ID) (*Category, error)
	ListActive(ctx context.Context) ([]*Category, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const categoryColumns = `id, name, description, capacity, base_fare, per_km, min_fare, active, created_at`

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Category, error) {
	row := s.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, string(id))
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Capacity, &c.BaseFare, &c.PerKm, &c.MinFare, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) ListActive(ctx context.Context) ([]*Category, error) {
	rows, err := s.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE active ORDER BY base_fare ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Capacity, &c.BaseFare, &c.PerKm, &c.MinFare, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)

type MemStore struct {
	mu         sync.Mutex
	categories map[types.ID]*Category
}

func NewMemStore(categories ...*Category) *MemStore {
	s := &MemStore{categories: make(map[types.ID]*Category)}
	for _, c := range categories {
		cp := *c
		s.categories[c.ID] = &cp
	}
	return s
}

func (s *MemStore) Get(ctx context.Context, id types.ID) (*Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) ListActive(ctx context.Context) ([]*Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Category
	for _, c := range s.categories {
		if c.Active {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BaseFare < out[j].BaseFare })
	return out, nil
}

var _ Store = (*MemStore)(nil)
