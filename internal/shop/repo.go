// Package shop resolves supplier storefronts.
package shop

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeMC777/autoparts-orders/internal/pgdb"
)

var ErrNotFound = errors.New("shop not found")

type Shop struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, s *Shop) error
	GetByID(ctx context.Context, id string) (*Shop, error)
	GetByOwner(ctx context.Context, ownerID string) (*Shop, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, s *Shop) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO shops (id, owner_id, name, created_at)
		VALUES ($1,$2,$3,NOW())
	`, s.ID, s.OwnerID, s.Name)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Shop, error) {
	return r.getOne(ctx, `WHERE id::text=$1`, id)
}

func (r *PGRepo) GetByOwner(ctx context.Context, ownerID string) (*Shop, error) {
	return r.getOne(ctx, `WHERE owner_id::text=$1`, ownerID)
}

func (r *PGRepo) getOne(ctx context.Context, where string, arg string) (*Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s Shop
	err := pgdb.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT id::text, owner_id::text, name, created_at FROM shops `+where, arg,
	).Scan(&s.ID, &s.OwnerID, &s.Name, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
