// Package product provides the catalog store consulted by order processing:
// product lookup and atomic stock adjustments.
package product

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/autoparts-orders/internal/pgdb"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	// DecrementStock removes qty units only if at least qty are in stock.
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
	// UpdatePrice changes the catalog price. Existing order lines keep theirs.
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO products (id, shop_id, name, price, stock, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
	`, p.ID, p.ShopID, p.Name, p.Price.String(), p.Stock, p.IsActive)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		p     Product
		price string
	)
	err := pgdb.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, shop_id::text, name, price::text, stock, is_active, created_at, updated_at
		FROM products WHERE id=$1
	`, id).Scan(&p.ID, &p.ShopID, &p.Name, &price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PGRepo) DecrementStock(ctx context.Context, id string, qty int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *PGRepo) IncrementStock(ctx context.Context, id string, qty int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
		UPDATE products
		SET price = $2, updated_at = NOW()
		WHERE id = $1
	`, id, price.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
