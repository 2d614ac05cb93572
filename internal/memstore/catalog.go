package memstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/autoparts-orders/internal/product"
	"github.com/MikeMC777/autoparts-orders/internal/shop"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

type Products struct{ s *Store }

func (r *Products) Create(ctx context.Context, p *product.Product) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.products[p.ID]; ok {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	now := r.s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.st.products[p.ID] = *p
	return nil
}

func (r *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *Products) DecrementStock(ctx context.Context, id string, qty int) error {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock < qty {
		return product.ErrInsufficientStock
	}
	p.Stock -= qty
	p.UpdatedAt = r.s.now()
	r.s.st.products[id] = p
	return nil
}

func (r *Products) IncrementStock(ctx context.Context, id string, qty int) error {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = r.s.now()
	r.s.st.products[id] = p
	return nil
}

func (r *Products) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Price = price
	p.UpdatedAt = r.s.now()
	r.s.st.products[id] = p
	return nil
}

type Shops struct{ s *Store }

func (r *Shops) Create(ctx context.Context, sh *shop.Shop) error {
	defer r.s.lock(ctx)()
	for _, existing := range r.s.st.shops {
		if existing.OwnerID == sh.OwnerID {
			return fmt.Errorf("owner %s already has a shop", sh.OwnerID)
		}
	}
	sh.CreatedAt = r.s.now()
	r.s.st.shops[sh.ID] = *sh
	return nil
}

func (r *Shops) GetByID(ctx context.Context, id string) (*shop.Shop, error) {
	defer r.s.lock(ctx)()
	sh, ok := r.s.st.shops[id]
	if !ok {
		return nil, shop.ErrNotFound
	}
	return &sh, nil
}

func (r *Shops) GetByOwner(ctx context.Context, ownerID string) (*shop.Shop, error) {
	defer r.s.lock(ctx)()
	for _, sh := range r.s.st.shops {
		if sh.OwnerID == ownerID {
			return &sh, nil
		}
	}
	return nil, shop.ErrNotFound
}

type Users struct{ s *Store }

func (r *Users) Create(ctx context.Context, u *user.User) error {
	defer r.s.lock(ctx)()
	u.Email = strings.ToLower(u.Email)
	for _, existing := range r.s.st.users {
		if existing.Email == u.Email {
			return user.ErrAlreadyExist
		}
	}
	now := r.s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.st.users[u.ID] = *u
	return nil
}

func (r *Users) GetByID(ctx context.Context, id string) (*user.User, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	defer r.s.lock(ctx)()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}
