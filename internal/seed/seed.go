// Package seed loads a small demo marketplace: one user per role, a supplier
// shop and a few auto parts.
package seed

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/MikeMC777/autoparts-orders/internal/product"
	"github.com/MikeMC777/autoparts-orders/internal/shop"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

type Repos struct {
	Users    user.Repository
	Shops    shop.Repository
	Products product.Repository
}

// Demo holds what Run created so callers can log in and place orders.
type Demo struct {
	Admin    *user.User
	Customer *user.User
	Supplier *user.User
	Delivery *user.User
	Shop     *shop.Shop
	Products []*product.Product
}

func Run(ctx context.Context, r Repos, password string) (*Demo, error) {
	log.Info("[seed] loading demo marketplace")

	users := user.NewService(r.Users)
	newUser := func(name, email string, role user.Role) (*user.User, error) {
		u, err := users.Register(ctx, name, email, password, role)
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", email, err)
		}
		return u, nil
	}

	var err error
	d := &Demo{}
	if d.Admin, err = newUser("Platform Admin", "admin@autoparts.local", user.RoleAdmin); err != nil {
		return nil, err
	}
	if d.Customer, err = newUser("Awa Nkemelu", "customer@autoparts.local", user.RoleCustomer); err != nil {
		return nil, err
	}
	if d.Supplier, err = newUser("Bonaberi Motors", "supplier@autoparts.local", user.RoleSupplier); err != nil {
		return nil, err
	}
	if d.Delivery, err = newUser("Jean Moto", "delivery@autoparts.local", user.RoleDelivery); err != nil {
		return nil, err
	}

	d.Shop = &shop.Shop{ID: uuid.NewString(), OwnerID: d.Supplier.ID, Name: "Bonaberi Motors Parts"}
	if err := r.Shops.Create(ctx, d.Shop); err != nil {
		return nil, fmt.Errorf("seed shop: %w", err)
	}

	catalog := []struct {
		id, name, price string
		stock           int
	}{
		{"brake-pad-001", "Front brake pads", "5000", 40},
		{"oil-filter-002", "Oil filter", "3500", 25},
		{"spark-plug-003", "Iridium spark plug", "2500", 100},
		{"timing-belt-004", "Timing belt kit", "45000", 5},
	}
	for _, c := range catalog {
		p := &product.Product{
			ID:       c.id,
			ShopID:   d.Shop.ID,
			Name:     c.name,
			Price:    decimal.RequireFromString(c.price),
			Stock:    c.stock,
			IsActive: true,
		}
		if err := r.Products.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("seed product %s: %w", c.id, err)
		}
		d.Products = append(d.Products, p)
	}

	log.WithFields(log.Fields{
		"users":    4,
		"shop":     d.Shop.Name,
		"products": len(d.Products),
	}).Info("[seed] demo marketplace ready")
	return d, nil
}
