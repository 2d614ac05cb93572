package product

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the slice of the catalog the order service reads and mutates.
type Product struct {
	ID     string `json:"id"`
	ShopID string `json:"shop_id"`
	Name   string `json:"name"`
	// NUMERIC in Postgres, kept exact
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Available reports whether q units can be sold right now.
func (p *Product) Available(q int) bool {
	return p.IsActive && q > 0 && p.Stock >= q
}
