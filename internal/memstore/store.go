// Package memstore keeps users, shops, products and orders in process memory.
// It backs STORE_DRIVER=memory and the service tests. Transactions serialize
// on a single mutex and roll back by restoring a snapshot.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MikeMC777/autoparts-orders/internal/order"
	"github.com/MikeMC777/autoparts-orders/internal/product"
	"github.com/MikeMC777/autoparts-orders/internal/shop"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

type state struct {
	users     map[string]user.User
	shops     map[string]shop.Shop
	products  map[string]product.Product
	addresses map[string]order.Address
	orders    map[string]order.Order
	items     map[string][]order.Item
	history   map[string][]order.StatusHistory
	payments  map[string]order.Payment
}

func newState() *state {
	return &state{
		users:     make(map[string]user.User),
		shops:     make(map[string]shop.Shop),
		products:  make(map[string]product.Product),
		addresses: make(map[string]order.Address),
		orders:    make(map[string]order.Order),
		items:     make(map[string][]order.Item),
		history:   make(map[string][]order.StatusHistory),
		payments:  make(map[string]order.Payment),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySlices[K comparable, V any](m map[K][]V) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, v := range m {
		out[k] = append([]V(nil), v...)
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:     copyMap(s.users),
		shops:     copyMap(s.shops),
		products:  copyMap(s.products),
		addresses: copyMap(s.addresses),
		orders:    copyMap(s.orders),
		items:     copySlices(s.items),
		history:   copySlices(s.history),
		payments:  copyMap(s.payments),
	}
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

type txKey struct{ s *Store }

func (s *Store) inTx(ctx context.Context) bool {
	return ctx.Value(txKey{s}) != nil
}

// lock is a no-op inside WithinTx, which already holds the mutex.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx runs fn with exclusive access to the store. When fn fails every
// change it made is discarded.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.st = snap
		return err
	}
	return nil
}

func (s *Store) Orders() *Orders     { return &Orders{s: s} }
func (s *Store) Products() *Products { return &Products{s: s} }
func (s *Store) Shops() *Shops       { return &Shops{s: s} }
func (s *Store) Users() *Users       { return &Users{s: s} }

var (
	_ order.Repository   = (*Orders)(nil)
	_ product.Repository = (*Products)(nil)
	_ shop.Repository    = (*Shops)(nil)
	_ user.Repository    = (*Users)(nil)
	_ order.Transactor   = (*Store)(nil)
)
