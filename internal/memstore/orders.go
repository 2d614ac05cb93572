package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/autoparts-orders/internal/order"
)

type Orders struct{ s *Store }

func (r *Orders) CreateAddress(ctx context.Context, a *order.Address) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.users[a.UserID]; !ok {
		return fmt.Errorf("address owner %s does not exist", a.UserID)
	}
	r.s.st.addresses[a.ID] = *a
	return nil
}

func (r *Orders) Create(ctx context.Context, o *order.Order) error {
	defer r.s.lock(ctx)()
	st := r.s.st
	if _, ok := st.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	for _, existing := range st.orders {
		if existing.Number == o.Number {
			return fmt.Errorf("order number %s already exists", o.Number)
		}
	}
	if _, ok := st.users[o.UserID]; !ok {
		return fmt.Errorf("customer %s does not exist", o.UserID)
	}
	if _, ok := st.shops[o.ShopID]; !ok {
		return fmt.Errorf("shop %s does not exist", o.ShopID)
	}
	if o.AddressID != nil {
		if _, ok := st.addresses[*o.AddressID]; !ok {
			return fmt.Errorf("address %s does not exist", *o.AddressID)
		}
	}

	flat := *o
	flat.Items, flat.StatusHistory = nil, nil
	flat.Payment, flat.Address, flat.User, flat.Shop, flat.DeliveryPerson = nil, nil, nil, nil, nil
	st.orders[o.ID] = flat
	st.items[o.ID] = append([]order.Item(nil), o.Items...)
	st.history[o.ID] = append([]order.StatusHistory(nil), o.StatusHistory...)
	return nil
}

func (r *Orders) CreatePayment(ctx context.Context, p *order.Payment) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.payments[p.OrderID]; ok {
		return fmt.Errorf("order %s already has a payment", p.OrderID)
	}
	r.s.st.payments[p.OrderID] = *p
	return nil
}

// compose builds the read view of a stored order. Callers hold the lock.
func (r *Orders) compose(o order.Order) *order.Order {
	st := r.s.st
	o.Items = append([]order.Item(nil), st.items[o.ID]...)
	o.StatusHistory = append([]order.StatusHistory(nil), st.history[o.ID]...)
	if p, ok := st.payments[o.ID]; ok {
		o.Payment = &p
	}
	if o.AddressID != nil {
		if a, ok := st.addresses[*o.AddressID]; ok {
			o.Address = &a
		}
	}
	if u, ok := st.users[o.UserID]; ok {
		o.User = u.Summary()
	}
	if sh, ok := st.shops[o.ShopID]; ok {
		o.Shop = &sh
	}
	if o.DeliveryPersonID != nil {
		if d, ok := st.users[*o.DeliveryPersonID]; ok {
			o.DeliveryPerson = d.Summary()
		}
	}
	return &o
}

func (r *Orders) GetByID(ctx context.Context, id string) (*order.Order, error) {
	defer r.s.lock(ctx)()
	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return r.compose(o), nil
}

func (r *Orders) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	defer r.s.lock(ctx)()
	for _, o := range r.s.st.orders {
		if o.Number == number {
			return r.compose(o), nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (r *Orders) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	defer r.s.lock(ctx)()
	f.Normalize()

	var matched []order.Order
	for _, o := range r.s.st.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.ShopID != "" && o.ShopID != f.ShopID {
			continue
		}
		if f.DeliveryPersonID != "" && (o.DeliveryPersonID == nil || *o.DeliveryPersonID != f.DeliveryPersonID) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Number > matched[j].Number
	})

	out := []order.Order{}
	for i := f.Offset; i < len(matched) && len(out) < f.Limit; i++ {
		out = append(out, *r.compose(matched[i]))
	}
	return out, nil
}

func (r *Orders) UpdateStatus(ctx context.Context, u order.StatusUpdate) error {
	defer r.s.lock(ctx)()
	o, ok := r.s.st.orders[u.OrderID]
	if !ok || o.Status != u.From {
		return order.ErrStatusConflict
	}
	o.Status = u.To
	if u.DeliveredAt != nil {
		o.DeliveredAt = u.DeliveredAt
	}
	if u.CancellationReason != nil {
		o.CancellationReason = u.CancellationReason
	}
	o.UpdatedAt = r.s.now()
	r.s.st.orders[o.ID] = o
	return nil
}

func (r *Orders) AppendHistory(ctx context.Context, h *order.StatusHistory) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.orders[h.OrderID]; !ok {
		return order.ErrOrderNotFound
	}
	r.s.st.history[h.OrderID] = append(r.s.st.history[h.OrderID], *h)
	return nil
}

func (r *Orders) CancelItem(ctx context.Context, orderID, itemID, reason string) error {
	defer r.s.lock(ctx)()
	items := r.s.st.items[orderID]
	for i := range items {
		if items[i].ID != itemID {
			continue
		}
		if items[i].Status != order.ItemActive {
			return order.ErrItemNotActive
		}
		items[i].Status = order.ItemCancelled
		if reason != "" {
			items[i].CancellationReason = &reason
		}
		return nil
	}
	return order.ErrItemNotActive
}

func (r *Orders) ActiveSubtotal(ctx context.Context, orderID string) (decimal.Decimal, error) {
	defer r.s.lock(ctx)()
	return order.ActiveSubtotal(r.s.st.items[orderID]), nil
}

func (r *Orders) UpdateTotals(ctx context.Context, orderID string, t order.Totals) error {
	defer r.s.lock(ctx)()
	o, ok := r.s.st.orders[orderID]
	if !ok || o.Status != t.Status {
		return order.ErrStatusConflict
	}
	o.Subtotal, o.Discount, o.Total = t.Subtotal, t.Discount, t.Total
	o.UpdatedAt = r.s.now()
	r.s.st.orders[orderID] = o
	return nil
}

func (r *Orders) AssignDelivery(ctx context.Context, orderID, personID string) error {
	defer r.s.lock(ctx)()
	o, ok := r.s.st.orders[orderID]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.DeliveryPersonID = &personID
	o.UpdatedAt = r.s.now()
	r.s.st.orders[orderID] = o
	return nil
}
