package order

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/MikeMC777/autoparts-orders/internal/events"
	"github.com/MikeMC777/autoparts-orders/internal/metrics"
	"github.com/MikeMC777/autoparts-orders/internal/product"
	"github.com/MikeMC777/autoparts-orders/internal/shop"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

const DefaultCurrency = "XAF"

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role user.Role
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Deps struct {
	Orders   Repository
	Products product.Repository
	Shops    shop.Repository
	Users    user.Repository
	Tx       Transactor
	Events   events.Publisher
	Currency string
	Now      func() time.Time
}

type Service struct {
	orders   Repository
	products product.Repository
	shops    shop.Repository
	users    user.Repository
	tx       Transactor
	events   events.Publisher
	currency string
	now      func() time.Time
	fsm      *StateMachine
}

func NewService(d Deps) *Service {
	s := &Service{
		orders:   d.Orders,
		products: d.Products,
		shops:    d.Shops,
		users:    d.Users,
		tx:       d.Tx,
		events:   d.Events,
		currency: d.Currency,
		now:      d.Now,
		fsm:      DefaultStateMachine,
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.currency == "" {
		s.currency = DefaultCurrency
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Create validates stock for every line, prices the order from the catalog
// and persists it together with the stock decrements in one transaction.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateOrderRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:          uuid.NewString(),
		Number:      NewNumber(now),
		UserID:      actor.ID,
		ShippingFee: req.ShippingFee,
		Discount:    req.Discount,
		Tax:         decimal.Zero,
		Notes:       strings.TrimSpace(req.Notes),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	shopID := strings.TrimSpace(req.ShopID)
	subtotal := decimal.Zero
	for i, in := range req.Items {
		pid := in.ProductID.String()
		p, err := s.products.GetByID(ctx, pid)
		if errors.Is(err, product.ErrNotFound) {
			return nil, notFoundf("product %s not found or inactive", pid)
		}
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			return nil, notFoundf("product %s not found or inactive", pid)
		}
		if !p.Available(in.Quantity) {
			return nil, validationf("insufficient stock for product %s", pid)
		}
		if shopID == "" {
			shopID = p.ShopID
		}
		if p.ShopID != shopID {
			return nil, validationf("product %s does not belong to shop %s", pid, shopID)
		}

		line := LineTotal(p.Price, in.Quantity)
		subtotal = subtotal.Add(line)
		o.Items = append(o.Items, Item{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: p.ID,
			Quantity:  in.Quantity,
			Price:     p.Price,
			Total:     line,
			Status:    ItemActive,
			Position:  i,
		})
	}
	if shopID == "" {
		return nil, validationf("shop could not be determined for this order")
	}
	o.ShopID = shopID
	o.Subtotal = subtotal
	if o.Discount.GreaterThan(subtotal.Add(o.ShippingFee)) {
		return nil, validationf("discount %s exceeds order amount %s", o.Discount, subtotal.Add(o.ShippingFee))
	}
	o.Total = o.ComputeTotal()
	o.StatusHistory = []StatusHistory{{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Status:    StatusPending,
		Note:      "Order created",
		ActorID:   actor.ID,
		CreatedAt: now,
	}}

	var addr *Address
	switch {
	case strings.TrimSpace(req.AddressID) != "":
		id := strings.TrimSpace(req.AddressID)
		if !IsUUID(id) {
			return nil, validationf("address_id %q is not a valid id", id)
		}
		o.AddressID = &id
	case !req.Address.empty():
		addr = &Address{
			ID:        uuid.NewString(),
			UserID:    actor.ID,
			Label:     req.Address.Label,
			Street:    req.Address.Street,
			City:      req.Address.City,
			Region:    req.Address.Region,
			Country:   req.Address.Country,
			Phone:     req.Address.Phone,
			CreatedAt: now,
		}
		o.AddressID = &addr.ID
	}

	var pay *Payment
	if method, ok := ParsePaymentMethod(req.PaymentMethod); ok {
		pay = &Payment{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Amount:    o.Total,
			Currency:  s.currency,
			Method:    method,
			Status:    PaymentPending,
			CreatedAt: now,
		}
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if addr != nil {
			if err := s.orders.CreateAddress(ctx, addr); err != nil {
				return err
			}
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		if pay != nil {
			if err := s.orders.CreatePayment(ctx, pay); err != nil {
				return err
			}
		}
		for _, it := range byProduct(o.Items) {
			err := s.products.DecrementStock(ctx, it.ProductID, it.Quantity)
			if errors.Is(err, product.ErrInsufficientStock) {
				return validationf("insufficient stock for product %s", it.ProductID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.OrdersCreated.Inc()

	created, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderCreated, created, actor, map[string]any{
		"items": len(created.Items),
		"total": created.Total.String(),
	})
	return created, nil
}

// Get resolves an order by id or order number and applies role scoping.
func (s *Service) Get(ctx context.Context, actor Actor, idOrNumber string) (*Order, error) {
	idOrNumber = strings.TrimSpace(idOrNumber)
	var (
		o   *Order
		err error
	)
	if IsUUID(idOrNumber) {
		o, err = s.orders.GetByID(ctx, strings.ToLower(idOrNumber))
	} else {
		o, err = s.orders.GetByNumber(ctx, idOrNumber)
	}
	if errors.Is(err, ErrOrderNotFound) {
		return nil, notFoundf("order %s not found", idOrNumber)
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) authorize(ctx context.Context, actor Actor, o *Order) error {
	switch actor.Role {
	case user.RoleCustomer:
		if o.UserID != actor.ID {
			return forbidden("you can only access your own orders")
		}
	case user.RoleSupplier:
		sh, err := s.shops.GetByOwner(ctx, actor.ID)
		if errors.Is(err, shop.ErrNotFound) {
			return forbidden("no shop is associated with this supplier")
		}
		if err != nil {
			return err
		}
		if sh.ID != o.ShopID {
			return forbidden("this order does not belong to your shop")
		}
	case user.RoleDelivery:
		if o.DeliveryPersonID == nil || *o.DeliveryPersonID != actor.ID {
			return forbidden("this order is not assigned to you")
		}
	}
	return nil
}

// List returns the orders visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor Actor, q ListQuery) ([]Order, error) {
	if q.Status != "" {
		st, ok := ParseStatus(string(q.Status))
		if !ok {
			return nil, validationf("unknown status %q", q.Status)
		}
		q.Status = st
	}
	f := ListFilter{Status: q.Status, Limit: q.Limit, Offset: q.Offset}
	switch actor.Role {
	case user.RoleCustomer:
		f.UserID = actor.ID
	case user.RoleSupplier:
		sh, err := s.shops.GetByOwner(ctx, actor.ID)
		if errors.Is(err, shop.ErrNotFound) {
			return []Order{}, nil
		}
		if err != nil {
			return nil, err
		}
		f.ShopID = sh.ID
	case user.RoleDelivery:
		f.DeliveryPersonID = actor.ID
	}
	f.Normalize()
	return s.orders.List(ctx, f)
}

// UpdateStatus moves an order along the lifecycle. Cancelling puts the stock
// of every still active item back into the catalog.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, idOrNumber string, req UpdateStatusRequest) (*Order, error) {
	to, err := req.Validate()
	if err != nil {
		return nil, err
	}
	o, err := s.Get(ctx, actor, idOrNumber)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if s.fsm.IsTerminal(from) {
		return nil, validationf("cannot transition order from %s to %s: %s is final", from, to, from)
	}
	if !s.fsm.CanTransition(from, to) {
		return nil, validationf("cannot transition order from %s to %s, allowed: %s", from, to, joinStatuses(s.fsm.Next(from)))
	}

	now := s.now()
	note := strings.TrimSpace(req.Note)
	u := StatusUpdate{OrderID: o.ID, From: from, To: to}
	if to == StatusDelivered {
		u.DeliveredAt = &now
	}
	if to == StatusCancelled && note != "" {
		u.CancellationReason = &note
	}

	restored := 0
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		err := s.orders.UpdateStatus(ctx, u)
		if errors.Is(err, ErrStatusConflict) {
			return validationf("order %s changed status concurrently, reload and retry", o.Number)
		}
		if err != nil {
			return err
		}
		if err := s.orders.AppendHistory(ctx, &StatusHistory{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Status:    to,
			Note:      note,
			ActorID:   actor.ID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if to != StatusCancelled {
			return nil
		}

		// Re-read items under the status lock so lines cancelled in the
		// meantime are not restocked twice.
		current, err := s.orders.GetByID(ctx, o.ID)
		if err != nil {
			return err
		}
		for _, it := range byProduct(current.Items) {
			if it.Status != ItemActive {
				continue
			}
			if err := s.products.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
			restored += it.Quantity
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
	metrics.StockRestored.Add(float64(restored))
	log.WithFields(log.Fields{
		"order": o.Number,
		"from":  from,
		"to":    to,
		"actor": actor.ID,
	}).Info("order status updated")

	updated, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderStatusChanged, updated, actor, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	return updated, nil
}

// CancelItem cancels a single line, restores its stock and recomputes the
// order totals over the lines that remain active.
func (s *Service) CancelItem(ctx context.Context, actor Actor, idOrNumber, itemID string, req CancelItemRequest) (*CancelItemResult, error) {
	o, err := s.Get(ctx, actor, idOrNumber)
	if err != nil {
		return nil, err
	}
	it := o.Item(strings.TrimSpace(itemID))
	if it == nil {
		return nil, notFoundf("item %s not found in order %s", itemID, o.Number)
	}
	if it.Status != ItemActive {
		return nil, validationf("item %s is already cancelled", it.ID)
	}
	if !s.fsm.CanTransition(o.Status, StatusCancelled) {
		return nil, validationf("items of a %s order can no longer be cancelled", o.Status)
	}

	var totals Totals
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		err := s.orders.CancelItem(ctx, o.ID, it.ID, strings.TrimSpace(req.Reason))
		if errors.Is(err, ErrItemNotActive) {
			return validationf("item %s is already cancelled", it.ID)
		}
		if err != nil {
			return err
		}

		sub, err := s.orders.ActiveSubtotal(ctx, o.ID)
		if err != nil {
			return err
		}
		// Totals before stock: the order row is locked ahead of the product
		// row, the same order UpdateStatus takes them in.
		totals = recomputeTotals(o, sub)
		err = s.orders.UpdateTotals(ctx, o.ID, totals)
		if errors.Is(err, ErrStatusConflict) {
			return validationf("order %s changed status concurrently, reload and retry", o.Number)
		}
		if err != nil {
			return err
		}
		return s.products.IncrementStock(ctx, it.ProductID, it.Quantity)
	})
	if err != nil {
		return nil, err
	}
	metrics.ItemsCancelled.Inc()
	metrics.StockRestored.Add(float64(it.Quantity))

	s.publish(ctx, events.OrderItemCancelled, o, actor, map[string]any{
		"item_id":  it.ID,
		"quantity": it.Quantity,
		"subtotal": totals.Subtotal.String(),
		"total":    totals.Total.String(),
	})
	return &CancelItemResult{
		OrderID:  o.ID,
		ItemID:   it.ID,
		Subtotal: totals.Subtotal,
		Total:    totals.Total,
		Message:  "Item cancelled successfully",
	}, nil
}

// byProduct returns items sorted by product id so concurrent transactions
// touch product rows in one order.
func byProduct(items []Item) []Item {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b Item) int { return strings.Compare(a.ProductID, b.ProductID) })
	return out
}

func joinStatuses(ss []Status) string {
	names := make([]string, len(ss))
	for i, st := range ss {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

// recomputeTotals keeps shipping fee and tax and clamps the discount so the
// total never goes negative.
func recomputeTotals(o *Order, subtotal decimal.Decimal) Totals {
	discount := o.Discount
	if ceiling := subtotal.Add(o.ShippingFee).Add(o.Tax); discount.GreaterThan(ceiling) {
		discount = ceiling
	}
	return Totals{
		Status:   o.Status,
		Subtotal: subtotal,
		Discount: discount,
		Total:    GrandTotal(subtotal, o.ShippingFee, discount, o.Tax),
	}
}

var closedForDelivery = map[Status]struct{}{
	StatusDelivered: {},
	StatusCancelled: {},
	StatusRefunded:  {},
	StatusReturned:  {},
}

// AssignDelivery sets the courier of an order. The target must be a user
// with the DELIVERY role.
func (s *Service) AssignDelivery(ctx context.Context, actor Actor, idOrNumber string, req AssignDeliveryRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	o, err := s.Get(ctx, actor, idOrNumber)
	if err != nil {
		return nil, err
	}
	if _, closed := closedForDelivery[o.Status]; closed {
		return nil, validationf("cannot assign a delivery person to a %s order", o.Status)
	}

	personID := strings.TrimSpace(req.DeliveryPersonID)
	p, err := s.users.GetByID(ctx, personID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, validationf("delivery person %s not found", personID)
	}
	if err != nil {
		return nil, err
	}
	if p.Role != user.RoleDelivery {
		return nil, validationf("user %s is not a delivery person", personID)
	}

	err = s.orders.AssignDelivery(ctx, o.ID, p.ID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, notFoundf("order %s not found", idOrNumber)
	}
	if err != nil {
		return nil, err
	}

	updated, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderDeliveryAssigned, updated, actor, map[string]any{
		"delivery_person_id": p.ID,
	})
	return updated, nil
}

func (s *Service) publish(ctx context.Context, typ string, o *Order, actor Actor, data map[string]any) {
	e := events.Event{
		Type:        typ,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      string(o.Status),
		ActorID:     actor.ID,
		OccurredAt:  s.now(),
		Data:        data,
	}
	if err := s.events.Publish(ctx, e); err != nil {
		metrics.EventsFailed.WithLabelValues(typ).Inc()
		log.WithFields(log.Fields{
			"event": typ,
			"order": o.Number,
			"error": err,
		}).Warn("order event not published")
	}
}
