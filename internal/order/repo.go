package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/autoparts-orders/internal/pgdb"
	"github.com/MikeMC777/autoparts-orders/internal/shop"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

// StatusUpdate is applied only while the order still has status From.
type StatusUpdate struct {
	OrderID            string
	From               Status
	To                 Status
	DeliveredAt        *time.Time
	CancellationReason *string
}

// Totals are the monetary fields rewritten after an item cancellation. They
// are applied only while the order still has status Status.
type Totals struct {
	Status   Status
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

type Repository interface {
	CreateAddress(ctx context.Context, a *Address) error
	// Create stores the order with its items and status history.
	Create(ctx context.Context, o *Order) error
	CreatePayment(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, u StatusUpdate) error
	AppendHistory(ctx context.Context, h *StatusHistory) error
	// CancelItem flips an ACTIVE item to CANCELLED, ErrItemNotActive otherwise.
	CancelItem(ctx context.Context, orderID, itemID, reason string) error
	ActiveSubtotal(ctx context.Context, orderID string) (decimal.Decimal, error)
	UpdateTotals(ctx context.Context, orderID string, t Totals) error
	AssignDelivery(ctx context.Context, orderID, personID string) error
}

type PGRepo struct {
	db *pgxpool.Pool
	tx *pgdb.Transactor
}

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db, tx: pgdb.NewTransactor(db)} }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PGRepo) CreateAddress(ctx context.Context, a *Address) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
    INSERT INTO addresses (id, user_id, label, street, city, region, country, phone, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, a.ID, a.UserID, a.Label, a.Street, a.City, a.Region, a.Country, a.Phone, a.CreatedAt)
	return err
}

func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		db := pgdb.Conn(ctx, r.db)
		if _, err := db.Exec(ctx, `
      INSERT INTO orders (id, order_number, user_id, shop_id, address_id, subtotal, shipping_fee,
                          discount, tax, total, notes, status, created_at, updated_at)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
    `, o.ID, o.Number, o.UserID, o.ShopID, o.AddressID, o.Subtotal.String(), o.ShippingFee.String(),
			o.Discount.String(), o.Tax.String(), o.Total.String(), o.Notes, string(o.Status), o.CreatedAt); err != nil {
			return err
		}

		for _, it := range o.Items {
			if _, err := db.Exec(ctx, `
        INSERT INTO order_items (id, order_id, product_id, quantity, price, total, status, position)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
      `, it.ID, o.ID, it.ProductID, it.Quantity, it.Price.String(), it.Total.String(), string(it.Status), it.Position); err != nil {
				return err
			}
		}
		for i := range o.StatusHistory {
			if err := r.AppendHistory(ctx, &o.StatusHistory[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PGRepo) CreatePayment(ctx context.Context, p *Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
    INSERT INTO payments (id, order_id, amount, currency, method, status, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, p.ID, p.OrderID, p.Amount.String(), p.Currency, string(p.Method), p.Status, p.CreatedAt)
	return err
}

const orderSelect = `
    SELECT o.id::text, o.order_number, o.user_id::text, o.shop_id::text, o.address_id::text,
           o.subtotal::text, o.shipping_fee::text, o.discount::text, o.tax::text, o.total::text,
           o.notes, o.status, o.cancellation_reason, o.delivered_at, o.delivery_person_id::text,
           o.created_at, o.updated_at,
           u.name, u.email, u.phone,
           s.name, s.owner_id::text, s.created_at,
           COALESCE(d.name, ''), COALESCE(d.email, ''), COALESCE(d.phone, ''),
           COALESCE(a.user_id::text, ''), COALESCE(a.label, ''), COALESCE(a.street, ''),
           COALESCE(a.city, ''), COALESCE(a.region, ''), COALESCE(a.country, ''),
           COALESCE(a.phone, ''), COALESCE(a.created_at, o.created_at)
    FROM orders o
    JOIN users u ON u.id = o.user_id
    JOIN shops s ON s.id = o.shop_id
    LEFT JOIN users d ON d.id = o.delivery_person_id
    LEFT JOIN addresses a ON a.id = o.address_id`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o      Order
		status string
		money  [5]string
		cust   user.Summary
		sh     shop.Shop
		dp     user.Summary
		addr   Address
	)
	if err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.ShopID, &o.AddressID,
		&money[0], &money[1], &money[2], &money[3], &money[4],
		&o.Notes, &status, &o.CancellationReason, &o.DeliveredAt, &o.DeliveryPersonID,
		&o.CreatedAt, &o.UpdatedAt,
		&cust.Name, &cust.Email, &cust.Phone,
		&sh.Name, &sh.OwnerID, &sh.CreatedAt,
		&dp.Name, &dp.Email, &dp.Phone,
		&addr.UserID, &addr.Label, &addr.Street, &addr.City, &addr.Region, &addr.Country, &addr.Phone, &addr.CreatedAt,
	); err != nil {
		return nil, err
	}
	dst := []*decimal.Decimal{&o.Subtotal, &o.ShippingFee, &o.Discount, &o.Tax, &o.Total}
	for i, s := range money {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		*dst[i] = d
	}
	o.Status = Status(status)

	cust.ID = o.UserID
	o.User = &cust
	sh.ID = o.ShopID
	o.Shop = &sh
	if o.DeliveryPersonID != nil {
		dp.ID = *o.DeliveryPersonID
		o.DeliveryPerson = &dp
	}
	if o.AddressID != nil {
		addr.ID = *o.AddressID
		o.Address = &addr
	}
	return &o, nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, orderSelect+` WHERE o.id::text = $1`, id)
}

func (r *PGRepo) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return r.getOne(ctx, orderSelect+` WHERE o.order_number = $1`, number)
}

func (r *PGRepo) getOne(ctx context.Context, q, arg string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db := pgdb.Conn(ctx, r.db)
	o, err := scanOrder(db.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.items(ctx, db, o.ID); err != nil {
		return nil, err
	}
	if o.StatusHistory, err = r.history(ctx, db, o.ID); err != nil {
		return nil, err
	}
	if o.Payment, err = r.payment(ctx, db, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PGRepo) items(ctx context.Context, db pgdb.DBTX, orderID string) ([]Item, error) {
	rows, err := db.Query(ctx, `
    SELECT id::text, order_id::text, product_id, quantity, price::text, total::text, status,
           cancellation_reason, position
    FROM order_items WHERE order_id = $1
    ORDER BY position
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it           Item
			price, total string
			status       string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price, &total, &status,
			&it.CancellationReason, &it.Position); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if it.Total, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		it.Status = ItemStatus(status)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGRepo) history(ctx context.Context, db pgdb.DBTX, orderID string) ([]StatusHistory, error) {
	rows, err := db.Query(ctx, `
    SELECT id::text, order_id::text, status, note, COALESCE(actor_id::text, ''), created_at
    FROM order_status_history WHERE order_id = $1
    ORDER BY created_at, id
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusHistory
	for rows.Next() {
		var (
			h      StatusHistory
			status string
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &status, &h.Note, &h.ActorID, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Status = Status(status)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PGRepo) payment(ctx context.Context, db pgdb.DBTX, orderID string) (*Payment, error) {
	var (
		p      Payment
		amount string
		method string
	)
	err := db.QueryRow(ctx, `
    SELECT id::text, order_id::text, amount::text, currency, method, status, created_at
    FROM payments WHERE order_id = $1
  `, orderID).Scan(&p.ID, &p.OrderID, &amount, &p.Currency, &method, &p.Status, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	p.Method = PaymentMethod(method)
	return &p, nil
}

func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	f.Normalize()
	rows, err := pgdb.Conn(ctx, r.db).Query(ctx, orderSelect+`
    WHERE ($1 = '' OR o.user_id::text = $1)
      AND ($2 = '' OR o.shop_id::text = $2)
      AND ($3 = '' OR o.delivery_person_id::text = $3)
      AND ($4 = '' OR o.status = $4)
    ORDER BY o.created_at DESC, o.order_number DESC
    LIMIT $5 OFFSET $6
  `, f.UserID, f.ShopID, f.DeliveryPersonID, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateStatus(ctx context.Context, u StatusUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
    UPDATE orders
    SET status = $3,
        delivered_at = COALESCE($4, delivered_at),
        cancellation_reason = COALESCE($5, cancellation_reason),
        updated_at = NOW()
    WHERE id = $1 AND status = $2
  `, u.OrderID, string(u.From), string(u.To), u.DeliveredAt, u.CancellationReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *PGRepo) AppendHistory(ctx context.Context, h *StatusHistory) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
    INSERT INTO order_status_history (id, order_id, status, note, actor_id, created_at)
    VALUES ($1,$2,$3,$4,$5,$6)
  `, h.ID, h.OrderID, string(h.Status), h.Note, nullable(h.ActorID), h.CreatedAt)
	return err
}

func (r *PGRepo) CancelItem(ctx context.Context, orderID, itemID, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
    UPDATE order_items
    SET status = 'CANCELLED', cancellation_reason = $3
    WHERE order_id = $1 AND id::text = $2 AND status = 'ACTIVE'
  `, orderID, itemID, nullable(reason))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotActive
	}
	return nil
}

func (r *PGRepo) ActiveSubtotal(ctx context.Context, orderID string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var sum string
	if err := pgdb.Conn(ctx, r.db).QueryRow(ctx, `
    SELECT COALESCE(SUM(total), 0)::text FROM order_items
    WHERE order_id = $1 AND status = 'ACTIVE'
  `, orderID).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
}

func (r *PGRepo) UpdateTotals(ctx context.Context, orderID string, t Totals) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
    UPDATE orders
    SET subtotal = $2, discount = $3, total = $4, updated_at = NOW()
    WHERE id = $1 AND status = $5
  `, orderID, t.Subtotal.String(), t.Discount.String(), t.Total.String(), string(t.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *PGRepo) AssignDelivery(ctx context.Context, orderID, personID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := pgdb.Conn(ctx, r.db).Exec(ctx, `
    UPDATE orders
    SET delivery_person_id = $2, updated_at = NOW()
    WHERE id = $1
  `, orderID, personID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
