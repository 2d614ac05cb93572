package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/autoparts-orders/internal/shop"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

type ItemStatus string

const (
	ItemActive    ItemStatus = "ACTIVE"
	ItemCancelled ItemStatus = "CANCELLED"
)

type Order struct {
	ID                 string          `json:"id"`
	Number             string          `json:"order_number"`
	UserID             string          `json:"user_id"`
	ShopID             string          `json:"shop_id"`
	AddressID          *string         `json:"address_id,omitempty"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	ShippingFee        decimal.Decimal `json:"shipping_fee"`
	Discount           decimal.Decimal `json:"discount"`
	Tax                decimal.Decimal `json:"tax"`
	Total              decimal.Decimal `json:"total"`
	Notes              string          `json:"notes,omitempty"`
	Status             Status          `json:"status"`
	CancellationReason *string         `json:"cancellation_reason,omitempty"`
	DeliveredAt        *time.Time      `json:"delivered_at,omitempty"`
	DeliveryPersonID   *string         `json:"delivery_person_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	// Composed on reads.
	Items          []Item          `json:"items,omitempty"`
	StatusHistory  []StatusHistory `json:"status_history,omitempty"`
	Payment        *Payment        `json:"payment,omitempty"`
	Address        *Address        `json:"address,omitempty"`
	User           *user.Summary   `json:"user,omitempty"`
	Shop           *shop.Shop      `json:"shop,omitempty"`
	DeliveryPerson *user.Summary   `json:"delivery_person,omitempty"`
}

// GrandTotal is subtotal + shipping fee - discount + tax.
func GrandTotal(subtotal, shippingFee, discount, tax decimal.Decimal) decimal.Decimal {
	return subtotal.Add(shippingFee).Sub(discount).Add(tax)
}

func (o *Order) ComputeTotal() decimal.Decimal {
	return GrandTotal(o.Subtotal, o.ShippingFee, o.Discount, o.Tax)
}

func (o *Order) Item(id string) *Item {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i]
		}
	}
	return nil
}

type Item struct {
	ID                 string          `json:"id"`
	OrderID            string          `json:"order_id"`
	ProductID          string          `json:"product_id"`
	Quantity           int             `json:"quantity"`
	Price              decimal.Decimal `json:"price"`
	Total              decimal.Decimal `json:"total"`
	Status             ItemStatus      `json:"status"`
	CancellationReason *string         `json:"cancellation_reason,omitempty"`
	Position           int             `json:"-"`
}

// LineTotal is price × quantity.
func LineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}

// ActiveSubtotal sums the line totals of items that are still active.
func ActiveSubtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if it.Status == ItemActive {
			sum = sum.Add(it.Total)
		}
	}
	return sum
}

type StatusHistory struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentMethod string

const (
	PaymentMobileMoney    PaymentMethod = "MOBILE_MONEY"
	PaymentCard           PaymentMethod = "CARD"
	PaymentBankTransfer   PaymentMethod = "BANK_TRANSFER"
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentWallet         PaymentMethod = "WALLET"
)

var paymentMethods = map[PaymentMethod]struct{}{
	PaymentMobileMoney:    {},
	PaymentCard:           {},
	PaymentBankTransfer:   {},
	PaymentCashOnDelivery: {},
	PaymentWallet:         {},
}

// ParsePaymentMethod normalizes "mobile-money" style input and reports
// whether it names an accepted method.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m := PaymentMethod(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	_, ok := paymentMethods[m]
	return m, ok
}

type Payment struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Method    PaymentMethod   `json:"method"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

const PaymentPending = "PENDING"

type Address struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"label,omitempty"`
	Street    string    `json:"street,omitempty"`
	City      string    `json:"city,omitempty"`
	Region    string    `json:"region,omitempty"`
	Country   string    `json:"country,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
