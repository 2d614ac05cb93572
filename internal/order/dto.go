package order

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductRef accepts a product id sent either as a JSON string or number.
type ProductRef string

func (r *ProductRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = ProductRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("product_id must be a string or a number")
	}
	*r = ProductRef(n.String())
	return nil
}

func (r ProductRef) String() string { return string(r) }

// CreateOrderItem payload de ítem.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	ProductID ProductRef `json:"product_id" swaggertype:"string" example:"brake-pad-001"`
	Quantity  int        `json:"quantity"   example:"2"`
}

// AddressInput is an inline shipping address saved for the customer.
// swagger:model AddressInput
type AddressInput struct {
	Label   string `json:"label"   example:"Home"`
	Street  string `json:"street"  example:"12 Rue Joss"`
	City    string `json:"city"    example:"Douala"`
	Region  string `json:"region"  example:"Littoral"`
	Country string `json:"country" example:"CM"`
	Phone   string `json:"phone"   example:"+237600000000"`
}

func (a *AddressInput) empty() bool {
	return a == nil || strings.TrimSpace(a.Street+a.City+a.Region+a.Country+a.Phone+a.Label) == ""
}

// CreateOrderRequest payload de creación de orden.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Items         []CreateOrderItem `json:"items"`
	AddressID     string            `json:"address_id,omitempty"`
	Address       *AddressInput     `json:"address,omitempty"`
	ShopID        string            `json:"shop_id,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	ShippingFee   decimal.Decimal   `json:"shipping_fee" swaggertype:"string" example:"1500"`
	Discount      decimal.Decimal   `json:"discount"     swaggertype:"string" example:"0"`
	PaymentMethod string            `json:"payment_method,omitempty" example:"mobile-money"`
}

func (r *CreateOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return validationf("order must contain at least one item")
	}
	for i, it := range r.Items {
		if it.ProductID == "" {
			return validationf("item %d: product_id is required", i)
		}
		if it.Quantity <= 0 {
			return validationf("item %d: quantity must be greater than 0", i)
		}
	}
	if r.ShippingFee.IsNegative() {
		return validationf("shipping_fee must not be negative")
	}
	if r.Discount.IsNegative() {
		return validationf("discount must not be negative")
	}
	return nil
}

// UpdateStatusRequest moves an order along the lifecycle.
// swagger:model UpdateStatusRequest
type UpdateStatusRequest struct {
	Status string `json:"status" example:"CONFIRMED"`
	Note   string `json:"note,omitempty"`
}

func (r *UpdateStatusRequest) Validate() (Status, error) {
	if strings.TrimSpace(r.Status) == "" {
		return "", validationf("status is required")
	}
	st, ok := ParseStatus(r.Status)
	if !ok {
		return "", validationf("unknown status %q", r.Status)
	}
	return st, nil
}

// CancelItemRequest cancels a single line.
// swagger:model CancelItemRequest
type CancelItemRequest struct {
	Reason string `json:"reason,omitempty" example:"Out of budget"`
}

// AssignDeliveryRequest sets the courier of an order.
// swagger:model AssignDeliveryRequest
type AssignDeliveryRequest struct {
	DeliveryPersonID string `json:"delivery_person_id" example:"b2f5ff47-2b1e-4f22-8a96-5f3c1f2f2e7b"`
}

func (r *AssignDeliveryRequest) Validate() error {
	if strings.TrimSpace(r.DeliveryPersonID) == "" {
		return validationf("delivery_person_id is required")
	}
	return nil
}

// CancelItemResult confirms an item cancellation.
// swagger:model CancelItemResult
type CancelItemResult struct {
	OrderID  string          `json:"order_id"`
	ItemID   string          `json:"item_id"`
	Subtotal decimal.Decimal `json:"subtotal" swaggertype:"string"`
	Total    decimal.Decimal `json:"total"    swaggertype:"string"`
	Message  string          `json:"message"`
}

// ListQuery narrows GET /orders.
type ListQuery struct {
	Status Status
	Limit  int
	Offset int
}

// ListFilter is what the repository filters on once roles are applied.
type ListFilter struct {
	UserID           string
	ShopID           string
	DeliveryPersonID string
	Status           Status
	Limit            int
	Offset           int
}

func (f *ListFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
