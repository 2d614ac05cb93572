package user

import "time"

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleSupplier Role = "SUPPLIER"
	RoleAdmin    Role = "ADMIN"
	RoleDelivery Role = "DELIVERY"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary is the public projection embedded in order views.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (u *User) Summary() *Summary {
	if u == nil {
		return nil
	}
	return &Summary{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}
