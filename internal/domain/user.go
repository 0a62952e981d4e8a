package domain

import "time"

type MembershipStatus string

const (
	MembershipMain     MembershipStatus = "main"
	MembershipPending  MembershipStatus = "pending"
	MembershipAccepted MembershipStatus = "accepted"
)

// Membership links a user to a basket they may act on.
type Membership struct {
	BasketID string           `json:"basket"`
	Status   MembershipStatus `json:"status"`
}

// Active reports whether the member may act on the basket.
func (m Membership) Active() bool {
	return m.Status == MembershipMain || m.Status == MembershipAccepted
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Address struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Street  string `json:"address"`
}

type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	PasswordHash string       `json:"-"`
	FirstName    string       `json:"firstName,omitempty"`
	LastName     string       `json:"lastName,omitempty"`
	Patronymic   string       `json:"patronymic,omitempty"`
	Address      Address      `json:"deliveryAddress"`
	Role         Role         `json:"role"`
	Baskets      []Membership `json:"baskets"`
	CreatedAt    time.Time    `json:"createdAt"`
}

func (u User) Membership(basketID string) (Membership, bool) {
	for _, m := range u.Baskets {
		if m.BasketID == basketID {
			return m, true
		}
	}
	return Membership{}, false
}

// MainBasketID returns the basket created together with the user.
func (u User) MainBasketID() string {
	for _, m := range u.Baskets {
		if m.Status == MembershipMain {
			return m.BasketID
		}
	}
	return ""
}
