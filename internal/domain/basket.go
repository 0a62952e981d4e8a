package domain

import "time"

// Basket is an ordered list of product selections. Duplicate additions are
// kept as separate lines; there is no quantity field.
type Basket struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"ownerId"`
	Lines     []BasketLine `json:"lines"`
	CreatedAt time.Time    `json:"createdAt"`
}

type BasketLine struct {
	ID        int64     `json:"id"`
	ProductID string    `json:"productId"`
	Option    Option    `json:"options"`
	AddedAt   time.Time `json:"addedAt"`
}

func (b Basket) OwnedBy(userID string) bool {
	return b.OwnerID == userID
}
