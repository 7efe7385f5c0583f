package models

import (
	"encoding/json"
	"time"
)

// AbandonedCart is a persisted cart that was never converted into an order.
type AbandonedCart struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:255;index" json:"email"`
	CartContents string    `gorm:"type:text" json:"cart_contents"` // JSON, see CartContents
	CartTotal    float64   `json:"cart_total"`
	Currency     string    `gorm:"size:10" json:"currency"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
	Recovered    bool      `gorm:"default:false" json:"recovered"`
	ReminderSent bool      `gorm:"default:false" json:"reminder_sent"`
	OrderID      *uint     `json:"order_id"`
}

func (AbandonedCart) TableName() string { return "abandoned_carts" }

// ExcursionItem is the single-excursion shorthand cart payload.
type ExcursionItem struct {
	ProductID    uint   `json:"product_id"`
	Participants int    `json:"participants"`
	StartDate    string `json:"start_date"`
}

// LineItem is one entry of a full keyed cart payload.
type LineItem struct {
	ProductID uint    `json:"product_id"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"line_total"`
}

// CartContents holds either a single-excursion shorthand or a keyed map of
// line items. Exactly one of Excursion / Items is set after decoding.
type CartContents struct {
	Excursion *ExcursionItem      `json:"-"`
	Items     map[string]LineItem `json:"-"`
}

// UnmarshalJSON decodes the two accepted cart payload shapes. A payload with
// a product_id at the top level is the shorthand; anything else is treated
// as a keyed line-item map.
func (c *CartContents) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if _, ok := probe["product_id"]; ok {
		var item ExcursionItem
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		c.Excursion = &item
		c.Items = nil
		return nil
	}

	var items map[string]LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	c.Items = items
	c.Excursion = nil
	return nil
}

// MarshalJSON encodes back to the shape the contents were decoded from.
func (c CartContents) MarshalJSON() ([]byte, error) {
	if c.Excursion != nil {
		return json.Marshal(c.Excursion)
	}
	if c.Items == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Items)
}

// Contents decodes the stored cart payload.
func (a *AbandonedCart) Contents() (*CartContents, error) {
	var c CartContents
	if a.CartContents == "" {
		return &c, nil
	}
	if err := json.Unmarshal([]byte(a.CartContents), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ItemCount returns the number of line items in the cart (1 for shorthand).
func (a *AbandonedCart) ItemCount() int {
	c, err := a.Contents()
	if err != nil {
		return 0
	}
	if c.Excursion != nil {
		return 1
	}
	return len(c.Items)
}
