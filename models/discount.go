package models

import "time"

// Discount is a time-windowed percentage discount on a single product.
type Discount struct {
	ID                 string    `db:"id" json:"id" bson:"_id"`
	ProductID          string    `db:"product_id" json:"product_id" bson:"productId"`
	DiscountPercentage float64   `db:"discount_percentage" json:"discount_percentage" bson:"discountPercentage"`
	StartDate          time.Time `db:"start_date" json:"start_date" bson:"startDate"`
	EndDate            time.Time `db:"end_date" json:"end_date" bson:"endDate"`
}

// IsActive reports whether the discount window covers now. Both boundaries
// are inclusive.
func (d Discount) IsActive(now time.Time) bool {
	return !now.Before(d.StartDate) && !now.After(d.EndDate)
}

// BestActiveDiscount picks the discount to apply for a product when several
// are active at once: highest percentage wins, ties broken by the latest
// start date, then by id. The result is deterministic regardless of the
// order the store returns discounts in.
func BestActiveDiscount(discounts []Discount, productID string, now time.Time) (Discount, bool) {
	var best Discount
	found := false
	for _, d := range discounts {
		if d.ProductID != productID || !d.IsActive(now) {
			continue
		}
		if !found || better(d, best) {
			best = d
			found = true
		}
	}
	return best, found
}

func better(a, b Discount) bool {
	if a.DiscountPercentage != b.DiscountPercentage {
		return a.DiscountPercentage > b.DiscountPercentage
	}
	if !a.StartDate.Equal(b.StartDate) {
		return a.StartDate.After(b.StartDate)
	}
	return a.ID > b.ID
}
