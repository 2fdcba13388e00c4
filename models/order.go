package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the current progress of an order through fulfillment.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusInTransit  OrderStatus = "in_transit"
	OrderStatusReceived   OrderStatus = "received"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ShippingType distinguishes a saved address from one entered at checkout.
type ShippingType string

const (
	ShippingTypeSaved ShippingType = "saved"
	ShippingTypeNew   ShippingType = "new"
)

// MoneyTolerance is the float tolerance used when checking the frozen
// money invariant total == subtotal - discountTotal + shippingCost.
const MoneyTolerance = 1e-6

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// DeliveryActive reports whether driver-location streaming is active for
// this status. Only shipped and in_transit orders are tracked live.
func (s OrderStatus) DeliveryActive() bool {
	return s == OrderStatusShipped || s == OrderStatusInTransit
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusInTransit, OrderStatusReceived,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// LineItem is a single purchased product line. Line items are frozen at
// order creation and never recomputed afterwards.
type LineItem struct {
	ProductID       string  `db:"product_id" json:"product_id" bson:"productId"`
	Title           string  `db:"title" json:"title" bson:"title"`
	UnitPrice       float64 `db:"unit_price" json:"unit_price" bson:"unitPrice"`
	Quantity        int     `db:"quantity" json:"quantity" bson:"quantity"`
	SelectedVariant string  `db:"selected_variant" json:"selected_variant,omitempty" bson:"selectedVariant,omitempty"`
}

// Order is the central fulfillment entity, shared by customer, driver and
// admin through the document store. Status mutations go through the
// lifecycle state machine only.
type Order struct {
	ID  string `db:"id" json:"id" bson:"_id"`
	Seq int64  `db:"seq" json:"seq" bson:"seq"`

	Status OrderStatus `db:"status" json:"status" bson:"status"`
	Items  []LineItem  `db:"-" json:"items" bson:"items"`

	// Money fields are derived once at creation and frozen.
	Subtotal      float64 `db:"subtotal" json:"subtotal" bson:"subtotal"`
	DiscountTotal float64 `db:"discount_total" json:"discount_total" bson:"discountTotal"`
	ShippingCost  float64 `db:"shipping_cost" json:"shipping_cost" bson:"shippingCost"`
	Total         float64 `db:"total" json:"total" bson:"total"`

	ShippingAddress string       `db:"shipping_address" json:"shipping_address" bson:"shippingAddress"`
	ShippingPhone   string       `db:"shipping_phone" json:"shipping_phone" bson:"shippingPhone"`
	ShippingZone    string       `db:"shipping_zone" json:"shipping_zone" bson:"shippingZone"`
	ShippingType    ShippingType `db:"shipping_type" json:"shipping_type" bson:"shippingType"`

	// Set only by the transition to received.
	RecipientName   string `db:"recipient_name" json:"recipient_name,omitempty" bson:"recipientName,omitempty"`
	DeliveryRemarks string `db:"delivery_remarks" json:"delivery_remarks,omitempty" bson:"deliveryRemarks,omitempty"`

	// Destination coordinates are set once (geocoded at creation) and
	// immutable afterwards. Driver coordinates are patched continuously
	// while the order is delivery-active. Pointers distinguish "not yet
	// known" from a zero coordinate.
	DeliveryLat *float64 `db:"delivery_lat" json:"delivery_lat,omitempty" bson:"deliveryLat,omitempty"`
	DeliveryLng *float64 `db:"delivery_lng" json:"delivery_lng,omitempty" bson:"deliveryLng,omitempty"`
	DriverLat   *float64 `db:"driver_lat" json:"driver_lat,omitempty" bson:"driverLat,omitempty"`
	DriverLng   *float64 `db:"driver_lng" json:"driver_lng,omitempty" bson:"driverLng,omitempty"`

	CustomerID string  `db:"customer_id" json:"customer_id" bson:"customerId"`
	DriverID   *string `db:"driver_id" json:"driver_id,omitempty" bson:"driverId,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at" bson:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" bson:"updatedAt"`
}

// Shipping groups the checkout shipping inputs for NewOrder.
type Shipping struct {
	Address string
	Phone   string
	Zone    string
	Type    ShippingType
	Cost    float64
}

// NewOrder builds a pending order from the checkout inputs, applying the
// best active discount per product and freezing all money fields. Seq is
// assigned by the store on create.
func NewOrder(customerID string, items []LineItem, shipping Shipping, discounts []Discount, now time.Time) (*Order, error) {
	if customerID == "" {
		return nil, errors.New("customer id is required")
	}
	if len(items) == 0 {
		return nil, errors.New("order must have at least one item")
	}
	if shipping.Type != ShippingTypeSaved && shipping.Type != ShippingTypeNew {
		return nil, fmt.Errorf("invalid shipping type %q", shipping.Type)
	}
	if shipping.Address == "" {
		return nil, errors.New("shipping address is required")
	}

	var subtotal, discountTotal float64
	for i, it := range items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("item %d: quantity must be positive", i)
		}
		if it.UnitPrice < 0 {
			return nil, fmt.Errorf("item %d: unit price must not be negative", i)
		}
		line := it.UnitPrice * float64(it.Quantity)
		subtotal += line
		if d, ok := BestActiveDiscount(discounts, it.ProductID, now); ok {
			discountTotal += line * d.DiscountPercentage / 100
		}
	}

	now = now.UTC()
	o := &Order{
		ID:              uuid.NewString(),
		Status:          OrderStatusPending,
		Items:           items,
		Subtotal:        subtotal,
		DiscountTotal:   discountTotal,
		ShippingCost:    shipping.Cost,
		Total:           subtotal - discountTotal + shipping.Cost,
		ShippingAddress: shipping.Address,
		ShippingPhone:   shipping.Phone,
		ShippingZone:    shipping.Zone,
		ShippingType:    shipping.Type,
		CustomerID:      customerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return o, nil
}

// CheckMoneyInvariant verifies total == subtotal - discountTotal +
// shippingCost within MoneyTolerance.
func (o *Order) CheckMoneyInvariant() error {
	want := o.Subtotal - o.DiscountTotal + o.ShippingCost
	if math.Abs(o.Total-want) > MoneyTolerance {
		return fmt.Errorf("order %s: total %.6f does not match %.6f", o.ID, o.Total, want)
	}
	return nil
}
