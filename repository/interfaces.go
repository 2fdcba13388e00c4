package repository

import (
	"context"
	"time"

	"orderFulfillmentTracking/models"
)

// ChangeEvent is one delivery from an order change subscription. The event
// carries the full snapshot the store produced for the write.
type ChangeEvent struct {
	Order *models.Order
	At    time.Time
}

// OrderStoreI is the document-store surface for orders. All coordination
// between actors happens through this interface: field-level patches are
// last-write-wins, the status transition uses CompareAndSetStatus only.
type OrderStoreI interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	QueryByField(ctx context.Context, field, value string) ([]*models.Order, error)

	// Patch applies a field-level update keyed by column/field name and
	// refreshes updated_at. Unknown fields are rejected.
	Patch(ctx context.Context, id string, fields map[string]any) error

	// CompareAndSetStatus writes next (plus any extra fields) only while
	// the stored status still equals expected. Returns ErrConflict when a
	// concurrent writer advanced the status first.
	CompareAndSetStatus(ctx context.Context, id string, expected, next models.OrderStatus, extra map[string]any) (*models.Order, error)

	// PatchDriverLocation updates the driver coordinates. Writes against a
	// terminal order are refused with ErrTerminal; the last known position
	// is otherwise left in place indefinitely.
	PatchDriverLocation(ctx context.Context, id string, lat, lng float64) error

	// Subscribe returns a push change feed for one order. The returned
	// cancel func must always be called; it releases the subscription.
	Subscribe(ctx context.Context, orderID string) (<-chan ChangeEvent, func(), error)
}

// NotificationStoreI persists per-recipient notifications.
type NotificationStoreI interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// DiscountStoreI reads product discounts for checkout pricing.
type DiscountStoreI interface {
	Create(ctx context.Context, d *models.Discount) error
	ByProduct(ctx context.Context, productID string) ([]models.Discount, error)
}
