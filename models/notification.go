package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies what produced a notification.
type NotificationType string

const (
	// NotificationTypeOrderStatus is the only type this core produces:
	// a notification created as a side effect of an order status change.
	NotificationTypeOrderStatus NotificationType = "order_status"
)

// DefaultNotificationTTL is applied when a notification is created without
// an explicit expiry.
const DefaultNotificationTTL = 30 * 24 * time.Hour

// Notification is a persisted, per-recipient message about an order event.
// Lifecycle: created, optionally marked read, then deleted either by the
// recipient or by the expiry sweep.
type Notification struct {
	ID          string           `db:"id" json:"id" bson:"_id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id" bson:"recipientId"`
	OrderID     string           `db:"order_id" json:"order_id,omitempty" bson:"orderId,omitempty"`
	Title       string           `db:"title" json:"title" bson:"title"`
	Body        string           `db:"body" json:"body" bson:"body"`
	Type        NotificationType `db:"type" json:"type" bson:"type"`
	Read        bool             `db:"read" json:"read" bson:"read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at" bson:"createdAt"`
	ExpiresAt   *time.Time       `db:"expires_at" json:"expires_at,omitempty" bson:"expiresAt,omitempty"`
}

// NewNotification builds an unread order-status notification with the
// default expiry.
func NewNotification(recipientID, orderID, title, body string, now time.Time) *Notification {
	now = now.UTC()
	exp := now.Add(DefaultNotificationTTL)
	return &Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		OrderID:     orderID,
		Title:       title,
		Body:        body,
		Type:        NotificationTypeOrderStatus,
		CreatedAt:   now,
		ExpiresAt:   &exp,
	}
}

// Expired reports whether the notification should be removed by the sweep.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}
