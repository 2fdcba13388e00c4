package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"orderFulfillmentTracking/models"
)

// NotificationRepository is the SQLite-backed notification store.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("notification is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var expires any
	if n.ExpiresAt != nil {
		expires = n.ExpiresAt.UTC().Format(timeFmt)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_id, order_id, title, body, type, read, created_at, expires_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, n.RecipientID, n.OrderID, n.Title, n.Body, string(n.Type), n.Read, n.CreatedAt.UTC().Format(timeFmt), expires)
	return err
}

// ListByRecipient returns a recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]*models.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recipient_id, order_id, title, body, type, read, created_at, expires_at FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, id DESC`,
		recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		var typ, createdAt string
		var expiresAt sql.NullString
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.OrderID, &n.Title, &n.Body, &typ, &n.Read, &createdAt, &expiresAt); err != nil {
			return nil, err
		}
		n.Type = models.NotificationType(typ)
		if n.CreatedAt, err = time.Parse(timeFmt, createdAt); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			t, err := time.Parse(timeFmt, expiresAt.String)
			if err != nil {
				return nil, err
			}
			n.ExpiresAt = &t
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkRead flags a notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a notification (explicit user action).
func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	return err
}

// DeleteExpired is the expiry sweep. Returns the number of rows removed.
func (r *NotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at < ?`, now.UTC().Format(timeFmt))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
