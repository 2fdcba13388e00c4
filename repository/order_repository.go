package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"orderFulfillmentTracking/models"
)

const opTimeout = 3 * time.Second

var (
	_ OrderStoreI        = (*OrderRepository)(nil)
	_ NotificationStoreI = (*NotificationRepository)(nil)
	_ DiscountStoreI     = (*DiscountRepository)(nil)
)

// timeFmt keeps the fractional seconds fixed width so that SQL text
// comparison and ORDER BY agree with chronological order. RFC3339Nano trims
// trailing zeros and breaks that at sub-second boundaries.
const timeFmt = "2006-01-02T15:04:05.000000000Z07:00"

// OrderRepository is the SQLite-backed order store. Every successful write
// publishes the fresh snapshot to the in-process change feed, which backs
// Subscribe for single-process deployments and tests.
type OrderRepository struct {
	db   *sql.DB
	feed *changeFeed
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db, feed: newChangeFeed()}
}

const orderColumns = `id, seq, status, subtotal, discount_total, shipping_cost, total,
shipping_address, shipping_phone, shipping_zone, shipping_type,
recipient_name, delivery_remarks, delivery_lat, delivery_lng, driver_lat, driver_lng,
customer_id, driver_id, created_at, updated_at`

// patchableColumns are the fields Patch may touch. Status is deliberately
// absent: status writes go through CompareAndSetStatus only. Money fields
// and items are frozen at creation.
var patchableColumns = map[string]bool{
	"shipping_address": true,
	"shipping_phone":   true,
	"shipping_zone":    true,
	"shipping_type":    true,
	"recipient_name":   true,
	"delivery_remarks": true,
	"delivery_lat":     true,
	"delivery_lng":     true,
	"driver_lat":       true,
	"driver_lng":       true,
	"driver_id":        true,
}

// casExtraColumns are the transition-specific fields a status CAS may stamp.
var casExtraColumns = map[string]bool{
	"recipient_name":   true,
	"delivery_remarks": true,
	"driver_id":        true,
}

var queryableColumns = map[string]bool{
	"customer_id": true,
	"driver_id":   true,
	"status":      true,
}

// Create inserts a new order with its items, assigning the next sequence
// number. Status defaults to pending if empty.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o == nil {
		return nil, errors.New("order is nil")
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT next FROM order_seq WHERE id = 1`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE order_seq SET next = next + 1 WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("advance seq: %w", err)
	}
	o.Seq = seq

	_, err = tx.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Seq, string(o.Status), o.Subtotal, o.DiscountTotal, o.ShippingCost, o.Total,
		o.ShippingAddress, o.ShippingPhone, o.ShippingZone, string(o.ShippingType),
		o.RecipientName, o.DeliveryRemarks, o.DeliveryLat, o.DeliveryLng, o.DriverLat, o.DriverLng,
		o.CustomerID, o.DriverID, o.CreatedAt.UTC().Format(timeFmt), o.UpdatedAt.UTC().Format(timeFmt))
	if err != nil {
		return nil, err
	}
	for i, it := range o.Items {
		_, err = tx.ExecContext(ctx, `INSERT INTO order_items (order_id, position, product_id, title, unit_price, quantity, selected_variant) VALUES (?,?,?,?,?,?,?)`,
			o.ID, i, it.ProductID, it.Title, it.UnitPrice, it.Quantity, it.SelectedVariant)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created, err := r.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("created order not found: id=%s", o.ID)
	}
	r.feed.publish(ChangeEvent{Order: created, At: created.UpdatedAt})
	return created, nil
}

// GetByID fetches an order with its items. Returns (nil, nil) when missing.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// QueryByField lists orders matching one indexed field, newest first.
func (r *OrderRepository) QueryByField(ctx context.Context, field, value string) ([]*models.Order, error) {
	if !queryableColumns[field] {
		return nil, fmt.Errorf("field %q is not queryable", field)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+field+` = ? ORDER BY created_at DESC, seq DESC`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Patch applies a field-level last-write-wins update and refreshes
// updated_at. Delivery coordinates are set-once: an existing value is kept.
func (r *OrderRepository) Patch(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	set := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for _, col := range sortedKeys(fields) {
		if !patchableColumns[col] {
			return fmt.Errorf("field %q is not patchable", col)
		}
		if col == "delivery_lat" || col == "delivery_lng" {
			set = append(set, col+" = COALESCE("+col+", ?)")
		} else {
			set = append(set, col+" = ?")
		}
		args = append(args, fields[col])
	}
	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(timeFmt), id)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	r.publishCurrent(ctx, id)
	return nil
}

// CompareAndSetStatus performs the conditional status transition write.
func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next models.OrderStatus, extra map[string]any) (*models.Order, error) {
	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(next), time.Now().UTC().Format(timeFmt)}
	for _, col := range sortedKeys(extra) {
		if !casExtraColumns[col] {
			return nil, fmt.Errorf("field %q cannot be stamped on a transition", col)
		}
		set = append(set, col+" = ?")
		args = append(args, extra[col])
	}
	args = append(args, id, string(expected))

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET `+strings.Join(set, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.feed.publish(ChangeEvent{Order: cur, At: cur.UpdatedAt})
	return cur, nil
}

// PatchDriverLocation writes the driver position unless the order already
// reached a terminal state.
func (r *OrderRepository) PatchDriverLocation(ctx context.Context, id string, lat, lng float64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET driver_lat = ?, driver_lng = ?, updated_at = ? WHERE id = ? AND status NOT IN (?, ?)`,
		lat, lng, time.Now().UTC().Format(timeFmt), id,
		string(models.OrderStatusCompleted), string(models.OrderStatusCancelled))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrNotFound
		}
		return ErrTerminal
	}
	r.publishCurrent(ctx, id)
	return nil
}

// Subscribe attaches to the in-process change feed for one order.
func (r *OrderRepository) Subscribe(ctx context.Context, orderID string) (<-chan ChangeEvent, func(), error) {
	ch, cancel := r.feed.subscribe(orderID)
	stop := context.AfterFunc(ctx, cancel)
	return ch, func() { stop(); cancel() }, nil
}

func (r *OrderRepository) publishCurrent(ctx context.Context, id string) {
	cur, err := r.GetByID(ctx, id)
	if err != nil || cur == nil {
		return
	}
	r.feed.publish(ChangeEvent{Order: cur, At: cur.UpdatedAt})
}

func (r *OrderRepository) loadItems(ctx context.Context, o *models.Order) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, title, unit_price, quantity, selected_variant FROM order_items WHERE order_id = ? ORDER BY position`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it models.LineItem
		if err := rows.Scan(&it.ProductID, &it.Title, &it.UnitPrice, &it.Quantity, &it.SelectedVariant); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var status, shippingType, createdAt, updatedAt string
	var deliveryLat, deliveryLng, driverLat, driverLng sql.NullFloat64
	var driverID sql.NullString
	err := row.Scan(&o.ID, &o.Seq, &status, &o.Subtotal, &o.DiscountTotal, &o.ShippingCost, &o.Total,
		&o.ShippingAddress, &o.ShippingPhone, &o.ShippingZone, &shippingType,
		&o.RecipientName, &o.DeliveryRemarks, &deliveryLat, &deliveryLng, &driverLat, &driverLng,
		&o.CustomerID, &driverID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	o.ShippingType = models.ShippingType(shippingType)
	o.DeliveryLat = nullFloat(deliveryLat)
	o.DeliveryLng = nullFloat(deliveryLng)
	o.DriverLat = nullFloat(driverLat)
	o.DriverLng = nullFloat(driverLng)
	if driverID.Valid {
		v := driverID.String
		o.DriverID = &v
	}
	if o.CreatedAt, err = time.Parse(timeFmt, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if o.UpdatedAt, err = time.Parse(timeFmt, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &o, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
