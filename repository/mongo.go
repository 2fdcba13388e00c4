package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"orderFulfillmentTracking/models"
)

// colToBson maps the store's field vocabulary (shared with the SQLite
// adapter) to the bson document keys.
var colToBson = map[string]string{
	"shipping_address": "shippingAddress",
	"shipping_phone":   "shippingPhone",
	"shipping_zone":    "shippingZone",
	"shipping_type":    "shippingType",
	"recipient_name":   "recipientName",
	"delivery_remarks": "deliveryRemarks",
	"delivery_lat":     "deliveryLat",
	"delivery_lng":     "deliveryLng",
	"driver_lat":       "driverLat",
	"driver_lng":       "driverLng",
	"driver_id":        "driverId",
	"customer_id":      "customerId",
	"status":           "status",
}

var (
	_ OrderStoreI        = (*MongoOrderStore)(nil)
	_ NotificationStoreI = (*MongoNotificationStore)(nil)
	_ DiscountStoreI     = (*MongoDiscountStore)(nil)
)

// MongoOrderStore is the MongoDB-backed order store. Change subscriptions
// use native change streams, so push delivery works across processes.
type MongoOrderStore struct {
	orders   *mongo.Collection
	counters *mongo.Collection
}

// NewMongoOrderStore creates a MongoOrderStore on the given database.
func NewMongoOrderStore(db *mongo.Database) *MongoOrderStore {
	return &MongoOrderStore{
		orders:   db.Collection("orders"),
		counters: db.Collection("counters"),
	}
}

// nextSeq atomically reserves the next human-facing order number.
func (s *MongoOrderStore) nextSeq(ctx context.Context) (int64, error) {
	after := options.After
	res := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "orders"},
		bson.M{"$inc": bson.M{"next": int64(1)}},
		&options.FindOneAndUpdateOptions{
			Upsert:         boolPtr(true),
			ReturnDocument: &after,
		})
	var doc struct {
		Next int64 `bson:"next"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, fmt.Errorf("reserve seq: %w", err)
	}
	return doc.Next, nil
}

// Create inserts a new order, assigning the next sequence number.
func (s *MongoOrderStore) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o == nil {
		return nil, errors.New("order is nil")
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	seq, err := s.nextSeq(ctx)
	if err != nil {
		return nil, err
	}
	o.Seq = seq
	if _, err := s.orders.InsertOne(ctx, o); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, o.ID)
}

// GetByID fetches an order. Returns (nil, nil) when missing.
func (s *MongoOrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var o models.Order
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// QueryByField lists orders matching one field, newest first.
func (s *MongoOrderStore) QueryByField(ctx context.Context, field, value string) ([]*models.Order, error) {
	key, ok := colToBson[field]
	if !ok {
		return nil, fmt.Errorf("field %q is not queryable", field)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	cur, err := s.orders.Find(ctx, bson.M{key: value},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Order
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Patch applies a field-level last-write-wins update and refreshes
// updatedAt. Delivery coordinates are set-once; an existing value is kept.
func (s *MongoOrderStore) Patch(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	setOnce := bson.M{}
	for col, v := range fields {
		key, ok := colToBson[col]
		if !ok || col == "status" || col == "customer_id" {
			return fmt.Errorf("field %q is not patchable", col)
		}
		if col == "delivery_lat" || col == "delivery_lng" {
			setOnce[key] = v
		} else {
			set[key] = v
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.orders.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	for key, v := range setOnce {
		// Matches only while the field is still unset; a no-match here
		// just means the coordinate was already frozen.
		_, err := s.orders.UpdateOne(ctx,
			bson.M{"_id": id, key: bson.M{"$eq": nil}},
			bson.M{"$set": bson.M{key: v}})
		if err != nil {
			return err
		}
	}
	return nil
}

// CompareAndSetStatus performs the conditional status transition write.
func (s *MongoOrderStore) CompareAndSetStatus(ctx context.Context, id string, expected, next models.OrderStatus, extra map[string]any) (*models.Order, error) {
	set := bson.M{"status": next, "updatedAt": time.Now().UTC()}
	for col, v := range extra {
		key, ok := colToBson[col]
		if !ok {
			return nil, fmt.Errorf("field %q cannot be stamped on a transition", col)
		}
		set[key] = v
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.orders.UpdateOne(ctx, bson.M{"_id": id, "status": expected}, bson.M{"$set": set})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		cur, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	return s.GetByID(ctx, id)
}

// PatchDriverLocation writes the driver position unless the order already
// reached a terminal state.
func (s *MongoOrderStore) PatchDriverLocation(ctx context.Context, id string, lat, lng float64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.orders.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$nin": bson.A{models.OrderStatusCompleted, models.OrderStatusCancelled}}},
		bson.M{"$set": bson.M{"driverLat": lat, "driverLng": lng, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		cur, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrNotFound
		}
		return ErrTerminal
	}
	return nil
}

// Subscribe opens a change stream scoped to one order with full-document
// lookup, decoding every update into a ChangeEvent. The cancel func closes
// the stream; the channel closes once the stream ends.
func (s *MongoOrderStore) Subscribe(ctx context.Context, orderID string) (<-chan ChangeEvent, func(), error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"documentKey._id": orderID}}},
	}
	streamCtx, cancel := context.WithCancel(ctx)
	cs, err := s.orders.Watch(streamCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, nil, err
	}

	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		defer cs.Close(context.Background())
		for cs.Next(streamCtx) {
			var ev struct {
				FullDocument *models.Order `bson:"fullDocument"`
			}
			if err := cs.Decode(&ev); err != nil || ev.FullDocument == nil {
				continue
			}
			select {
			case out <- ChangeEvent{Order: ev.FullDocument, At: ev.FullDocument.UpdatedAt}:
			case <-streamCtx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

// MongoNotificationStore is the MongoDB-backed notification store.
type MongoNotificationStore struct {
	col *mongo.Collection
}

// NewMongoNotificationStore creates a MongoNotificationStore.
func NewMongoNotificationStore(db *mongo.Database) *MongoNotificationStore {
	return &MongoNotificationStore{col: db.Collection("notifications")}
}

func (s *MongoNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("notification is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.col.InsertOne(ctx, n)
	return err
}

func (s *MongoNotificationStore) ListByRecipient(ctx context.Context, recipientID string) ([]*models.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	cur, err := s.col.Find(ctx, bson.M{"recipientId": recipientID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoNotificationStore) MarkRead(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoNotificationStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoNotificationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.col.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$ne": nil, "$lt": now.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// MongoDiscountStore is the MongoDB-backed discount store.
type MongoDiscountStore struct {
	col *mongo.Collection
}

// NewMongoDiscountStore creates a MongoDiscountStore.
func NewMongoDiscountStore(db *mongo.Database) *MongoDiscountStore {
	return &MongoDiscountStore{col: db.Collection("discounts")}
}

func (s *MongoDiscountStore) Create(ctx context.Context, d *models.Discount) error {
	if d == nil {
		return errors.New("discount is nil")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.col.InsertOne(ctx, d)
	return err
}

func (s *MongoDiscountStore) ByProduct(ctx context.Context, productID string) ([]models.Discount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	cur, err := s.col.Find(ctx, bson.M{"productId": productID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Discount
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func boolPtr(b bool) *bool { return &b }
