package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderFulfillmentTracking/internal/db"
	"orderFulfillmentTracking/models"
)

func openTestDB(t *testing.T, name string) *OrderRepository {
	t.Helper()
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return NewOrderRepository(d)
}

func testOrder(t *testing.T, customerID string) *models.Order {
	t.Helper()
	o, err := models.NewOrder(customerID, []models.LineItem{
		{ProductID: "p1", Title: "Beans", UnitPrice: 10, Quantity: 2},
		{ProductID: "p2", Title: "Mug", UnitPrice: 6, Quantity: 1, SelectedVariant: "large"},
	}, models.Shipping{
		Address: "7 Olaya St", Phone: "555-0142", Zone: "central", Type: models.ShippingTypeNew, Cost: 5,
	}, nil, time.Now())
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return o
}

func TestCreateAndRoundTrip(t *testing.T) {
	repo := openTestDB(t, "roundtrip")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	o := testOrder(t, "cust-1")
	created, err := repo.Create(ctx, o)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if created.Seq < 1 {
		t.Errorf("expected positive seq, got %d", created.Seq)
	}

	second, err := repo.Create(ctx, testOrder(t, "cust-1"))
	if err != nil {
		t.Fatalf("create second order: %v", err)
	}
	if second.Seq != created.Seq+1 {
		t.Errorf("seq not monotonic: %d then %d", created.Seq, second.Seq)
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got == nil {
		t.Fatal("order not found after create")
	}
	if got.Status != models.OrderStatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if len(got.Items) != 2 || got.Items[1].SelectedVariant != "large" {
		t.Errorf("items did not round-trip: %+v", got.Items)
	}
	if got.Total != o.Total || got.ShippingPhone != o.ShippingPhone || got.ShippingZone != o.ShippingZone {
		t.Errorf("fields did not round-trip: %+v", got)
	}
	if err := got.CheckMoneyInvariant(); err != nil {
		t.Errorf("money invariant: %v", err)
	}

	// A partial patch must not drop unrelated fields.
	if err := repo.Patch(ctx, created.ID, map[string]any{"driver_id": "drv-9"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	got, _ = repo.GetByID(ctx, created.ID)
	if got.DriverID == nil || *got.DriverID != "drv-9" {
		t.Errorf("driver_id not patched: %+v", got.DriverID)
	}
	if len(got.Items) != 2 || got.ShippingAddress != o.ShippingAddress {
		t.Errorf("patch dropped fields: %+v", got)
	}
	if !got.UpdatedAt.After(created.UpdatedAt) {
		t.Error("patch did not refresh updated_at")
	}

	missing, err := repo.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing order: got (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestPatchRules(t *testing.T) {
	repo := openTestDB(t, "patchrules")
	ctx := context.Background()

	created, err := repo.Create(ctx, testOrder(t, "cust-2"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Status must not be patchable outside CAS.
	if err := repo.Patch(ctx, created.ID, map[string]any{"status": "completed"}); err == nil {
		t.Fatal("expected status patch to be rejected")
	}

	// Delivery coordinates are set-once.
	if err := repo.Patch(ctx, created.ID, map[string]any{"delivery_lat": 24.7, "delivery_lng": 46.6}); err != nil {
		t.Fatalf("set delivery coords: %v", err)
	}
	if err := repo.Patch(ctx, created.ID, map[string]any{"delivery_lat": 99.0, "delivery_lng": 99.0}); err != nil {
		t.Fatalf("second delivery patch: %v", err)
	}
	got, _ := repo.GetByID(ctx, created.ID)
	if got.DeliveryLat == nil || *got.DeliveryLat != 24.7 {
		t.Errorf("delivery_lat overwritten: %+v", got.DeliveryLat)
	}

	if err := repo.Patch(ctx, "nope", map[string]any{"driver_id": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("patch missing: got %v, want ErrNotFound", err)
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	repo := openTestDB(t, "cas")
	ctx := context.Background()

	created, err := repo.Create(ctx, testOrder(t, "cust-3"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	upd, err := repo.CompareAndSetStatus(ctx, created.ID, models.OrderStatusPending, models.OrderStatusConfirmed, nil)
	if err != nil {
		t.Fatalf("cas pending->confirmed: %v", err)
	}
	if upd.Status != models.OrderStatusConfirmed {
		t.Errorf("status = %s, want confirmed", upd.Status)
	}

	// Stale expectation loses.
	_, err = repo.CompareAndSetStatus(ctx, created.ID, models.OrderStatusPending, models.OrderStatusCancelled, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale cas: got %v, want ErrConflict", err)
	}
	got, _ := repo.GetByID(ctx, created.ID)
	if got.Status != models.OrderStatusConfirmed {
		t.Errorf("status silently overwritten: %s", got.Status)
	}

	// Transition-specific fields are stamped atomically with the status.
	_, err = repo.CompareAndSetStatus(ctx, created.ID, models.OrderStatusConfirmed, models.OrderStatusReceived,
		map[string]any{"recipient_name": "Jane Doe", "delivery_remarks": "left at door"})
	if err != nil {
		t.Fatalf("cas with extras: %v", err)
	}
	got, _ = repo.GetByID(ctx, created.ID)
	if got.RecipientName != "Jane Doe" || got.DeliveryRemarks != "left at door" {
		t.Errorf("extras not stamped: %+v", got)
	}

	if _, err := repo.CompareAndSetStatus(ctx, "nope", models.OrderStatusPending, models.OrderStatusConfirmed, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cas missing: got %v, want ErrNotFound", err)
	}
}

func TestPatchDriverLocationRefusedWhenTerminal(t *testing.T) {
	repo := openTestDB(t, "driverloc")
	ctx := context.Background()

	created, err := repo.Create(ctx, testOrder(t, "cust-4"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.PatchDriverLocation(ctx, created.ID, 24.71, 46.67); err != nil {
		t.Fatalf("patch location: %v", err)
	}
	got, _ := repo.GetByID(ctx, created.ID)
	if got.DriverLat == nil || *got.DriverLat != 24.71 {
		t.Errorf("driver location not written: %+v", got.DriverLat)
	}

	if _, err := repo.CompareAndSetStatus(ctx, created.ID, models.OrderStatusPending, models.OrderStatusCancelled, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := repo.PatchDriverLocation(ctx, created.ID, 25.0, 47.0); !errors.Is(err, ErrTerminal) {
		t.Fatalf("terminal write: got %v, want ErrTerminal", err)
	}

	// Last known position survives the refusal.
	got, _ = repo.GetByID(ctx, created.ID)
	if got.DriverLat == nil || *got.DriverLat != 24.71 {
		t.Errorf("last position lost: %+v", got.DriverLat)
	}
}

func TestSubscribeDeliversWritesAndReleases(t *testing.T) {
	repo := openTestDB(t, "subscribe")
	ctx := context.Background()

	created, err := repo.Create(ctx, testOrder(t, "cust-5"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel, err := repo.Subscribe(ctx, created.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if n := repo.feed.subscriberCount(created.ID); n != 1 {
		t.Fatalf("subscriber count = %d, want 1", n)
	}

	if _, err := repo.CompareAndSetStatus(ctx, created.ID, models.OrderStatusPending, models.OrderStatusConfirmed, nil); err != nil {
		t.Fatalf("cas: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Order == nil || ev.Order.Status != models.OrderStatusConfirmed {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change event delivered")
	}

	cancel()
	if n := repo.feed.subscriberCount(created.ID); n != 0 {
		t.Fatalf("subscription leaked: count = %d", n)
	}
	// Cancelling twice is harmless.
	cancel()
}

func TestQueryByField(t *testing.T) {
	repo := openTestDB(t, "query")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.Create(ctx, testOrder(t, "cust-q")); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := repo.Create(ctx, testOrder(t, "other")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.QueryByField(ctx, "customer_id", "cust-q")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d orders, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Seq < got[i].Seq {
			t.Errorf("not newest first: %d before %d", got[i-1].Seq, got[i].Seq)
		}
	}

	if _, err := repo.QueryByField(ctx, "total", "5"); err == nil {
		t.Fatal("expected non-queryable field to be rejected")
	}
}
