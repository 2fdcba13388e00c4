package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"orderFulfillmentTracking/models"
	"orderFulfillmentTracking/repository"
)

// Actor identifies who requested a transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorDriver   Actor = "driver"
	ActorAdmin    Actor = "admin"
)

// Metadata carries transition-specific inputs. RecipientName is required
// for the received transition; DriverID is stamped when an operator assigns
// a driver on the shipped transition.
type Metadata struct {
	RecipientName   string
	DeliveryRemarks string
	DriverID        string
}

// Event describes one applied transition. Exactly one event is emitted per
// successful status change; idempotent same-status requests emit none.
type Event struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
	Actor   Actor
	At      time.Time
}

// ListenerFunc receives transition events. Listeners must not block; any
// slow work belongs behind the listener's own queue.
type ListenerFunc func(ctx context.Context, ev Event)

// Machine is the single authority for order status changes. All writers,
// customer, driver and admin alike, go through RequestTransition; the
// status write itself is compare-and-set so a lost race can never silently
// overwrite a concurrently advanced status.
type Machine struct {
	store repository.OrderStoreI
	log   *slog.Logger

	mu        sync.RWMutex
	listeners []ListenerFunc
}

// NewMachine creates a Machine over the given order store.
func NewMachine(store repository.OrderStoreI, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{store: store, log: log}
}

// OnTransition registers a listener for applied transitions.
func (m *Machine) OnTransition(fn ListenerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// RequestTransition validates and applies one status change.
//
// Same-status requests are idempotent no-ops: no write, no event, nil
// error. Illegal edges and missing metadata are rejected before any write.
// A compare-and-set failure surfaces as ErrConcurrentConflict and the
// caller decides whether to retry against the re-read status.
func (m *Machine) RequestTransition(ctx context.Context, orderID string, target models.OrderStatus, actor Actor, meta Metadata) (*models.Order, error) {
	order, err := m.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if target == order.Status {
		return order, nil
	}
	if !target.Valid() || !CanTransition(order.Status, target) {
		return nil, &IllegalTransitionError{From: order.Status, To: target}
	}

	extra := map[string]any{}
	if target == models.OrderStatusReceived {
		name := strings.TrimSpace(meta.RecipientName)
		if name == "" {
			return nil, &ValidationError{Field: "recipientName", Reason: "is required for the received transition"}
		}
		extra["recipient_name"] = name
		if meta.DeliveryRemarks != "" {
			extra["delivery_remarks"] = meta.DeliveryRemarks
		}
	}
	if target == models.OrderStatusShipped && meta.DriverID != "" {
		extra["driver_id"] = meta.DriverID
	}

	updated, err := m.store.CompareAndSetStatus(ctx, orderID, order.Status, target, extra)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConcurrentConflict
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	ev := Event{OrderID: orderID, From: order.Status, To: target, Actor: actor, At: updated.UpdatedAt}
	m.log.Info("order transition applied",
		"order_id", orderID, "from", string(ev.From), "to", string(ev.To), "actor", string(actor))
	m.emit(ctx, ev)
	return updated, nil
}

func (m *Machine) emit(ctx context.Context, ev Event) {
	m.mu.RLock()
	listeners := make([]ListenerFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, ev)
	}
}
