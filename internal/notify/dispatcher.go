package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"orderFulfillmentTracking/internal/lifecycle"
	"orderFulfillmentTracking/models"
	"orderFulfillmentTracking/repository"
)

const dispatchTimeout = 5 * time.Second

// OrderReader is the slice of the order store the dispatcher needs.
type OrderReader interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
}

// Dispatcher turns applied status transitions into stored notifications and
// best-effort pushes. A notification is always persisted first; push
// failures are logged and never surface to the transition that caused them.
type Dispatcher struct {
	orders OrderReader
	notes  repository.NotificationStoreI
	sender Sender
	log    *slog.Logger

	wg sync.WaitGroup
}

func NewDispatcher(orders OrderReader, notes repository.NotificationStoreI, sender Sender, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if sender == nil {
		sender = LogSender{Log: log}
	}
	return &Dispatcher{orders: orders, notes: notes, sender: sender, log: log}
}

// Listener adapts the dispatcher to the state machine's listener hook. The
// actual work runs on its own goroutine with a fresh context so a short
// request deadline cannot cut off notification delivery.
func (d *Dispatcher) Listener() lifecycle.ListenerFunc {
	return func(_ context.Context, ev lifecycle.Event) {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
			defer cancel()
			d.Dispatch(ctx, ev)
		}()
	}
}

// Wait blocks until all in-flight dispatches finish. Called on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch creates and sends the notifications for one transition. The
// customer is always notified for statuses that carry a message; the
// assigned driver is additionally notified when an active delivery is
// cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, ev lifecycle.Event) {
	order, err := d.orders.GetByID(ctx, ev.OrderID)
	if err != nil || order == nil {
		d.log.Error("notification dispatch: order lookup failed",
			"order_id", ev.OrderID, "err", err)
		return
	}

	title, body, ok := MessageFor(ev.To, order.Seq)
	if !ok {
		return
	}
	d.deliver(ctx, models.NewNotification(order.CustomerID, order.ID, title, body, ev.At))

	if ev.To == models.OrderStatusCancelled && ev.From.DeliveryActive() && order.DriverID != nil {
		title, body = DriverCancelMessage(order.Seq)
		d.deliver(ctx, models.NewNotification(*order.DriverID, order.ID, title, body, ev.At))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n *models.Notification) {
	if err := d.notes.Create(ctx, n); err != nil {
		d.log.Error("notification store failed",
			"recipient_id", n.RecipientID, "order_id", n.OrderID, "err", err)
		return
	}
	if err := d.sender.Send(ctx, n); err != nil {
		d.log.Warn("notification push failed",
			"recipient_id", n.RecipientID, "order_id", n.OrderID, "err", err)
	}
}
