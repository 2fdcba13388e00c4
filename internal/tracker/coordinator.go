package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"orderFulfillmentTracking/models"
	"orderFulfillmentTracking/repository"
)

// Snapshot is one authoritative view of an order. Its revision is the
// order's UpdatedAt; the coordinator never emits a snapshot whose revision
// is not strictly newer than the last one emitted.
type Snapshot struct {
	Order *models.Order
}

// StatusChange is emitted only when a snapshot's status differs from the
// previously emitted snapshot's status. From is empty for the first
// emitted snapshot. Geodata-only updates never produce one.
type StatusChange struct {
	From  models.OrderStatus
	To    models.OrderStatus
	Order *models.Order
}

// Reader is the slice of the order store the coordinator needs.
type Reader interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	Subscribe(ctx context.Context, orderID string) (<-chan repository.ChangeEvent, func(), error)
}

// Config tunes the push/poll reconciliation.
type Config struct {
	// PushGrace is how long the push channel may stay silent before the
	// coordinator falls back to polling.
	PushGrace time.Duration
	// PollInterval is the polling cadence while the push channel is quiet.
	PollInterval time.Duration
}

// DefaultConfig matches the tracking screens' refresh expectations.
func DefaultConfig() Config {
	return Config{PushGrace: 15 * time.Second, PollInterval: 10 * time.Second}
}

// Coordinator merges the two delivery paths for order updates, the push
// change feed and periodic polling, into one de-duplicated snapshot stream
// per observer. Every observer converges on the same final state no matter
// which path delivered it.
type Coordinator struct {
	store Reader
	cfg   Config
	log   *slog.Logger
}

// NewCoordinator creates a Coordinator over the given store.
func NewCoordinator(store Reader, cfg Config, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PushGrace <= 0 {
		cfg.PushGrace = DefaultConfig().PushGrace
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Coordinator{store: store, cfg: cfg, log: log}
}

// Subscription is one observer's view of one order. Close is a composite
// teardown: it releases the push subscription, stops the poll timer and
// closes both channels. Closing twice is safe.
type Subscription struct {
	snapshots chan Snapshot
	statuses  chan StatusChange

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Snapshots delivers de-duplicated order snapshots in revision order.
func (s *Subscription) Snapshots() <-chan Snapshot { return s.snapshots }

// StatusChanges delivers genuine status transitions only.
func (s *Subscription) StatusChanges() <-chan StatusChange { return s.statuses }

// Close tears the subscription down and waits until every resource is
// released.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Watch starts observing one order. The current state, if the order
// exists, is emitted as the first snapshot.
func (c *Coordinator) Watch(ctx context.Context, orderID string) (*Subscription, error) {
	runCtx, cancel := context.WithCancel(ctx)
	feed, feedCancel, err := c.store.Subscribe(runCtx, orderID)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		snapshots: make(chan Snapshot, 16),
		statuses:  make(chan StatusChange, 16),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go c.run(runCtx, orderID, feed, feedCancel, sub)
	return sub, nil
}

func (c *Coordinator) run(ctx context.Context, orderID string, feed <-chan repository.ChangeEvent, feedCancel func(), sub *Subscription) {
	defer close(sub.done)
	defer close(sub.statuses)
	defer close(sub.snapshots)
	defer feedCancel()

	grace := time.NewTimer(c.cfg.PushGrace)
	defer grace.Stop()
	var poll *time.Ticker
	stopPoll := func() {
		if poll != nil {
			poll.Stop()
			poll = nil
		}
	}
	defer stopPoll()

	var (
		lastRev    time.Time
		lastStatus models.OrderStatus
		emitted    bool
	)

	consider := func(o *models.Order) {
		if o == nil {
			return
		}
		rev := o.UpdatedAt
		if emitted && !rev.After(lastRev) {
			return
		}
		lastRev = rev
		select {
		case sub.snapshots <- Snapshot{Order: o}:
		case <-ctx.Done():
			return
		}
		if !emitted || o.Status != lastStatus {
			change := StatusChange{From: lastStatus, To: o.Status, Order: o}
			select {
			case sub.statuses <- change:
			case <-ctx.Done():
				return
			}
			lastStatus = o.Status
		}
		emitted = true
	}

	// Seed from the store so a late subscriber still sees current state.
	if cur, err := c.store.GetByID(ctx, orderID); err == nil {
		consider(cur)
	}

	var pollC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-feed:
			if !ok {
				// Push channel ended; polling is all that is left.
				feed = nil
				if poll == nil {
					poll = time.NewTicker(c.cfg.PollInterval)
					pollC = poll.C
				}
				continue
			}
			consider(ev.Order)
			// Push is alive again: stop polling, restart the grace clock.
			stopPoll()
			pollC = nil
			if !grace.Stop() {
				select {
				case <-grace.C:
				default:
				}
			}
			grace.Reset(c.cfg.PushGrace)

		case <-grace.C:
			if poll == nil {
				poll = time.NewTicker(c.cfg.PollInterval)
				pollC = poll.C
			}

		case <-pollC:
			cur, err := c.store.GetByID(ctx, orderID)
			if err != nil {
				c.log.Warn("tracking poll failed", "order_id", orderID, "err", err)
				continue
			}
			consider(cur)
		}
	}
}
