package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"orderFulfillmentTracking/models"
	"orderFulfillmentTracking/repository"
)

// ErrUnavailable signals that the device location source failed (permission
// denied, timeout, stream closed). The stream keeps retrying with backoff;
// the error is informational, never fatal to the caller.
var ErrUnavailable = errors.New("device location unavailable")

// Source is the push-based device location feed. The returned channel
// closing means the feed paused or failed; the stream resubscribes.
type Source interface {
	Subscribe(ctx context.Context, driverID string) (<-chan models.LocationSample, error)
}

// Writer is the slice of the order store the stream needs.
type Writer interface {
	PatchDriverLocation(ctx context.Context, id string, lat, lng float64) error
}

// Config bounds the stream's filtering and write amplification.
type Config struct {
	// MaxAccuracyM drops samples with a worse (larger) accuracy radius.
	MaxAccuracyM float64
	// WriteInterval bounds shared-record writes: at most one per interval,
	// always the most recent accepted sample.
	WriteInterval time.Duration
	// RetryBase and MaxBackoff bound the resubscribe backoff.
	RetryBase  time.Duration
	MaxBackoff time.Duration
}

// DefaultConfig matches the thresholds used by the driver app.
func DefaultConfig() Config {
	return Config{
		MaxAccuracyM:  50,
		WriteInterval: 3 * time.Second,
		RetryBase:     time.Second,
		MaxBackoff:    30 * time.Second,
	}
}

// Stream consumes a driver's device location feed, filters it, shows the
// latest accepted sample to local observers, and writes it through to the
// shared order record at a bounded rate.
type Stream struct {
	src   Source
	store Writer
	cfg   Config
	log   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	samples     chan models.LocationSample
	unavailable chan error
}

// NewStream creates a stopped Stream.
func NewStream(src Source, store Writer, cfg Config, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	if cfg.WriteInterval <= 0 {
		cfg.WriteInterval = DefaultConfig().WriteInterval
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultConfig().RetryBase
	}
	if cfg.MaxBackoff < cfg.RetryBase {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}
	return &Stream{
		src:         src,
		store:       store,
		cfg:         cfg,
		log:         log,
		samples:     make(chan models.LocationSample, 1),
		unavailable: make(chan error, 1),
	}
}

// Samples carries the latest accepted sample; older unread values are
// replaced, not queued.
func (s *Stream) Samples() <-chan models.LocationSample { return s.samples }

// Unavailable carries at most one pending ErrUnavailable signal.
func (s *Stream) Unavailable() <-chan error { return s.unavailable }

// Start begins streaming driverID's position into orderID's record. It
// blocks until the first accepted sample arrives, the source fails once
// (the stream keeps retrying in the background and ErrUnavailable is
// returned), or ctx is cancelled. Starting an already-running stream is a
// no-op.
func (s *Stream) Start(ctx context.Context, driverID, orderID string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running = true
	s.mu.Unlock()

	first := make(chan error, 1)
	// done is handed to the goroutine directly; re-reading s.done there
	// could observe a later Start's channel.
	go s.run(runCtx, driverID, orderID, done, first)

	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop halts streaming. The last written position stays in the shared
// record; nothing is cleared. Stopping a stopped stream is a no-op.
func (s *Stream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Stream) run(ctx context.Context, driverID, orderID string, done chan<- struct{}, first chan<- error) {
	defer close(done)

	var (
		lastTS    time.Time
		latest    *models.LocationSample
		dirty     bool
		firstDone bool
		backoff   = s.cfg.RetryBase
		ticker    = time.NewTicker(s.cfg.WriteInterval)
	)
	defer ticker.Stop()

	reportFirst := func(err error) {
		if !firstDone {
			firstDone = true
			first <- err
		}
	}

	for {
		feed, err := s.src.Subscribe(ctx, driverID)
		if err != nil {
			if ctx.Err() != nil {
				reportFirst(ctx.Err())
				return
			}
			s.signalUnavailable()
			reportFirst(ErrUnavailable)
			if !s.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.cfg.MaxBackoff)
			continue
		}
		backoff = s.cfg.RetryBase

	feedLoop:
		for {
			select {
			case <-ctx.Done():
				s.flush(orderID, latest, &dirty)
				reportFirst(ctx.Err())
				return

			case sample, ok := <-feed:
				if !ok {
					// Source paused or failed; resubscribe.
					s.signalUnavailable()
					reportFirst(ErrUnavailable)
					if !s.sleep(ctx, backoff) {
						return
					}
					backoff = nextBackoff(backoff, s.cfg.MaxBackoff)
					break feedLoop
				}
				if !s.accept(sample, lastTS) {
					continue
				}
				lastTS = sample.Timestamp
				cp := sample
				latest = &cp
				dirty = true
				s.publish(sample)
				reportFirst(nil)

			case <-ticker.C:
				s.flush(orderID, latest, &dirty)
			}
		}
	}
}

func (s *Stream) accept(sample models.LocationSample, lastTS time.Time) bool {
	if s.cfg.MaxAccuracyM > 0 && sample.AccuracyM > s.cfg.MaxAccuracyM {
		return false
	}
	if !lastTS.IsZero() && !sample.Timestamp.After(lastTS) {
		return false
	}
	return true
}

// flush writes the most recent accepted sample through to the shared
// record, one write per interval regardless of the sampling rate.
func (s *Stream) flush(orderID string, latest *models.LocationSample, dirty *bool) {
	if latest == nil || !*dirty {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.store.PatchDriverLocation(ctx, orderID, latest.Lat, latest.Lng)
	switch {
	case err == nil:
		*dirty = false
	case errors.Is(err, repository.ErrTerminal):
		// Order finished while we were streaming; further writes are
		// refused so stop marking the sample dirty.
		*dirty = false
		s.log.Info("driver location write refused, order terminal", "order_id", orderID)
	default:
		s.log.Warn("driver location write failed", "order_id", orderID, "err", err)
	}
}

func (s *Stream) publish(sample models.LocationSample) {
	for {
		select {
		case s.samples <- sample:
			return
		default:
			select {
			case <-s.samples:
			default:
			}
		}
	}
}

func (s *Stream) signalUnavailable() {
	select {
	case s.unavailable <- ErrUnavailable:
	default:
	}
}

func (s *Stream) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}
