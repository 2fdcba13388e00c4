package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderFulfillmentTracking/models"
	"orderFulfillmentTracking/repository"
)

type fakeSource struct {
	mu    sync.Mutex
	feeds []chan models.LocationSample
	errs  []error
	subs  int
}

func (f *fakeSource) Subscribe(_ context.Context, _ string) (<-chan models.LocationSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.feeds) == 0 {
		ch := make(chan models.LocationSample)
		f.feeds = append(f.feeds, ch)
	}
	ch := f.feeds[0]
	f.feeds = f.feeds[1:]
	return ch, nil
}

func (f *fakeSource) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

type write struct{ lat, lng float64 }

type fakeWriter struct {
	mu     sync.Mutex
	writes []write
	err    error
}

func (w *fakeWriter) PatchDriverLocation(_ context.Context, _ string, lat, lng float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, write{lat, lng})
	return nil
}

func (w *fakeWriter) all() []write {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]write, len(w.writes))
	copy(out, w.writes)
	return out
}

func sampleAt(lat float64, ts time.Time, accuracy float64) models.LocationSample {
	return models.LocationSample{Lat: lat, Lng: lat / 2, AccuracyM: accuracy, Timestamp: ts}
}

func testConfig() Config {
	return Config{MaxAccuracyM: 50, WriteInterval: 40 * time.Millisecond, RetryBase: 10 * time.Millisecond, MaxBackoff: 40 * time.Millisecond}
}

func TestFiltersAccuracyAndOutOfOrder(t *testing.T) {
	feed := make(chan models.LocationSample, 8)
	src := &fakeSource{feeds: []chan models.LocationSample{feed}}
	w := &fakeWriter{}
	s := NewStream(src, w, testConfig(), nil)

	base := time.Now()
	feed <- sampleAt(10, base, 5)
	require.NoError(t, s.Start(context.Background(), "drv-1", "ord-1"))
	defer s.Stop()

	got := <-s.Samples()
	assert.Equal(t, 10.0, got.Lat)

	feed <- sampleAt(11, base.Add(time.Second), 500) // accuracy too poor
	feed <- sampleAt(12, base.Add(-time.Second), 5)  // older than last accepted
	feed <- sampleAt(13, base, 5)                    // equal timestamp, not strictly newer
	feed <- sampleAt(14, base.Add(2*time.Second), 5) // accepted

	select {
	case next := <-s.Samples():
		assert.Equal(t, 14.0, next.Lat, "filtered samples must never surface")
	case <-time.After(time.Second):
		t.Fatal("accepted sample not published")
	}
}

func TestWriteThroughIsThrottledToLatest(t *testing.T) {
	feed := make(chan models.LocationSample, 32)
	src := &fakeSource{feeds: []chan models.LocationSample{feed}}
	w := &fakeWriter{}
	s := NewStream(src, w, testConfig(), nil)

	base := time.Now()
	feed <- sampleAt(1, base, 5)
	require.NoError(t, s.Start(context.Background(), "drv-1", "ord-1"))

	// A burst far faster than the write interval.
	for i := 2; i <= 20; i++ {
		feed <- sampleAt(float64(i), base.Add(time.Duration(i)*time.Millisecond), 5)
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	writes := w.all()
	require.NotEmpty(t, writes)
	assert.LessOrEqual(t, len(writes), 4, "write amplification must be bounded by the interval")
	assert.Equal(t, 20.0, writes[len(writes)-1].lat, "the most recent sample wins, not an average")
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	feed := make(chan models.LocationSample, 2)
	feed <- sampleAt(1, time.Now(), 5)
	src := &fakeSource{feeds: []chan models.LocationSample{feed}}
	s := NewStream(src, &fakeWriter{}, testConfig(), nil)

	require.NoError(t, s.Start(context.Background(), "drv-1", "ord-1"))
	require.NoError(t, s.Start(context.Background(), "drv-1", "ord-1"), "second start is a no-op")
	assert.Equal(t, 1, src.subscriptions())

	s.Stop()
	s.Stop() // no-op, must not panic or hang
}

func TestConcurrentStartStopCycles(t *testing.T) {
	feeds := make([]chan models.LocationSample, 0, 24)
	for i := 0; i < 24; i++ {
		ch := make(chan models.LocationSample, 1)
		ch <- sampleAt(float64(i+1), time.Now().Add(time.Duration(i)*time.Millisecond), 5)
		feeds = append(feeds, ch)
	}
	src := &fakeSource{feeds: feeds}
	s := NewStream(src, &fakeWriter{}, testConfig(), nil)

	// Hammer restart cycles from two goroutines. Each cycle must tear down
	// its own lifetime; a stale done channel would panic or hang here.
	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = s.Start(ctx, "drv-1", "ord-1")
				cancel()
				s.Stop()
			}
		}()
	}
	wg.Wait()
	s.Stop()
}

func TestSourceFailureSignalsAndRetries(t *testing.T) {
	recovered := make(chan models.LocationSample, 2)
	recovered <- sampleAt(7, time.Now(), 5)
	src := &fakeSource{
		errs:  []error{context.DeadlineExceeded},
		feeds: []chan models.LocationSample{recovered},
	}
	s := NewStream(src, &fakeWriter{}, testConfig(), nil)

	err := s.Start(context.Background(), "drv-1", "ord-1")
	assert.ErrorIs(t, err, ErrUnavailable)
	defer s.Stop()

	select {
	case sig := <-s.Unavailable():
		assert.ErrorIs(t, sig, ErrUnavailable)
	case <-time.After(time.Second):
		t.Fatal("no unavailable signal")
	}

	// Backoff elapses and the stream resubscribes on its own.
	select {
	case got := <-s.Samples():
		assert.Equal(t, 7.0, got.Lat)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not recover")
	}
	assert.GreaterOrEqual(t, src.subscriptions(), 2)
}

func TestFeedCloseTriggersResubscribe(t *testing.T) {
	first := make(chan models.LocationSample, 1)
	first <- sampleAt(1, time.Now(), 5)
	second := make(chan models.LocationSample, 1)
	src := &fakeSource{feeds: []chan models.LocationSample{first, second}}
	s := NewStream(src, &fakeWriter{}, testConfig(), nil)

	require.NoError(t, s.Start(context.Background(), "drv-1", "ord-1"))
	defer s.Stop()
	<-s.Samples()

	close(first)
	second <- sampleAt(2, time.Now().Add(time.Second), 5)

	select {
	case got := <-s.Samples():
		assert.Equal(t, 2.0, got.Lat)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not resume after feed close")
	}
}

func TestTerminalOrderStopsWrites(t *testing.T) {
	feed := make(chan models.LocationSample, 4)
	feed <- sampleAt(1, time.Now(), 5)
	src := &fakeSource{feeds: []chan models.LocationSample{feed}}
	w := &fakeWriter{err: repository.ErrTerminal}
	s := NewStream(src, w, testConfig(), nil)

	require.NoError(t, s.Start(context.Background(), "drv-1", "ord-1"))
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	assert.Empty(t, w.all(), "terminal refusal must not be retried into the record")
}
