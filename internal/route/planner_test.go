package route

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderFulfillmentTracking/models"
)

type fakeService struct {
	calls  atomic.Int64
	routes []models.Route
	err    error
	delay  time.Duration
}

func (f *fakeService) Route(ctx context.Context, _, _ models.Coordinate, _ bool) ([]models.Route, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.routes, nil
}

func TestPlanPicksMinimumDuration(t *testing.T) {
	svc := &fakeService{routes: []models.Route{
		{DistanceMeters: 5000, DurationSeconds: 700},
		{DistanceMeters: 6200, DurationSeconds: 540},
		{DistanceMeters: 5100, DurationSeconds: 540},
	}}
	p := NewPlanner(svc, time.Second, 100)

	got, err := p.Plan(context.Background(), "ord-1", models.Coordinate{Lat: 24.7, Lng: 46.7}, models.Coordinate{Lat: 24.8, Lng: 46.8})
	require.NoError(t, err)
	assert.Equal(t, 540.0, got.DurationSeconds)
	assert.Equal(t, 5100.0, got.DistanceMeters, "duration tie breaks on distance")
}

func TestPlanCachesUntilDisplacementThreshold(t *testing.T) {
	svc := &fakeService{routes: []models.Route{{DistanceMeters: 1000, DurationSeconds: 120}}}
	p := NewPlanner(svc, time.Second, 100)
	dest := models.Coordinate{Lat: 24.8, Lng: 46.8}
	origin := models.Coordinate{Lat: 24.7, Lng: 46.7}

	_, err := p.Plan(context.Background(), "ord-1", origin, dest)
	require.NoError(t, err)

	// A nudge of a few meters reuses the cache.
	near := models.Coordinate{Lat: origin.Lat + 0.00001, Lng: origin.Lng}
	_, err = p.Plan(context.Background(), "ord-1", near, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(1), svc.calls.Load())

	// Moving ~1.1km forces a replan.
	far := models.Coordinate{Lat: origin.Lat + 0.01, Lng: origin.Lng}
	_, err = p.Plan(context.Background(), "ord-1", far, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), svc.calls.Load())

	// Another order never shares the cache.
	_, err = p.Plan(context.Background(), "ord-2", origin, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(3), svc.calls.Load())

	p.Forget("ord-1")
	_, err = p.Plan(context.Background(), "ord-1", origin, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(4), svc.calls.Load())
}

func TestPlanTimeoutReturnsRouteErrorPromptly(t *testing.T) {
	svc := &fakeService{delay: 5 * time.Second, routes: []models.Route{{DurationSeconds: 1}}}
	p := NewPlanner(svc, 100*time.Millisecond, 100)

	start := time.Now()
	_, err := p.Plan(context.Background(), "ord-1", models.Coordinate{}, models.Coordinate{Lat: 1})
	elapsed := time.Since(start)

	var rerr *RouteError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second, "a timed-out plan must not hang")
}

func TestPlanErrorAndEmptyResult(t *testing.T) {
	svc := &fakeService{err: errors.New("boom")}
	p := NewPlanner(svc, time.Second, 100)
	_, err := p.Plan(context.Background(), "ord-1", models.Coordinate{}, models.Coordinate{Lat: 1})
	var rerr *RouteError
	require.ErrorAs(t, err, &rerr)

	empty := &fakeService{}
	p2 := NewPlanner(empty, time.Second, 100)
	_, err = p2.Plan(context.Background(), "ord-1", models.Coordinate{}, models.Coordinate{Lat: 1})
	require.ErrorAs(t, err, &rerr)
}

func TestRemainingDistance(t *testing.T) {
	p := NewPlanner(&fakeService{}, time.Second, 100)
	a := models.Coordinate{Lat: 24.7, Lng: 46.7}
	assert.Zero(t, p.RemainingDistance(a, a))
	d := p.RemainingDistance(a, models.Coordinate{Lat: 24.71, Lng: 46.7})
	assert.InDelta(t, 1112, d, 20, "one hundredth of a degree of latitude is ~1.11km")
}

func TestOSRMServiceParsesRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/route/v1/driving/")
		assert.Equal(t, "true", r.URL.Query().Get("alternatives"))
		w.Write([]byte(`{
			"code": "Ok",
			"routes": [
				{"distance": 5100.5, "duration": 610.2, "geometry": {"coordinates": [[46.7, 24.7], [46.75, 24.72]]}},
				{"distance": 6000.0, "duration": 700.0, "geometry": {"coordinates": [[46.7, 24.7]]}}
			]
		}`))
	}))
	defer srv.Close()

	svc := NewOSRMService(srv.URL, srv.Client())
	routes, err := svc.Route(context.Background(), models.Coordinate{Lat: 24.7, Lng: 46.7}, models.Coordinate{Lat: 24.72, Lng: 46.75}, true)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, 5100.5, routes[0].DistanceMeters)
	// GeoJSON is lng,lat; the polyline must come back lat,lng.
	require.Len(t, routes[0].Polyline, 2)
	assert.Equal(t, 24.7, routes[0].Polyline[0].Lat)
	assert.Equal(t, 46.7, routes[0].Polyline[0].Lng)
}

func TestOSRMServiceErrorCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code": "NoRoute", "routes": []}`))
	}))
	defer srv.Close()

	svc := NewOSRMService(srv.URL, srv.Client())
	_, err := svc.Route(context.Background(), models.Coordinate{}, models.Coordinate{}, false)
	assert.Error(t, err)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	svc2 := NewOSRMService(down.URL, down.Client())
	_, err = svc2.Route(context.Background(), models.Coordinate{}, models.Coordinate{}, false)
	assert.Error(t, err)
}
