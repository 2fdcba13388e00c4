package route

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orderFulfillmentTracking/internal/geo"
	"orderFulfillmentTracking/models"
)

// RouteError wraps a routing-capability failure (HTTP error, timeout, no
// route found). Callers fall back to RemainingDistance; a RouteError is
// never fatal to a tracking session.
type RouteError struct {
	Cause error
}

func (e *RouteError) Error() string { return fmt.Sprintf("route planning failed: %v", e.Cause) }
func (e *RouteError) Unwrap() error { return e.Cause }

// Service is the external route-planning capability.
type Service interface {
	Route(ctx context.Context, origin, dest models.Coordinate, alternatives bool) ([]models.Route, error)
}

// Planner wraps the routing capability with alternative selection, a
// bounded timeout, and a per-order cache keyed on how far the driver has
// moved since the cached route was planned.
type Planner struct {
	svc     Service
	timeout time.Duration
	replanM float64

	mu    sync.Mutex
	cache map[string]cachedRoute
}

type cachedRoute struct {
	origin models.Coordinate
	route  models.Route
}

// NewPlanner creates a Planner. timeout bounds each capability call
// (default 6s); replanM is the driver displacement that invalidates a
// cached route (default 100m).
func NewPlanner(svc Service, timeout time.Duration, replanM float64) *Planner {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	if replanM <= 0 {
		replanM = 100
	}
	return &Planner{svc: svc, timeout: timeout, replanM: replanM, cache: make(map[string]cachedRoute)}
}

// Plan returns the best route from origin to dest for an order. The cached
// route is reused until the origin drifts beyond the replan displacement,
// which keeps one route call per leg instead of one per location sample.
// Alternatives are requested and the one with the minimum duration wins,
// ties broken by minimum distance.
func (p *Planner) Plan(ctx context.Context, orderID string, origin, dest models.Coordinate) (models.Route, error) {
	p.mu.Lock()
	if c, ok := p.cache[orderID]; ok {
		if geo.DistanceMeters(origin.Lat, origin.Lng, c.origin.Lat, c.origin.Lng) < p.replanM {
			p.mu.Unlock()
			return c.route, nil
		}
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	routes, err := p.svc.Route(ctx, origin, dest, true)
	if err != nil {
		return models.Route{}, &RouteError{Cause: err}
	}
	if len(routes) == 0 {
		return models.Route{}, &RouteError{Cause: fmt.Errorf("no route between %v and %v", origin, dest)}
	}

	best := routes[0]
	for _, r := range routes[1:] {
		if r.DurationSeconds < best.DurationSeconds ||
			(r.DurationSeconds == best.DurationSeconds && r.DistanceMeters < best.DistanceMeters) {
			best = r
		}
	}

	p.mu.Lock()
	p.cache[orderID] = cachedRoute{origin: origin, route: best}
	p.mu.Unlock()
	return best, nil
}

// RemainingDistance is the straight-line distance from the driver to the
// destination. It is pure and always available, so the UI keeps a distance
// figure even while route calls fail.
func (p *Planner) RemainingDistance(current, dest models.Coordinate) float64 {
	return geo.DistanceMeters(current.Lat, current.Lng, dest.Lat, dest.Lng)
}

// Forget drops an order's cached route, typically once it goes terminal.
func (p *Planner) Forget(orderID string) {
	p.mu.Lock()
	delete(p.cache, orderID)
	p.mu.Unlock()
}
