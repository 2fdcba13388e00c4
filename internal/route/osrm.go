package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"orderFulfillmentTracking/models"
)

// OSRMService talks to an OSRM-compatible routing server over HTTP.
type OSRMService struct {
	baseURL string
	client  *http.Client
}

// NewOSRMService creates an OSRMService. client may be nil; the caller's
// per-call context carries the timeout.
func NewOSRMService(baseURL string, client *http.Client) *OSRMService {
	if client == nil {
		client = http.DefaultClient
	}
	return &OSRMService{baseURL: baseURL, client: client}
}

type osrmResponse struct {
	Code   string      `json:"code"`
	Routes []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry struct {
		Coordinates [][]float64 `json:"coordinates"`
	} `json:"geometry"`
}

// Route requests driving routes between two coordinates. OSRM addresses
// are lng,lat ordered.
func (s *OSRMService) Route(ctx context.Context, origin, dest models.Coordinate, alternatives bool) ([]models.Route, error) {
	endpoint := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f",
		s.baseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)
	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	if alternatives {
		q.Set("alternatives", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing server returned %s", resp.Status)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode routing response: %w", err)
	}
	if body.Code != "Ok" {
		return nil, fmt.Errorf("routing server code %q", body.Code)
	}

	out := make([]models.Route, 0, len(body.Routes))
	for _, r := range body.Routes {
		route := models.Route{DistanceMeters: r.Distance, DurationSeconds: r.Duration}
		for _, c := range r.Geometry.Coordinates {
			if len(c) < 2 {
				continue
			}
			route.Polyline = append(route.Polyline, models.Coordinate{Lat: c[1], Lng: c[0]})
		}
		out = append(out, route)
	}
	return out, nil
}
