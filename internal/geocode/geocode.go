package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"orderFulfillmentTracking/internal/geo"
)

// NotFoundError reports that the geocoder produced no usable coordinate
// for an address. Order creation proceeds without coordinates; the map
// view simply stays empty until an operator fixes the address.
type NotFoundError struct {
	Address string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("no coordinates for %q", e.Address) }

// Geocoder resolves free-text addresses to coordinates, best-effort.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// NominatimGeocoder talks to a Nominatim-compatible server.
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	client    *http.Client
}

// NewNominatimGeocoder creates a geocoder. Nominatim's usage policy
// requires an identifying User-Agent.
func NewNominatimGeocoder(baseURL, userAgent string, timeout time.Duration, client *http.Client) *NominatimGeocoder {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &NominatimGeocoder{baseURL: baseURL, userAgent: userAgent, timeout: timeout, client: client}
}

type nominatimHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves one address. Returns *NotFoundError when the server
// answers with no (or unusable) hits.
func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoding server returned %s", resp.Status)
	}

	var hits []nominatimHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return 0, 0, fmt.Errorf("decode geocoding response: %w", err)
	}
	if len(hits) == 0 {
		return 0, 0, &NotFoundError{Address: address}
	}
	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return 0, 0, &NotFoundError{Address: address}
	}
	lng, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return 0, 0, &NotFoundError{Address: address}
	}
	if !geo.Valid(lat, lng) {
		return 0, 0, &NotFoundError{Address: address}
	}
	return lat, lng, nil
}
