package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocodeParsesFirstHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7 Olaya St, Riyadh", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`[{"lat": "24.6905", "lon": "46.6846"}]`))
	}))
	defer srv.Close()

	g := NewNominatimGeocoder(srv.URL, "fulfillment-test", time.Second, srv.Client())
	lat, lng, err := g.Geocode(context.Background(), "7 Olaya St, Riyadh")
	require.NoError(t, err)
	assert.InDelta(t, 24.6905, lat, 1e-9)
	assert.InDelta(t, 46.6846, lng, 1e-9)
}

func TestGeocodeNotFound(t *testing.T) {
	cases := map[string]string{
		"empty":        `[]`,
		"unparseable":  `[{"lat": "north-ish", "lon": "46"}]`,
		"out of range": `[{"lat": "910", "lon": "46"}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			g := NewNominatimGeocoder(srv.URL, "fulfillment-test", time.Second, srv.Client())
			_, _, err := g.Geocode(context.Background(), "nowhere at all")
			var nf *NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, "nowhere at all", nf.Address)
		})
	}
}

func TestGeocodeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewNominatimGeocoder(srv.URL, "fulfillment-test", time.Second, srv.Client())
	_, _, err := g.Geocode(context.Background(), "anywhere")
	assert.Error(t, err)
}
