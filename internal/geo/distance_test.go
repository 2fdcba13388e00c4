package geo

import (
	"math"
	"testing"
)

func TestDistanceMeters_ZeroDistance(t *testing.T) {
	for _, p := range [][2]float64{{0, 0}, {24.71, 46.67}, {-33.86, 151.21}} {
		d := DistanceMeters(p[0], p[1], p[0], p[1])
		if d < 0 || d > 1e-6 {
			t.Fatalf("zero distance expected ~0 at %v, got %v", p, d)
		}
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	ab := DistanceMeters(24.7136, 46.6753, 24.7743, 46.7386)
	ba := DistanceMeters(24.7743, 46.7386, 24.7136, 46.6753)
	if math.Abs(ab-ba) > 1e-6 {
		t.Fatalf("distance not symmetric: %v vs %v", ab, ba)
	}
}

func TestDistanceMeters_KnownPair(t *testing.T) {
	// Riyadh city centre to the diplomatic quarter, roughly 9.2km.
	d := DistanceMeters(24.6877, 46.7219, 24.6757, 46.6286)
	if d < 9000 || d > 9800 {
		t.Fatalf("expected ~9.4km, got %v m", d)
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{91, 0, false},
		{0, 181, false},
		{math.NaN(), 0, false},
	}
	for _, c := range cases {
		if got := Valid(c.lat, c.lng); got != c.want {
			t.Errorf("Valid(%v,%v) = %v, want %v", c.lat, c.lng, got, c.want)
		}
	}
}

func TestIsWithinMeters(t *testing.T) {
	if !IsWithinMeters(0, 0, 0, 0.0001, 50) {
		t.Fatal("expected ~11m apart to be within 50m")
	}
	if IsWithinMeters(0, 0, 0, 0.01, 50) {
		t.Fatal("expected ~1.1km apart to be outside 50m")
	}
}

func TestBoundingBoxUnionAndContains(t *testing.T) {
	a, ok := BoxFromPoints([][2]float64{{1, 1}, {2, 3}})
	if !ok {
		t.Fatal("expected box")
	}
	b, _ := BoxFromPoints([][2]float64{{-1, 4}})
	u := a.Union(b)

	if u.MinLat != -1 || u.MaxLat != 2 || u.MinLng != 1 || u.MaxLng != 4 {
		t.Fatalf("unexpected union: %+v", u)
	}
	if !u.Contains(0, 2) {
		t.Fatal("union should contain interior point")
	}
	if u.Contains(3, 2) {
		t.Fatal("union should not contain outside point")
	}
	if _, ok := BoxFromPoints(nil); ok {
		t.Fatal("empty point set should not produce a box")
	}
}
