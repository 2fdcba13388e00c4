package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDiscountIsActiveInclusiveBoundaries(t *testing.T) {
	d0 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	d := Discount{ProductID: "p1", DiscountPercentage: 10, StartDate: d0, EndDate: d0.Add(7 * 24 * time.Hour)}

	assert.True(t, d.IsActive(d0), "active at start boundary")
	assert.True(t, d.IsActive(d0.Add(7*24*time.Hour)), "active at end boundary")
	assert.False(t, d.IsActive(d0.Add(-time.Second)))
	assert.False(t, d.IsActive(d0.Add(7*24*time.Hour+time.Second)))
}

func TestBestActiveDiscountTieBreak(t *testing.T) {
	now := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	win := func(start time.Time) (time.Time, time.Time) { return start, start.Add(30 * 24 * time.Hour) }

	s1, e1 := win(now.Add(-48 * time.Hour))
	s2, e2 := win(now.Add(-24 * time.Hour))
	ds := []Discount{
		{ID: "a", ProductID: "p1", DiscountPercentage: 10, StartDate: s1, EndDate: e1},
		{ID: "b", ProductID: "p1", DiscountPercentage: 25, StartDate: s1, EndDate: e1},
		{ID: "c", ProductID: "p1", DiscountPercentage: 25, StartDate: s2, EndDate: e2},
		{ID: "d", ProductID: "p2", DiscountPercentage: 90, StartDate: s1, EndDate: e1},
	}

	// Highest percentage, then latest start date.
	got, ok := BestActiveDiscount(ds, "p1", now)
	assert.True(t, ok)
	assert.Equal(t, "c", got.ID)

	// Deterministic under any slice order.
	rev := []Discount{ds[3], ds[2], ds[1], ds[0]}
	got2, ok := BestActiveDiscount(rev, "p1", now)
	assert.True(t, ok)
	assert.Equal(t, got.ID, got2.ID)

	_, ok = BestActiveDiscount(ds, "p3", now)
	assert.False(t, ok)
}
