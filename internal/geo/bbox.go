package geo

// BoundingBox is an axis-aligned lat/lng rectangle, used to frame a map view
// around the driver and the destination.
type BoundingBox struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
}

// BoxFromPoints returns the smallest box containing all points. The second
// return is false when points is empty.
func BoxFromPoints(points [][2]float64) (BoundingBox, bool) {
	if len(points) == 0 {
		return BoundingBox{}, false
	}
	b := BoundingBox{
		MinLat: points[0][0], MaxLat: points[0][0],
		MinLng: points[0][1], MaxLng: points[0][1],
	}
	for _, p := range points[1:] {
		b = b.extend(p[0], p[1])
	}
	return b, true
}

// Union returns the smallest box containing both b and other.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	u := b.extend(other.MinLat, other.MinLng)
	return u.extend(other.MaxLat, other.MaxLng)
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

func (b BoundingBox) extend(lat, lng float64) BoundingBox {
	if lat < b.MinLat {
		b.MinLat = lat
	}
	if lat > b.MaxLat {
		b.MaxLat = lat
	}
	if lng < b.MinLng {
		b.MinLng = lng
	}
	if lng > b.MaxLng {
		b.MaxLng = lng
	}
	return b
}
