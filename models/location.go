package models

import "time"

// LocationSample is one reading from a driver's device location source.
type LocationSample struct {
	Lat       float64   `json:"lat" bson:"lat"`
	Lng       float64   `json:"lng" bson:"lng"`
	AccuracyM float64   `json:"accuracy_m" bson:"accuracyM"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Route is a planned driving route between two coordinates.
type Route struct {
	Polyline        []Coordinate `json:"polyline" bson:"polyline"`
	DistanceMeters  float64      `json:"distance_meters" bson:"distanceMeters"`
	DurationSeconds float64      `json:"duration_seconds" bson:"durationSeconds"`
}

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}
