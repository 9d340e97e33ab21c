package qdrant

import "github.com/google/uuid"

// Point is a single vector with its payload, as stored in a collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a Point returned by a similarity search.
type ScoredPoint struct {
	Point
	Score float64
}

/*
PointID maps an arbitrary key onto the UUID form Qdrant accepts for point
ids. Keys that already are UUIDs pass through unchanged, everything else is
hashed into a name-based UUID so the mapping stays stable.
*/
func PointID(key string) string {
	if _, err := uuid.Parse(key); err == nil {
		return key
	}

	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func NewPoint(key string, vector []float32, payload map[string]any) *Point {
	if payload == nil {
		payload = map[string]any{}
	}

	payload["key"] = key

	return &Point{
		ID:      PointID(key),
		Vector:  vector,
		Payload: payload,
	}
}

// Key returns the caller-facing key that was stored with the point.
func (point *Point) Key() string {
	if key, ok := point.Payload["key"].(string); ok && key != "" {
		return key
	}

	return point.ID
}
