package geo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/teplovod/go-heatnet-alerts/internal/alerts"
)

// FeatureCollection is a GeoJSON document as served to the map. Upstream
// exports carry houses (Polygon/MultiPolygon), CTPs (Point) and pipes
// (LineString) with an open properties bag, so coordinates stay loosely
// typed until rendering.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// IsValidFeature reports whether a feature has the minimal structure the
// map can render: the "Feature" type and a geometry with coordinates.
func IsValidFeature(f Feature) bool {
	return f.Type == "Feature" && f.Geometry != nil && f.Geometry.Coordinates != nil
}

// FeatureID derives the canonical key used for deduplication: UNOM, then
// osm_id, then id, then a string derived from the serialized coordinates.
// Identifier values are normalized, so UNOM "77.0" and UNOM 77 collide as
// the same physical object. Every valid feature gets a deterministic key.
func FeatureID(f Feature) string {
	for _, prop := range []string{"UNOM", "osm_id", "id"} {
		if v, ok := f.Properties[prop]; ok && v != nil {
			if id := alerts.NormalizeID(v); id != "" {
				return id
			}
		}
	}
	raw, err := json.Marshal(f.Geometry.Coordinates)
	if err != nil {
		return fmt.Sprintf("coords-%v", f.Geometry.Coordinates)
	}
	return "coords-" + string(raw)
}

// Dedupe removes duplicate features by canonical key, keeping the first
// occurrence and preserving input order. Structurally invalid features are
// dropped silently.
func Dedupe(features []Feature) []Feature {
	seen := make(map[string]struct{}, len(features))
	result := make([]Feature, 0, len(features))

	for _, f := range features {
		if !IsValidFeature(f) {
			continue
		}
		key := FeatureID(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, f)
	}
	return result
}

// FlipCoordinates swaps [longitude, latitude] pairs to [latitude,
// longitude] for map rendering, recursing through LineString, Polygon and
// MultiPolygon nesting. The input value is not modified.
func FlipCoordinates(coords any) any {
	arr, ok := coords.([]any)
	if !ok {
		return coords
	}
	if len(arr) >= 2 {
		lon, lonOK := arr[0].(float64)
		lat, latOK := arr[1].(float64)
		if lonOK && latOK {
			flipped := make([]any, len(arr))
			copy(flipped, arr)
			flipped[0] = lat
			flipped[1] = lon
			return flipped
		}
	}
	flipped := make([]any, len(arr))
	for i, v := range arr {
		flipped[i] = FlipCoordinates(v)
	}
	return flipped
}

// Flip returns a copy of the collection with every geometry's coordinate
// order swapped for renderers that expect [lat, lon].
func Flip(fc FeatureCollection) FeatureCollection {
	out := FeatureCollection{Type: fc.Type, Features: make([]Feature, len(fc.Features))}
	for i, f := range fc.Features {
		flipped := f
		if f.Geometry != nil {
			flipped.Geometry = &Geometry{
				Type:        f.Geometry.Type,
				Coordinates: FlipCoordinates(f.Geometry.Coordinates),
			}
		}
		out.Features[i] = flipped
	}
	return out
}

// LoadCollection reads a GeoJSON file and returns its deduplicated feature
// collection.
func LoadCollection(path string) (FeatureCollection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FeatureCollection{}, fmt.Errorf("error reading geojson file: %w", err)
	}

	var fc FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return FeatureCollection{}, fmt.Errorf("error decoding geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return FeatureCollection{}, fmt.Errorf("unexpected geojson type: %q", fc.Type)
	}

	fc.Features = Dedupe(fc.Features)
	return fc, nil
}
