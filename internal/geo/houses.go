package geo

import (
	"math"

	"github.com/teplovod/go-heatnet-alerts/internal/alerts"
)

const earthRadiusMeters = 6371000

// HaversineDistance returns the great-circle distance in meters between
// two WGS84 points.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// HouseMatch is the house closest to a searched map point.
type HouseMatch struct {
	UNOM     string  `json:"unom"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Distance float64 `json:"distance_meters"`
}

// ClosestHouse finds the nearest house within radius meters of the given
// point. Houses sit at the downstream end of pipe LineStrings, where the
// "Конец" property carries their UNOM; point features with a UNOM are
// matched on their own coordinates.
func ClosestHouse(fc FeatureCollection, lat, lon, radius float64) (HouseMatch, bool) {
	best := HouseMatch{Distance: math.Inf(1)}
	found := false

	for _, f := range fc.Features {
		unom, hLat, hLon, ok := housePoint(f)
		if !ok {
			continue
		}
		d := HaversineDistance(lat, lon, hLat, hLon)
		if d <= radius && d < best.Distance {
			best = HouseMatch{UNOM: unom, Lat: hLat, Lon: hLon, Distance: d}
			found = true
		}
	}
	return best, found
}

func housePoint(f Feature) (unom string, lat, lon float64, ok bool) {
	if f.Geometry == nil {
		return "", 0, 0, false
	}

	var id any
	if v, present := f.Properties["Конец"]; present && v != nil {
		id = v
	} else if v, present := f.Properties["UNOM"]; present && v != nil {
		id = v
	}
	unom = alerts.NormalizeID(id)
	if unom == "" {
		return "", 0, 0, false
	}

	var pLon, pLat float64
	var pairOK bool
	switch f.Geometry.Type {
	case "Point":
		pLon, pLat, pairOK = coordPair(f.Geometry.Coordinates)
	case "LineString":
		arr, isArr := f.Geometry.Coordinates.([]any)
		if !isArr || len(arr) < 2 {
			return "", 0, 0, false
		}
		// The pipe runs source to house; the last vertex is the house.
		pLon, pLat, pairOK = coordPair(arr[len(arr)-1])
	}
	if !pairOK {
		return "", 0, 0, false
	}
	return unom, pLat, pLon, true
}

func coordPair(v any) (lon, lat float64, ok bool) {
	arr, isArr := v.([]any)
	if !isArr || len(arr) < 2 {
		return 0, 0, false
	}
	lonVal, lonOK := arr[0].(float64)
	latVal, latOK := arr[1].(float64)
	return lonVal, latVal, lonOK && latOK
}
