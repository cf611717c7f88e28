package geo

import (
	"errors"
	"math"
	"math/rand"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO MATH
// All player-facing math runs on WGS84 lat/lng degrees. At gameplay scales
// (tens to hundreds of meters) a locally-flattened degree plane is accurate
// enough for intersection work; absolute distances always use haversine.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

const (
	// EarthRadiusMeters is the mean earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0

	// MetersPerDegree approximates one degree of latitude, used to flatten
	// radii into degree space for segment intersection.
	MetersPerDegree = 111000.0

	// MaxRespawnRadiusMeters caps operator-configured respawn scatter.
	MaxRespawnRadiusMeters = 500.0
)

// Point is a WGS84 coordinate pair in signed degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point lies in the WGS84 domain.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Mechanic identifies the gameplay interaction a radius check belongs to.
// Each mechanic bounds how much reported GPS accuracy may widen the radius.
type Mechanic string

const (
	MechanicArtifactDetection Mechanic = "artifact_detection"
	MechanicArtifactPickup    Mechanic = "artifact_pickup"
	MechanicControlPoint      Mechanic = "control_point"
	MechanicZone              Mechanic = "zone"
	MechanicQuestPoint        Mechanic = "quest_point"
)

// accuracyBuffers are the max GPS compensation buffers (meters) per mechanic.
// Consumer GPS accuracy varies 3-50m; without compensation, legitimate
// actions at the nominal boundary are rejected intermittently.
var accuracyBuffers = map[Mechanic]float64{
	MechanicArtifactDetection: 15,
	MechanicArtifactPickup:    5,
	MechanicControlPoint:      10,
	MechanicZone:              15,
	MechanicQuestPoint:        10,
}

// MaxBuffer returns the accuracy compensation cap for the mechanic.
func MaxBuffer(m Mechanic) float64 {
	if b, ok := accuracyBuffers[m]; ok {
		return b
	}
	return 10
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(p1, p2 Point) float64 {
	lat1 := p1.Lat * math.Pi / 180
	lat2 := p2.Lat * math.Pi / 180
	dLat := (p2.Lat - p1.Lat) * math.Pi / 180
	dLng := (p2.Lng - p1.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return c * EarthRadiusMeters
}

// EffectiveRadius widens a base radius by the reported GPS accuracy, bounded
// by the mechanic's buffer: base + min(accuracy, maxBuffer).
func EffectiveRadius(baseRadius, accuracy float64, m Mechanic) float64 {
	if accuracy <= 0 {
		return baseRadius
	}
	return baseRadius + math.Min(accuracy, MaxBuffer(m))
}

// WithinRadius reports whether p is within radius of center, compensated for
// the reported accuracy under the given mechanic.
func WithinRadius(p, center Point, radius, accuracy float64, m Mechanic) bool {
	return DistanceMeters(p, center) <= EffectiveRadius(radius, accuracy, m)
}

// PointInCircle reports whether p lies inside the circle, uncompensated.
func PointInCircle(p, center Point, radiusMeters float64) bool {
	return DistanceMeters(p, center) <= radiusMeters
}

// SegmentCircleOverlap returns the length in meters of the movement segment
// p0->p1 that lies inside the circle. The segment is treated as a planar
// chord in degree space (longitude scaled by cos(latitude)); the quadratic
// for the parametrized intersection is solved and both roots clamped to
// [0,1]. Returns 0 when the segment misses the circle entirely or is
// degenerate (p0 == p1) - callers handle the stationary case themselves.
func SegmentCircleOverlap(p0, p1, center Point, radiusMeters float64) float64 {
	radiusDeg := radiusMeters / MetersPerDegree

	// Flatten longitude around the circle's latitude so degree distances are
	// locally isotropic.
	cosLat := math.Cos(center.Lat * math.Pi / 180)

	dx := p1.Lat - p0.Lat
	dy := (p1.Lng - p0.Lng) * cosLat

	fx := p0.Lat - center.Lat
	fy := (p0.Lng - center.Lng) * cosLat

	a := dx*dx + dy*dy
	b := 2 * (fx*dx + fy*dy)
	c := fx*fx + fy*fy - radiusDeg*radiusDeg

	if a == 0 {
		return 0
	}

	discriminant := b*b - 4*a*c
	if discriminant < 0 {
		return 0
	}

	sqrtD := math.Sqrt(discriminant)
	t1 := (-b - sqrtD) / (2 * a)
	t2 := (-b + sqrtD) / (2 * a)

	t1 = math.Max(0, math.Min(1, t1))
	t2 = math.Max(0, math.Min(1, t2))

	return (t2 - t1) * DistanceMeters(p0, p1)
}

// TimeInCircle returns the seconds of the interval deltaT spent inside the
// circle while moving p0->p1. A stationary interval counts fully if the
// position is inside, otherwise not at all.
func TimeInCircle(p0, p1, center Point, radiusMeters, deltaT float64) float64 {
	pathMeters := DistanceMeters(p0, p1)
	if pathMeters == 0 {
		if PointInCircle(p1, center, radiusMeters) {
			return deltaT
		}
		return 0
	}

	insideMeters := SegmentCircleOverlap(p0, p1, center, radiusMeters)
	return deltaT * (insideMeters / pathMeters)
}

// RandomPointInDisk samples a uniformly distributed point within radiusMeters
// of center. Distance uses sqrt(uniform) for area-uniformity; the longitude
// offset is scaled by cos(latitude). The radius is capped at
// MaxRespawnRadiusMeters.
func RandomPointInDisk(center Point, radiusMeters float64, rng *rand.Rand) Point {
	if radiusMeters <= 0 {
		return center
	}
	radiusMeters = math.Min(radiusMeters, MaxRespawnRadiusMeters)

	distance := math.Sqrt(rng.Float64()) * radiusMeters
	angle := rng.Float64() * 2 * math.Pi

	latOffset := (distance * math.Cos(angle)) / EarthRadiusMeters * (180 / math.Pi)
	lngOffset := (distance * math.Sin(angle)) / EarthRadiusMeters * (180 / math.Pi) /
		math.Cos(center.Lat*math.Pi/180)

	return Point{Lat: center.Lat + latOffset, Lng: center.Lng + lngOffset}
}

// Mercator projects a WGS84 point to Web Mercator (EPSG:3857) for storage.
// Points are stored in 3857 so PostGIS and SQLite deployments interpret the
// same planar data.
func Mercator(p Point) (geom.Point, error) {
	if !p.Valid() {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(p.Lng, p.Lat, 0)
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	}), nil
}
