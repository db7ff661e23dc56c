// Package geo holds the point type and the great-circle distance shared by the
// record store, the grid index and the exhaustive search path.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/golang/geo/s2"
)

// EarthRadius is the mean Earth radius in kilometers used by Distance.
const EarthRadius = 6371.0

// KmPerDegree is the length of one degree of arc on a sphere of EarthRadius.
const KmPerDegree = EarthRadius * math.Pi / 180

// GeohashPrefix marks a query point given as a geohash ("geohash:u09tvw").
const GeohashPrefix = "geohash:"

// geohashAlphabet is the base32 alphabet used by geohashes.
const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// ErrBadPoint is returned when a coordinate pair cannot be used as a point.
var ErrBadPoint = errors.New("bad geocode")

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// NewPoint returns the point for lat/lng, or ErrBadPoint when the pair is not
// a finite coordinate on the sphere.
func NewPoint(lat, lng float64) (Point, error) {
	p := Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return Point{}, fmt.Errorf("%w: (%v, %v)", ErrBadPoint, lat, lng)
	}
	return p, nil
}

// Valid reports whether the point is finite and within [-90,90]x[-180,180].
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.LatLng().IsValid()
}

// LatLng converts the point to its s2 representation.
func (p Point) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lng)
}

// Geohash encodes the point with the given number of characters.
func (p Point) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, precision)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.5f, %.5f)", p.Lat, p.Lng)
}

// Distance returns the haversine great-circle distance between a and b in
// kilometers. Callers filter out records without coordinates beforehand.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h a hair above 1 for antipodal points.
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// FromStrings parses the raw lat/lng field values of a record. The second
// return is false when either value is missing or not a valid coordinate.
func FromStrings(lat, lng string) (Point, bool) {
	la, errLat := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, errLng := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if errLat != nil || errLng != nil {
		return Point{}, false
	}
	p := Point{Lat: la, Lng: lo}
	return p, p.Valid()
}

// ParsePoint reads a query point written as "lat,lng", "(lat, lng)" or
// "geohash:<hash>".
func ParsePoint(s string) (Point, error) {
	s = strings.TrimSpace(s)
	if h, ok := strings.CutPrefix(strings.ToLower(s), GeohashPrefix); ok {
		return decodeGeohash(h)
	}

	parts := strings.Split(strings.Trim(s, "()"), ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("%w: %q", ErrBadPoint, s)
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLng != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrBadPoint, s)
	}
	return NewPoint(lat, lng)
}

// decodeGeohash returns the center of the geohash cell.
func decodeGeohash(h string) (Point, error) {
	if h == "" || len(h) > 12 {
		return Point{}, fmt.Errorf("%w: geohash %q", ErrBadPoint, h)
	}
	for _, r := range h {
		if !strings.ContainsRune(geohashAlphabet, r) {
			return Point{}, fmt.Errorf("%w: geohash %q", ErrBadPoint, h)
		}
	}
	center := geohash.Decode(h).Center()
	return NewPoint(center.Lat(), center.Lng())
}

// Neighbor pairs a record key with its distance in kilometers from a query point.
type Neighbor struct {
	Distance float64
	Key      string
}

// Closer orders neighbors by ascending distance, then by key.
func Closer(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Key < b.Key
}
