// Package grid buckets geocoded keys into fixed-size latitude/longitude cells
// so radius and nearest-neighbor queries only measure exact distances for
// keys in cells that can hold an answer.
//
// Cells are bands of roughly CellRadius kilometers along both axes, measured
// in degrees at the equator. Query neighborhoods come from the s2 bounding
// rectangle of the query cap, which widens the longitude span toward the
// poles and wraps across the antimeridian.
package grid

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/andreiashu/geobases/internal/geo"
	"github.com/andreiashu/geobases/internal/rank"
)

// DefaultCellRadius is the cell edge in kilometers used when none is given.
const DefaultCellRadius = 50.0

// capPadding widens query caps so float error between the s2 cap bound and
// haversine distances never drops a point sitting exactly on the radius.
const capPadding = 1e-9

// CellID identifies a cell by its latitude and longitude band.
type CellID struct {
	Lat int
	Lng int
}

// Grid is a cell index over keyed points. It is not safe for concurrent
// mutation; callers serialize Add/Remove against queries.
type Grid struct {
	radius  float64 // cell edge, km
	latEdge float64 // degrees
	lngEdge float64 // degrees
	nLat    int
	nLng    int

	cells  map[CellID]*roaring.Bitmap // cell -> ordinals
	ids    map[string]uint32          // key -> ordinal
	keys   []string                   // ordinal -> key
	points []geo.Point                // ordinal -> point
	cellOf map[string]CellID          // key -> cell
	free   []uint32                   // ordinals released by Remove
}

// New returns an empty grid whose cells are about radiusKm on a side.
// Non-positive or non-finite radii fall back to DefaultCellRadius.
func New(radiusKm float64) *Grid {
	if !(radiusKm > 0) || math.IsInf(radiusKm, 0) {
		radiusKm = DefaultCellRadius
	}
	edge := radiusKm / geo.KmPerDegree
	nLat := int(math.Ceil(180 / edge))
	nLng := int(math.Ceil(360 / edge))

	return &Grid{
		radius:  radiusKm,
		latEdge: 180 / float64(nLat),
		lngEdge: 360 / float64(nLng),
		nLat:    nLat,
		nLng:    nLng,
		cells:   make(map[CellID]*roaring.Bitmap),
		ids:     make(map[string]uint32),
		cellOf:  make(map[string]CellID),
	}
}

// CellRadius returns the cell edge in kilometers.
func (g *Grid) CellRadius() float64 { return g.radius }

// Len returns the number of indexed keys.
func (g *Grid) Len() int { return len(g.ids) }

// Cells returns the number of non-empty cells.
func (g *Grid) Cells() int { return len(g.cells) }

// Add indexes key at p, moving it if it was already indexed. A key keeps
// its ordinal across moves and removed ordinals are reused.
func (g *Grid) Add(key string, p geo.Point) {
	id, ok := g.ids[key]
	if ok {
		g.unlink(key, id)
	} else {
		id = g.allocate(key)
	}
	g.points[id] = p

	cell := g.CellFor(p)
	bm, found := g.cells[cell]
	if !found {
		bm = roaring.New()
		g.cells[cell] = bm
	}
	bm.Add(id)
	g.cellOf[key] = cell
}

// Remove drops key from the index and reports whether it was present.
func (g *Grid) Remove(key string) bool {
	id, ok := g.ids[key]
	if !ok {
		return false
	}
	g.unlink(key, id)
	delete(g.ids, key)
	g.keys[id] = ""
	g.points[id] = geo.Point{}
	g.free = append(g.free, id)
	return true
}

func (g *Grid) allocate(key string) uint32 {
	var id uint32
	if n := len(g.free); n > 0 {
		id = g.free[n-1]
		g.free = g.free[:n-1]
		g.keys[id] = key
	} else {
		id = uint32(len(g.keys))
		g.keys = append(g.keys, key)
		g.points = append(g.points, geo.Point{})
	}
	g.ids[key] = id
	return id
}

// unlink takes id out of the cell holding key.
func (g *Grid) unlink(key string, id uint32) {
	cell, ok := g.cellOf[key]
	if !ok {
		return
	}
	if bm := g.cells[cell]; bm != nil {
		bm.Remove(id)
		if bm.IsEmpty() {
			delete(g.cells, cell)
		}
	}
	delete(g.cellOf, key)
}

// Point returns the indexed location of key.
func (g *Grid) Point(key string) (geo.Point, bool) {
	id, ok := g.ids[key]
	if !ok {
		return geo.Point{}, false
	}
	return g.points[id], true
}

// Cell returns the cell holding key.
func (g *Grid) Cell(key string) (CellID, bool) {
	c, ok := g.cellOf[key]
	return c, ok
}

// CellFor quantizes p into its cell.
func (g *Grid) CellFor(p geo.Point) CellID {
	return CellID{Lat: g.latBand(p.Lat), Lng: g.lngBand(p.Lng)}
}

// Subset converts candidate keys to a bitmap of ordinals. Keys that are not
// indexed are ignored, so the result may be empty.
func (g *Grid) Subset(keys []string) *roaring.Bitmap {
	bm := roaring.New()
	for _, k := range keys {
		if id, ok := g.ids[k]; ok {
			bm.Add(id)
		}
	}
	return bm
}

// Near returns the keys within radius km of p, sorted by distance.
//
// Cells lying entirely beyond radius are skipped. With doubleCheck every
// remaining candidate is filtered on its exact distance. Without it all keys
// of the remaining cells are returned, so a key may lie beyond radius by at
// most the diagonal of its cell. A non-nil subset restricts the candidates.
func (g *Grid) Near(p geo.Point, radius float64, doubleCheck bool, subset *roaring.Bitmap) []geo.Neighbor {
	if !(radius >= 0) {
		return nil
	}

	var out []geo.Neighbor
	g.visit(g.cover(p, radius), func(cell CellID, bm *roaring.Bitmap) {
		if g.beyond(p, cell, radius) {
			return
		}
		g.each(bm, subset, func(id uint32) {
			d := geo.Distance(p, g.points[id])
			if doubleCheck && d > radius {
				return
			}
			out = append(out, geo.Neighbor{Distance: d, Key: g.keys[id]})
		})
	})
	sortNeighbors(out)
	return out
}

// beyond reports whether every point of cell is farther than radius from p:
// no point of the cell is closer than the center distance minus its reach.
func (g *Grid) beyond(p geo.Point, cell CellID, radius float64) bool {
	if math.IsInf(radius, 1) {
		return false
	}
	center, reach := g.extent(cell)
	return geo.Distance(p, center)-reach > radius*(1+capPadding)+capPadding
}

// extent returns the center of cell and its reach, the distance to the
// farthest point of the cell, which is always a corner.
func (g *Grid) extent(cell CellID) (geo.Point, float64) {
	latLo := -90 + float64(cell.Lat)*g.latEdge
	latHi := math.Min(90, latLo+g.latEdge)
	lngLo := -180 + float64(cell.Lng)*g.lngEdge
	lngHi := lngLo + g.lngEdge

	center := geo.Point{Lat: (latLo + latHi) / 2, Lng: (lngLo + lngHi) / 2}
	var reach float64
	for _, lat := range [2]float64{latLo, latHi} {
		for _, lng := range [2]float64{lngLo, lngHi} {
			reach = math.Max(reach, geo.Distance(center, geo.Point{Lat: lat, Lng: lng}))
		}
	}
	return center, reach
}

// NearKey is Near anchored on an indexed key's own location. It returns nil
// when key is not indexed.
func (g *Grid) NearKey(key string, radius float64, doubleCheck bool, subset *roaring.Bitmap) []geo.Neighbor {
	p, ok := g.Point(key)
	if !ok {
		return nil
	}
	return g.Near(p, radius, doubleCheck, subset)
}

// Closest returns the n keys nearest to p in ascending distance.
//
// The search radius starts at one cell and doubles. After each step every
// key within the current radius has been measured, so once n measured keys
// lie inside it no unvisited key can beat the n-th best.
func (g *Grid) Closest(p geo.Point, n int, subset *roaring.Bitmap) []geo.Neighbor {
	if n <= 0 {
		return nil
	}
	eligible := len(g.ids)
	if subset != nil {
		eligible = int(subset.GetCardinality())
	}
	if eligible == 0 {
		return nil
	}

	visited := make(map[CellID]bool)
	var found []geo.Neighbor
	halfCircumference := math.Pi * geo.EarthRadius

	for rho := g.radius; ; rho *= 2 {
		g.visit(g.cover(p, rho), func(cell CellID, bm *roaring.Bitmap) {
			if visited[cell] {
				return
			}
			visited[cell] = true
			g.each(bm, subset, func(id uint32) {
				found = append(found, geo.Neighbor{Distance: geo.Distance(p, g.points[id]), Key: g.keys[id]})
			})
		})

		if len(found) >= eligible || rho >= halfCircumference {
			break
		}
		within := 0
		for _, nb := range found {
			if nb.Distance <= rho {
				within++
			}
		}
		if within >= n {
			break
		}
	}

	return rank.Select(found, n, geo.Closer)
}

// coverage is a block of cells: latitude bands latLo..latHi and longitude
// bands lngLo..lngHi taken modulo nLng, or every longitude when full.
type coverage struct {
	latLo, latHi int
	lngLo, lngHi int
	full         bool
}

// cover returns the cells intersecting the lat/lng bounding rectangle of the
// cap of the given radius around p.
func (g *Grid) cover(p geo.Point, radius float64) coverage {
	angle := radius/geo.EarthRadius*(1+capPadding) + capPadding
	if angle >= math.Pi {
		return coverage{latLo: 0, latHi: g.nLat - 1, full: true}
	}

	rect := s2.CapFromCenterAngle(s2.PointFromLatLng(p.LatLng()), s1.Angle(angle)).RectBound()
	c := coverage{
		latLo: g.latBand(s1.Angle(rect.Lat.Lo).Degrees()),
		latHi: g.latBand(s1.Angle(rect.Lat.Hi).Degrees()),
	}
	if rect.Lng.IsFull() {
		c.full = true
		return c
	}

	lo := s1.Angle(rect.Lng.Lo).Degrees()
	hi := s1.Angle(rect.Lng.Hi).Degrees()
	if rect.Lng.IsInverted() {
		hi += 360
	}
	c.lngLo = int(math.Floor((lo + 180) / g.lngEdge))
	c.lngHi = int(math.Floor((hi + 180) / g.lngEdge))
	if c.lngHi-c.lngLo+1 >= g.nLng {
		c.full = true
	}
	return c
}

func (c coverage) contains(cell CellID, nLng int) bool {
	if cell.Lat < c.latLo || cell.Lat > c.latHi {
		return false
	}
	return c.full || mod(cell.Lng-c.lngLo, nLng) <= c.lngHi-c.lngLo
}

// visit calls fn for every non-empty cell of c. Large coverages scan the
// occupied cells instead of enumerating mostly empty bands.
func (g *Grid) visit(c coverage, fn func(CellID, *roaring.Bitmap)) {
	lngLo, lngHi := c.lngLo, c.lngHi
	if c.full {
		lngLo, lngHi = 0, g.nLng-1
	}
	span := (c.latHi - c.latLo + 1) * (lngHi - lngLo + 1)

	if span > len(g.cells) {
		for cell, bm := range g.cells {
			if c.contains(cell, g.nLng) {
				fn(cell, bm)
			}
		}
		return
	}

	for lat := c.latLo; lat <= c.latHi; lat++ {
		for lng := lngLo; lng <= lngHi; lng++ {
			cell := CellID{Lat: lat, Lng: mod(lng, g.nLng)}
			if bm, ok := g.cells[cell]; ok {
				fn(cell, bm)
			}
		}
	}
}

// each calls fn for the ordinals of bm, restricted to subset when non-nil.
func (g *Grid) each(bm, subset *roaring.Bitmap, fn func(uint32)) {
	if subset != nil {
		bm = roaring.And(bm, subset)
	}
	bm.Iterate(func(id uint32) bool {
		fn(id)
		return true
	})
}

func (g *Grid) latBand(lat float64) int {
	b := int(math.Floor((lat + 90) / g.latEdge))
	if b < 0 {
		return 0
	}
	if b >= g.nLat {
		return g.nLat - 1
	}
	return b
}

func (g *Grid) lngBand(lng float64) int {
	return mod(int(math.Floor((lng+180)/g.lngEdge)), g.nLng)
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

func sortNeighbors(ns []geo.Neighbor) {
	sort.Slice(ns, func(i, j int) bool { return geo.Closer(ns[i], ns[j]) })
}
