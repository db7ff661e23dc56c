package geobases

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/andreiashu/geobases/internal/geo"
	"github.com/andreiashu/geobases/internal/rank"
)

// SearchOptions configures spatial queries.
type SearchOptions struct {
	Exhaustive    bool     // Measure every candidate instead of using the grid
	NoDoubleCheck bool     // Grid only: keep every key of the covering cells
	Keys          []string // Candidate keys; nil means all, empty means none
}

func searchOptions(opts []SearchOptions) SearchOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return SearchOptions{}
}

// FindNear returns the keys within radius km of p, closest first.
//
// Without NoDoubleCheck the result is exact. With it, keys from the cells
// reaching within radius are returned unfiltered, so a distance may exceed
// radius by at most one cell diagonal.
func (b *Base) FindNear(p Point, radius float64, opts ...SearchOptions) ([]Neighbor, error) {
	if !p.Valid() {
		return nil, &BadGeocodeError{Input: p.String()}
	}
	options := searchOptions(opts)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasGeoSupport() {
		return nil, ErrNoGeoSupport
	}
	return b.near(p, radius, options), nil
}

// FindNearKey is FindNear around the location of key, which is part of the
// result. A key without a usable geocode gives an empty result.
func (b *Base) FindNearKey(key string, radius float64, opts ...SearchOptions) ([]Neighbor, error) {
	options := searchOptions(opts)

	b.mu.RLock()
	defer b.mu.RUnlock()
	p, err := b.anchor(key)
	if err != nil || p == nil {
		return nil, err
	}
	return b.near(*p, radius, options), nil
}

// FindClosest returns the n keys closest to p, closest first.
func (b *Base) FindClosest(p Point, n int, opts ...SearchOptions) ([]Neighbor, error) {
	if !p.Valid() {
		return nil, &BadGeocodeError{Input: p.String()}
	}
	options := searchOptions(opts)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasGeoSupport() {
		return nil, ErrNoGeoSupport
	}
	return b.closest(p, n, options), nil
}

// FindClosestKey is FindClosest around the location of key, which is part
// of the result.
func (b *Base) FindClosestKey(key string, n int, opts ...SearchOptions) ([]Neighbor, error) {
	options := searchOptions(opts)

	b.mu.RLock()
	defer b.mu.RUnlock()
	p, err := b.anchor(key)
	if err != nil || p == nil {
		return nil, err
	}
	return b.closest(*p, n, options), nil
}

// anchor returns the location of key, nil when it has no usable geocode.
func (b *Base) anchor(key string) (*Point, error) {
	if !b.hasGeoSupport() {
		return nil, ErrNoGeoSupport
	}
	if _, ok := b.records[key]; !ok {
		return nil, &NotFoundError{Key: key}
	}
	p, ok := b.grid.Point(key)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (b *Base) near(p Point, radius float64, options SearchOptions) []Neighbor {
	if options.Exhaustive {
		return b.scanNear(p, radius, b.candidates(options.Keys))
	}
	return b.grid.Near(p, radius, !options.NoDoubleCheck, b.subset(options.Keys))
}

func (b *Base) closest(p Point, n int, options SearchOptions) []Neighbor {
	if options.Exhaustive {
		return b.scanClosest(p, n, b.candidates(options.Keys))
	}
	return b.grid.Closest(p, n, b.subset(options.Keys))
}

func (b *Base) subset(keys []string) *roaring.Bitmap {
	if keys == nil {
		return nil
	}
	return b.grid.Subset(keys)
}

// candidates returns the keys an exhaustive scan measures.
func (b *Base) candidates(keys []string) []string {
	if keys != nil {
		return keys
	}
	return b.sortedKeys()
}

// scanNear measures every candidate against p.
func (b *Base) scanNear(p Point, radius float64, keys []string) []Neighbor {
	if !(radius >= 0) {
		return nil
	}
	seen := make(map[string]bool, len(keys))
	var out []Neighbor
	for _, k := range keys {
		q, ok := b.grid.Point(k)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		if d := geo.Distance(p, q); d <= radius || math.IsInf(radius, 1) {
			out = append(out, Neighbor{Distance: d, Key: k})
		}
	}
	return rank.Select(out, len(out), geo.Closer)
}

// scanClosest keeps the n closest candidates in a bounded heap.
func (b *Base) scanClosest(p Point, n int, keys []string) []Neighbor {
	if n <= 0 {
		return nil
	}
	seen := make(map[string]bool, len(keys))
	top := rank.NewTopK(n, geo.Closer)
	for _, k := range keys {
		q, ok := b.grid.Point(k)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		top.Push(Neighbor{Distance: geo.Distance(p, q), Key: k})
	}
	return top.Sorted()
}
