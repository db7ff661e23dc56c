// Package geobases answers "which records are near this location" and "which
// records are named like this text" over an in-memory collection of keyed
// records, such as airports or train stations.
//
// Records are loaded once, geocoded records are bucketed into a
// latitude/longitude grid for radius and nearest-neighbor queries, and fuzzy
// name matches are memoized in a cache that accepts forced results (bias).
//
// Example:
//
//	b, err := geobases.Open("airports")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	near, _ := b.FindNearKey("ORY", 50)
//	for _, n := range near {
//	    fmt.Printf("%s %.1f km\n", n.Key, n.Distance)
//	}
package geobases

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/andreiashu/geobases/internal/cache"
	"github.com/andreiashu/geobases/internal/geo"
	"github.com/andreiashu/geobases/internal/grid"
)

// Implicit fields carried by every record.
const (
	FieldKey  = "__id__" // the record key
	FieldLine = "__ln__" // source line number, empty for records set at runtime
)

// Point is a latitude/longitude pair in degrees.
type Point = geo.Point

// Neighbor pairs a key with its distance in kilometers from a query point.
type Neighbor = geo.Neighbor

// Record maps field names to values. Records returned by a Base are copies.
type Record map[string]string

// Entry is one loaded row used to build a Base.
type Entry struct {
	Key    string
	Line   int
	Fields map[string]string
}

// Base is a keyed record store with a spatial grid and a fuzzy match cache.
// Safe for concurrent use: queries share a read lock, mutations take the
// write lock.
type Base struct {
	mu       sync.RWMutex
	name     string
	fields   []string // schema in insertion order, implicit fields first
	fieldSet map[string]bool
	records  map[string]Record
	grid     *grid.Grid
	cache    *cache.Cache[[]Match]
	config   *BaseConfig
	log      zerolog.Logger
}

// NewPoint returns the point for lat/lng, or a *BadGeocodeError.
func NewPoint(lat, lng float64) (Point, error) {
	p, err := geo.NewPoint(lat, lng)
	if err != nil {
		return Point{}, &BadGeocodeError{Input: fmt.Sprintf("%v,%v", lat, lng), Err: err}
	}
	return p, nil
}

// ParsePoint reads "lat,lng", "(lat, lng)" or "geohash:<hash>".
func ParsePoint(s string) (Point, error) {
	p, err := geo.ParsePoint(s)
	if err != nil {
		return Point{}, &BadGeocodeError{Input: s, Err: err}
	}
	return p, nil
}

// Distance returns the haversine distance between a and b in kilometers.
func Distance(a, b Point) float64 {
	return geo.Distance(a, b)
}

// New builds a base from loaded entries. fields is the declared schema;
// fields found only in entries are appended to it. Duplicate keys keep the
// last entry and are logged.
func New(fields []string, entries []Entry, opts ...Option) *Base {
	return newBase("", fields, entries, newConfig(opts))
}

func newBase(name string, fields []string, entries []Entry, cfg *BaseConfig) *Base {
	b := &Base{
		name:     name,
		fieldSet: make(map[string]bool),
		records:  make(map[string]Record, len(entries)),
		cache:    cache.New[[]Match](cfg.CacheSize, cfg.CacheTTL),
		config:   cfg,
		log:      cfg.logger(name),
	}
	b.addFields(FieldKey, FieldLine)
	b.addFields(fields...)

	lines := make(map[string]int, len(entries))
	for _, e := range entries {
		if prev, dup := lines[e.Key]; dup {
			b.log.Warn().
				Str("key", e.Key).
				Int("line", e.Line).
				Int("previous_line", prev).
				Msg("Duplicate key, keeping last")
		}
		lines[e.Key] = e.Line

		rec := make(Record, len(b.fields)+len(e.Fields))
		for _, f := range fields {
			if f != "" {
				rec[f] = ""
			}
		}
		for f, v := range e.Fields {
			if !b.fieldSet[f] {
				b.addFields(f)
			}
			rec[f] = v
		}
		rec[FieldKey] = e.Key
		rec[FieldLine] = lineString(e.Line)
		b.records[e.Key] = rec
	}

	b.buildGrid(cfg.CellRadius)
	return b
}

func lineString(line int) string {
	if line <= 0 {
		return ""
	}
	return strconv.Itoa(line)
}

func (b *Base) addFields(fields ...string) {
	for _, f := range fields {
		if f == "" || b.fieldSet[f] {
			continue
		}
		b.fieldSet[f] = true
		b.fields = append(b.fields, f)
	}
}

// buildGrid indexes every geocoded record. Callers hold the write lock or
// own b exclusively.
func (b *Base) buildGrid(radius float64) {
	b.grid = grid.New(radius)
	if !b.hasGeoSupport() {
		return
	}
	for key, rec := range b.records {
		b.indexRecord(key, rec)
	}
	b.log.Debug().
		Int("records", len(b.records)).
		Int("geocoded", b.grid.Len()).
		Int("cells", b.grid.Cells()).
		Float64("cell_radius", b.grid.CellRadius()).
		Msg("Grid built")
}

// indexRecord puts key in its grid cell, or drops it from the grid when its
// coordinates are missing or unparseable.
func (b *Base) indexRecord(key string, rec Record) {
	lat, lng := rec[b.config.LatField], rec[b.config.LngField]
	p, ok := geo.FromStrings(lat, lng)
	if !ok {
		b.grid.Remove(key)
		b.log.Debug().Str("key", key).Str("lat", lat).Str("lng", lng).Msg("No usable geocode, not indexed")
		return
	}
	b.grid.Add(key, p)
}

func (b *Base) hasGeoSupport() bool {
	return b.fieldSet[b.config.LatField] && b.fieldSet[b.config.LngField]
}

// Name returns the dataset name, empty for bases built with New.
func (b *Base) Name() string { return b.name }

// HasGeoSupport reports whether the schema holds both geo fields.
func (b *Base) HasGeoSupport() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hasGeoSupport()
}

// Len returns the number of records.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Contains reports whether key is in the base.
func (b *Base) Contains(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.records[key]
	return ok
}

// Keys returns every key in sorted order.
func (b *Base) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedKeys()
}

func (b *Base) sortedKeys() []string {
	keys := make([]string, 0, len(b.records))
	for k := range b.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fields returns the schema, implicit fields first.
func (b *Base) Fields() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.fields)
}

// Get returns a copy of the record for key.
func (b *Base) Get(key string) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	out := make(Record, len(rec))
	for f, v := range rec {
		out[f] = v
	}
	return out, nil
}

// GetOr is Get with def returned for a missing key.
func (b *Base) GetOr(key string, def Record) Record {
	rec, err := b.Get(key)
	if err != nil {
		return def
	}
	return rec
}

// Field returns one field of key.
func (b *Base) Field(key, field string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.field(key, field)
}

// FieldOr is Field with def returned for a missing key. A missing field is
// still an error.
func (b *Base) FieldOr(key, field, def string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.records[key]; !ok {
		return def, nil
	}
	return b.field(key, field)
}

func (b *Base) field(key, field string) (string, error) {
	rec, ok := b.records[key]
	if !ok {
		return "", &NotFoundError{Key: key}
	}
	v, ok := rec[field]
	if !ok {
		return "", &FieldNotFoundError{Key: key, Field: field, Fields: recordFields(rec)}
	}
	return v, nil
}

func recordFields(rec Record) []string {
	fields := make([]string, 0, len(rec))
	for f := range rec {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Location returns the indexed point of key. ok is false for records
// without a usable geocode.
func (b *Base) Location(key string) (p Point, ok bool, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, found := b.records[key]; !found {
		return Point{}, false, &NotFoundError{Key: key}
	}
	p, ok = b.grid.Point(key)
	return p, ok, nil
}

// Distance returns the distance in kilometers between two records.
func (b *Base) Distance(key0, key1 string) (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p0, err := b.location(key0)
	if err != nil {
		return 0, err
	}
	p1, err := b.location(key1)
	if err != nil {
		return 0, err
	}
	return geo.Distance(p0, p1), nil
}

func (b *Base) location(key string) (Point, error) {
	if _, ok := b.records[key]; !ok {
		return Point{}, &NotFoundError{Key: key}
	}
	p, ok := b.grid.Point(key)
	if !ok {
		return Point{}, &BadGeocodeError{Input: key}
	}
	return p, nil
}

// KeysWhere returns the sorted keys whose field equals value, or differs
// from it when reverse is set. fromKeys restricts the scan; nil scans all.
// The result is never nil, so it can restrict a following query.
func (b *Base) KeysWhere(field, value string, reverse bool, fromKeys []string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.fieldSet[field] {
		return nil, &FieldNotFoundError{Field: field, Fields: slices.Clone(b.fields)}
	}
	if fromKeys == nil {
		fromKeys = b.sortedKeys()
	}

	out := []string{}
	for _, k := range fromKeys {
		rec, ok := b.records[k]
		if !ok {
			continue
		}
		v, ok := rec[field]
		if (ok && v == value) != reverse {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return slices.Compact(out), nil
}

// Set sets one field of key, creating the record if needed. Setting a geo
// field moves the key to its new grid cell. Cached fuzzy results are kept;
// call ClearCache to drop them.
func (b *Base) Set(key, field, value string) error {
	return b.SetRecord(key, Record{field: value})
}

// SetRecord sets several fields of key at once, creating the record if
// needed. New fields join the schema.
func (b *Base) SetRecord(key string, fields Record) error {
	if _, ok := fields[FieldKey]; ok {
		return fmt.Errorf("field %s of %q is read-only", FieldKey, key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	hadGeo := b.hasGeoSupport()
	rec, ok := b.records[key]
	if !ok {
		rec = Record{FieldKey: key, FieldLine: ""}
		b.records[key] = rec
	}
	for f, v := range fields {
		b.addFields(f)
		rec[f] = v
	}

	switch {
	case !hadGeo && b.hasGeoSupport():
		b.buildGrid(b.grid.CellRadius())
	case b.hasGeoSupport() && (hasField(fields, b.config.LatField) || hasField(fields, b.config.LngField) || !ok):
		b.indexRecord(key, rec)
	}
	return nil
}

func hasField(r Record, f string) bool {
	_, ok := r[f]
	return ok
}

// Delete removes key and its grid entry.
func (b *Base) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[key]; !ok {
		return &NotFoundError{Key: key}
	}
	delete(b.records, key)
	b.grid.Remove(key)
	return nil
}

// Reindex rebuilds the grid with a new cell radius in kilometers.
func (b *Base) Reindex(cellRadius float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buildGrid(cellRadius)
}

// CellRadius returns the grid cell edge in kilometers.
func (b *Base) CellRadius() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.grid.CellRadius()
}

// Geocoded returns the number of records indexed in the grid.
func (b *Base) Geocoded() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.grid.Len()
}
