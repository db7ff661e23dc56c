package geobases

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

const testCatalogue = `
mine:
  local: true
  source: mine.csv
  key_col: [country, code]
  delimiter: ','
  headers: [code, country, name, latitude, longitude]
  lat_field: latitude
  lng_field: longitude
broken:
  local: true
  source: missing.csv
  key_col: code
  delimiter: ','
  headers: [code]
`

const testRows = `PAR,FR,Paris,48.8566,2.3522
PAR,FR,Paris again,48.8566,2.3522
NYC,US,New York,40.7128,-74.0060
short
`

func writeCatalogue(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mine.csv"), []byte(testRows), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "sources.yaml")
	if err := os.WriteFile(path, []byte(testCatalogue), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenCompressedStations(t *testing.T) {
	b, err := Open("stations", WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 7 || b.Geocoded() != 7 {
		t.Fatalf("stations: %d records, %d geocoded", b.Len(), b.Geocoded())
	}
	if b.CellRadius() != 20 {
		t.Errorf("CellRadius() = %v, want the catalogue's 20", b.CellRadius())
	}
	// The UIC column is not loaded.
	want := []string{FieldKey, FieldLine, "code", "name", "lat", "lng"}
	if got := b.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}

	tests := []struct {
		query string
		key   string
		score float64
	}{
		{"Marseille Saint Ch.", "frmsc", 0.878},
		{"Antibes SNCF 2", "frxat", 1},
		{"nice ville", "frnic", 1},
	}
	for _, tt := range tests {
		got, err := b.FuzzyMatch(tt.query, "name", FuzzyOptions{MinMatch: DefaultMinMatch})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Key != tt.key || math.Abs(got[0].Score-tt.score) > 1e-3 {
			t.Errorf("FuzzyMatch(%q) = %v, want %s at %.3f", tt.query, got, tt.key, tt.score)
		}
	}

	near, err := b.FindNearKey("frnic", 30)
	if err != nil {
		t.Fatal(err)
	}
	if keys := neighborKeys(near); !reflect.DeepEqual(keys, []string{"frnic", "frxat"}) {
		t.Errorf("FindNearKey(frnic, 30) = %v", keys)
	}
}

func TestOpenOptionsOverrideCatalogue(t *testing.T) {
	b, err := Open("stations", WithLogger(zerolog.Nop()), WithCellRadius(5))
	if err != nil {
		t.Fatal(err)
	}
	if b.CellRadius() != 5 {
		t.Errorf("CellRadius() = %v, want 5", b.CellRadius())
	}
}

func TestOpenWithoutGeoFields(t *testing.T) {
	b, err := Open("countries", WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if b.HasGeoSupport() || b.Geocoded() != 0 {
		t.Error("countries base has geo support")
	}
	if _, err := b.FindClosest(Point{}, 1); !errors.Is(err, ErrNoGeoSupport) {
		t.Errorf("FindClosest error = %v, want ErrNoGeoSupport", err)
	}
	got, err := b.FuzzyMatch("Bruxelles", "capital", FuzzyOptions{MinMatch: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key != "BE" {
		t.Errorf("FuzzyMatch(Bruxelles, capital) = %v, want BE", got)
	}
}

func TestOpenSourcesFile(t *testing.T) {
	path := writeCatalogue(t)

	b, err := Open("mine", WithSourcesFile(path), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Keys(); !reflect.DeepEqual(got, []string{"FRPAR", "USNYC"}) {
		t.Fatalf("Keys() = %v", got)
	}
	name, _ := b.Field("FRPAR", "name")
	if name != "Paris again" {
		t.Errorf("duplicate key kept %q, want the last row", name)
	}
	d, err := b.Distance("FRPAR", "USNYC")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d-5837) > 5 {
		t.Errorf("Paris-New York = %v km", d)
	}

	_, err = Open("broken", WithSourcesFile(path), WithLogger(zerolog.Nop()))
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(broken) error = %v, want a missing file", err)
	}

	_, err = Open("nope", WithSourcesFile(path))
	var unknown *UnknownBaseError
	if !errors.As(err, &unknown) || !errors.Is(err, ErrUnknownBase) {
		t.Fatalf("Open(nope) error = %v, want *UnknownBaseError", err)
	}
	if !reflect.DeepEqual(unknown.Available, []string{"broken", "mine"}) {
		t.Errorf("available bases = %v", unknown.Available)
	}

	if _, err := Open("mine", WithSourcesFile(filepath.Join(t.TempDir(), "none.yaml"))); err == nil {
		t.Error("Open with a missing catalogue succeeded")
	}
}

func TestBaseNames(t *testing.T) {
	names, err := BaseNames()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"airports", "countries", "stations"}; !reflect.DeepEqual(names, want) {
		t.Errorf("BaseNames() = %v, want %v", names, want)
	}
}

func TestCheckSources(t *testing.T) {
	reports, err := CheckSources(context.Background(), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		name     string
		records  int
		geocoded int
		geo      bool
	}{
		{"airports", 20, 19, true},
		{"countries", 9, 0, false},
		{"stations", 7, 7, true},
	}
	if len(reports) != len(want) {
		t.Fatalf("got %d reports, want %d", len(reports), len(want))
	}
	for i, w := range want {
		r := reports[i]
		if !r.OK() || r.Name != w.name || r.Records != w.records || r.Geocoded != w.geocoded || r.GeoSupport != w.geo {
			t.Errorf("report %d = %+v, want %+v", i, r, w)
		}
	}
}

func TestCheckSourcesReportsFailures(t *testing.T) {
	path := writeCatalogue(t)
	reports, err := CheckSources(context.Background(), WithSourcesFile(path), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports", len(reports))
	}

	broken, mine := reports[0], reports[1]
	if broken.Name != "broken" || broken.OK() {
		t.Errorf("broken report = %+v", broken)
	}
	if mine.Records != 2 || mine.Duplicates != 1 || mine.Skipped != 1 || mine.Geocoded != 2 {
		t.Errorf("mine report = %+v", mine)
	}
}

func TestCheckSourcesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CheckSources(ctx, WithLogger(zerolog.Nop())); !errors.Is(err, context.Canceled) {
		t.Errorf("CheckSources error = %v, want context.Canceled", err)
	}
}
