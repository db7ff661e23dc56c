package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogue = `
airports:
  local: true
  source: airports.csv
  key_col: code
  delimiter: "^"
  headers: [code, name, ~, lat, lng]
routes:
  local: false
  source: /srv/data/routes.csv.gz
  key_col: [from, to]
  delimiter: ","
  headers: [from, to, distance]
  cell_radius: 25
  lat_field: latitude
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(catalogue))
	require.NoError(t, err)
	assert.Equal(t, []string{"airports", "routes"}, s.Names())

	a := s["airports"]
	assert.Equal(t, KeyColumns{"code"}, a.KeyCol)
	assert.Equal(t, Headers{"code", "name", "", "lat", "lng"}, a.Headers)
	assert.Equal(t, 1, a.Column("name"))
	assert.Equal(t, -1, a.Column(""))
	lat, lng := a.GeoFields()
	assert.Equal(t, "lat", lat)
	assert.Equal(t, "lng", lng)

	r := s["routes"]
	assert.Equal(t, KeyColumns{"from", "to"}, r.KeyCol)
	assert.Equal(t, 25.0, r.CellRadius)
	lat, _ = r.GeoFields()
	assert.Equal(t, "latitude", lat)
}

func TestParseInvalid(t *testing.T) {
	tests := map[string]string{
		"missing source":    "x: {key_col: a, delimiter: ',', headers: [a]}",
		"missing delimiter": "x: {source: f, key_col: a, headers: [a]}",
		"missing key":       "x: {source: f, delimiter: ',', headers: [a]}",
		"unknown key col":   "x: {source: f, key_col: b, delimiter: ',', headers: [a]}",
		"skipped key col":   "x: {source: f, key_col: b, delimiter: ',', headers: [a, ~]}",
		"mapping key col":   "x: {source: f, key_col: {a: 1}, delimiter: ',', headers: [a]}",
		"scalar headers":    "x: {source: f, key_col: a, delimiter: ',', headers: a}",
		"nested header":     "x: {source: f, key_col: a, delimiter: ',', headers: [a, [b]]}",
		"not yaml":          "x: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadResolvesLocalSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogue), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "airports.csv"), s["airports"].Source)
	assert.Equal(t, "/srv/data/routes.csv.gz", s["routes"].Source)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
