// Package config reads the dataset catalogue: which delimited sources exist
// and how their columns map to record fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Sources maps a dataset name to its description.
type Sources map[string]Dataset

// Dataset describes one delimited source file.
type Dataset struct {
	// Source is a path or file name. Local sources are resolved against the
	// directory of the catalogue that declares them.
	Source string `yaml:"source"`
	Local  bool   `yaml:"local"`

	KeyCol    KeyColumns `yaml:"key_col"`
	Delimiter string     `yaml:"delimiter"`
	// Headers names each column in order. An empty or null header skips the
	// column.
	Headers Headers `yaml:"headers"`

	LatField   string  `yaml:"lat_field,omitempty"`
	LngField   string  `yaml:"lng_field,omitempty"`
	CellRadius float64 `yaml:"cell_radius,omitempty"`
}

// KeyColumns names the column(s) forming a record key. Several columns are
// concatenated in order.
type KeyColumns []string

// UnmarshalYAML accepts either a single column name or a list of names.
func (k *KeyColumns) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*k = KeyColumns{s}
		return nil
	case yaml.SequenceNode:
		var cols []string
		if err := value.Decode(&cols); err != nil {
			return err
		}
		*k = cols
		return nil
	default:
		return fmt.Errorf("line %d: key_col must be a column name or a list of names", value.Line)
	}
}

// Headers names the columns of a source.
type Headers []string

// UnmarshalYAML keeps null entries as empty names so later columns keep
// their position.
func (h *Headers) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: headers must be a list", value.Line)
	}
	out := make(Headers, len(value.Content))
	for i, n := range value.Content {
		if n.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: header must be a name or null", n.Line)
		}
		if n.ShortTag() == "!!null" {
			continue
		}
		out[i] = n.Value
	}
	*h = out
	return nil
}

// Load reads and validates the catalogue at path. Relative local sources are
// rewritten relative to the catalogue's directory.
func Load(path string) (Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for name, ds := range s {
		if ds.Local && !filepath.IsAbs(ds.Source) {
			ds.Source = filepath.Join(dir, ds.Source)
			s[name] = ds
		}
	}
	return s, nil
}

// Parse decodes and validates a catalogue.
func Parse(data []byte) (Sources, error) {
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	for name, ds := range s {
		if err := ds.Validate(); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
	}
	return s, nil
}

// Names returns the dataset names in sorted order.
func (s Sources) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the key columns are declared headers.
func (d Dataset) Validate() error {
	if d.Source == "" {
		return fmt.Errorf("missing source")
	}
	if d.Delimiter == "" {
		return fmt.Errorf("missing delimiter")
	}
	if len(d.KeyCol) == 0 {
		return fmt.Errorf("missing key_col")
	}
	for _, k := range d.KeyCol {
		if d.Column(k) < 0 {
			return fmt.Errorf("key column %q not in headers %v", k, d.Headers)
		}
	}
	return nil
}

// Column returns the index of header h, or -1.
func (d Dataset) Column(h string) int {
	if h == "" {
		return -1
	}
	for i, name := range d.Headers {
		if name == h {
			return i
		}
	}
	return -1
}

// GeoFields returns the latitude and longitude field names, defaulting to
// "lat" and "lng".
func (d Dataset) GeoFields() (lat, lng string) {
	lat, lng = d.LatField, d.LngField
	if lat == "" {
		lat = "lat"
	}
	if lng == "" {
		lng = "lng"
	}
	return lat, lng
}
