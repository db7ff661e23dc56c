package geobases

import (
	"embed"
	"fmt"
	"io"

	"github.com/andreiashu/geobases/internal/config"
	"github.com/andreiashu/geobases/internal/loader"
)

// dataFS holds the default sources catalogue and sample datasets.
//
//go:embed data
var dataFS embed.FS

// defaultSourcesFile is the embedded catalogue, looked up on the filesystem
// first so a checkout can override it.
const defaultSourcesFile = "data/sources.yaml"

// Open loads the dataset called name from the sources catalogue (the
// embedded one unless WithSourcesFile is given). The dataset's geo fields
// and cell radius apply unless overridden by opts.
//
// Example:
//
//	b, err := Open("airports", WithCellRadius(20))
func Open(name string, opts ...Option) (*Base, error) {
	sources, err := loadSources(newConfig(opts).SourcesFile)
	if err != nil {
		return nil, err
	}
	ds, ok := sources[name]
	if !ok {
		return nil, &UnknownBaseError{Name: name, Available: sources.Names()}
	}

	cfg := datasetConfig(ds, opts)
	log := cfg.logger(name)
	table, err := loader.Load(ds, dataFS, log)
	if err != nil {
		return nil, fmt.Errorf("opening base %s: %w", name, err)
	}

	b := newBase(name, table.Fields, entries(table), cfg)
	log.Info().
		Int("records", b.Len()).
		Int("geocoded", b.Geocoded()).
		Int("skipped", table.Skipped).
		Msg("Base loaded")
	return b, nil
}

// BaseNames returns the dataset names of the sources catalogue.
func BaseNames(opts ...Option) ([]string, error) {
	sources, err := loadSources(newConfig(opts).SourcesFile)
	if err != nil {
		return nil, err
	}
	return sources.Names(), nil
}

// loadSources reads the catalogue at path, or the default one when path is
// empty.
func loadSources(path string) (config.Sources, error) {
	if path != "" {
		return config.Load(path)
	}
	rc, err := loader.Open(defaultSourcesFile, dataFS)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", defaultSourcesFile, err)
	}
	s, err := config.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", defaultSourcesFile, err)
	}
	return s, nil
}

// datasetConfig layers the dataset settings between the defaults and opts.
func datasetConfig(ds config.Dataset, opts []Option) *BaseConfig {
	cfg := defaultConfig()
	cfg.LatField, cfg.LngField = ds.GeoFields()
	if ds.CellRadius > 0 {
		cfg.CellRadius = ds.CellRadius
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func entries(t *loader.Table) []Entry {
	out := make([]Entry, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = Entry{Key: r.Key, Line: r.Line, Fields: r.Values}
	}
	return out
}
