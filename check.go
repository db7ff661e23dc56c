package geobases

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/andreiashu/geobases/internal/config"
	"github.com/andreiashu/geobases/internal/loader"
)

// SourceReport describes one dataset of the sources catalogue after loading.
type SourceReport struct {
	Name       string
	Source     string
	Records    int // distinct keys
	Geocoded   int // records indexed in the grid
	Duplicates int // rows whose key was already seen
	Skipped    int // rows too short to hold a key
	Fields     []string
	GeoSupport bool
	Err        error // load failure, other fields are zero
}

// OK reports whether the dataset loaded.
func (r SourceReport) OK() bool { return r.Err == nil }

// CheckSources loads every dataset of the sources catalogue concurrently and
// reports what each holds. A dataset failing to load is reported through
// its SourceReport.Err; the returned error is for an unreadable catalogue or
// a cancelled ctx.
func CheckSources(ctx context.Context, opts ...Option) ([]SourceReport, error) {
	sources, err := loadSources(newConfig(opts).SourcesFile)
	if err != nil {
		return nil, err
	}

	names := sources.Names()
	reports := make([]SourceReport, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = checkSource(name, sources[name], opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })
	return reports, nil
}

func checkSource(name string, ds config.Dataset, opts []Option) SourceReport {
	r := SourceReport{Name: name, Source: ds.Source}

	cfg := datasetConfig(ds, opts)
	log := cfg.logger(name)
	table, err := loader.Load(ds, dataFS, log)
	if err != nil {
		r.Err = fmt.Errorf("checking base %s: %w", name, err)
		log.Error().Err(err).Msg("Source failed to load")
		return r
	}

	seen := make(map[string]bool, len(table.Rows))
	for _, row := range table.Rows {
		if seen[row.Key] {
			r.Duplicates++
		}
		seen[row.Key] = true
	}

	b := newBase(name, table.Fields, entries(table), cfg)
	r.Records = b.Len()
	r.Geocoded = b.Geocoded()
	r.Skipped = table.Skipped
	r.Fields = b.Fields()
	r.GeoSupport = b.HasGeoSupport()

	log.Info().
		Int("records", r.Records).
		Int("geocoded", r.Geocoded).
		Int("duplicates", r.Duplicates).
		Int("skipped", r.Skipped).
		Msg("Source checked")
	return r
}
