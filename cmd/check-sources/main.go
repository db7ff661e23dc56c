// Command check-sources loads every dataset of the sources catalogue and
// reports what it holds.
//
// Usage:
//
//	go run ./cmd/check-sources
//	go run ./cmd/check-sources --sources ./my-sources.yaml --strict
//
// It exits with status 1 when a dataset fails to load, or with --strict when
// a dataset has duplicate keys or skipped rows.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/andreiashu/geobases"
	"github.com/andreiashu/geobases/internal/logger"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Sources    string  `short:"S" long:"sources"     env:"GEOBASE_SOURCES" description:"Sources catalogue, embedded one if empty"`
	CellRadius float64 `long:"cell-radius"           description:"Grid cell size in km, catalogue value if 0"`
	Strict     bool    `long:"strict"                description:"Fail on duplicate keys and skipped rows"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ok, err := run(ctx, opts, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("Checking sources failed")
	}
	if !ok {
		os.Exit(1)
	}
}

// run prints one report per dataset and tells whether all of them passed.
func run(ctx context.Context, opts Options, w io.Writer) (bool, error) {
	baseOpts := []geobases.Option{geobases.WithLogger(log.Logger)}
	if opts.Sources != "" {
		baseOpts = append(baseOpts, geobases.WithSourcesFile(opts.Sources))
	}
	if opts.CellRadius > 0 {
		baseOpts = append(baseOpts, geobases.WithCellRadius(opts.CellRadius))
	}

	reports, err := geobases.CheckSources(ctx, baseOpts...)
	if err != nil {
		return false, err
	}

	passed := true
	for _, r := range reports {
		if !r.OK() {
			passed = false
			fmt.Fprintf(w, "%s (%s): FAILED: %v\n", r.Name, r.Source, r.Err)
			continue
		}

		status := "OK"
		if opts.Strict && (r.Duplicates > 0 || r.Skipped > 0) {
			status = "FAILED"
			passed = false
		}
		fmt.Fprintf(w, "%s (%s): %s\n", r.Name, r.Source, status)
		fmt.Fprintf(w, "      Records: %d\n", r.Records)
		if r.GeoSupport {
			fmt.Fprintf(w, "      Geocoded: %d\n", r.Geocoded)
		} else {
			fmt.Fprintf(w, "      Geocoded: no geo fields\n")
		}
		fmt.Fprintf(w, "      Duplicates: %d\n", r.Duplicates)
		fmt.Fprintf(w, "      Skipped rows: %d\n", r.Skipped)
		fmt.Fprintf(w, "      Fields: %s\n", strings.Join(r.Fields, ", "))
	}
	return passed, nil
}
