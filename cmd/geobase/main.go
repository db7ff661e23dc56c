// Command geobase queries a dataset of the sources catalogue.
//
// Usage:
//
//	geobase ORY CDG                          # print records
//	geobase --fuzzy "paris de gaulle"        # best name matches
//	geobase --near 50 ORY                    # records within 50 km of ORY
//	geobase --closest 3 43.70,7.26           # 3 records closest to a point
//	geobase --exact FR --property country_code --near 300 geohash:u09tvw
//
// Filters chain: --exact, then --near or --closest, then --fuzzy, each
// restricting the candidates of the next.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/andreiashu/geobases"
	"github.com/andreiashu/geobases/internal/logger"
)

// Pseudo fields added to printed rows.
const (
	refField     = "__ref__" // distance, score or rank
	geohashField = "__gh__"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Base        string   `short:"b" long:"base"         env:"GEOBASE"         description:"Base to query" default:"airports"`
	Sources     string   `short:"S" long:"sources"      env:"GEOBASE_SOURCES" description:"Sources catalogue, embedded one if empty"`
	Fuzzy       string   `short:"f" long:"fuzzy"        description:"Rank records whose property resembles this text"`
	Exact       string   `short:"e" long:"exact"        description:"Keep records whose property equals this value"`
	Reverse     bool     `short:"r" long:"reverse"      description:"With --exact, keep records whose property differs"`
	Property    string   `short:"p" long:"property"     description:"Property used by --fuzzy and --exact" default:"name"`
	Limit       int      `short:"l" long:"limit"        description:"Maximum number of results, 0 for all" default:"10"`
	Near        float64  `short:"n" long:"near"         description:"Keep records within this radius (km) of the point or key argument"`
	Closest     int      `short:"c" long:"closest"      description:"Keep this many records closest to the point or key argument"`
	WithoutGrid bool     `short:"w" long:"without-grid" description:"Measure every record instead of using the grid"`
	MinMatch    float64  `short:"m" long:"min-match"    description:"Fuzzy similarity threshold" default:"0.75"`
	CellRadius  float64  `long:"cell-radius"            description:"Grid cell size in km, catalogue value if 0"`
	Quiet       bool     `short:"q" long:"quiet"        description:"Print ^-separated rows without header"`
	Omit        []string `short:"o" long:"omit"         description:"Field not to print (repeatable)"`
	Show        []string `short:"s" long:"show"         description:"Field to print (repeatable), all if none"`
	List        bool     `long:"list"                   description:"List available bases and exit"`

	Args struct {
		Keys []string `positional-arg-name:"KEY|POINT" description:"Keys to print, or the point/key --near and --closest measure from"`
	} `positional-args:"yes"`
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

	if err := run(opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Query failed")
	}
}

// result is one printed row.
type result struct {
	ref string
	key string
}

func run(opts Options, w io.Writer) error {
	baseOpts := []geobases.Option{geobases.WithLogger(log.Logger)}
	if opts.Sources != "" {
		baseOpts = append(baseOpts, geobases.WithSourcesFile(opts.Sources))
	}
	if opts.CellRadius > 0 {
		baseOpts = append(baseOpts, geobases.WithCellRadius(opts.CellRadius))
	}

	if opts.List {
		names, err := geobases.BaseNames(baseOpts...)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, strings.Join(names, "\n"))
		return err
	}

	b, err := geobases.Open(opts.Base, baseOpts...)
	if err != nil {
		return err
	}

	results, err := query(b, opts)
	if err != nil {
		return err
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	fields := columns(b, opts)
	if opts.Quiet {
		return printQuiet(w, b, fields, results)
	}
	return printTable(w, b, fields, results)
}

// query applies the filters in order and returns the rows to print.
func query(b *geobases.Base, opts Options) ([]result, error) {
	geoQuery := opts.Near > 0 || opts.Closest > 0
	if !geoQuery && opts.Exact == "" && opts.Fuzzy == "" {
		return listKeys(b, opts.Args.Keys)
	}

	var keys []string
	var results []result

	if opts.Exact != "" {
		var from []string
		if !geoQuery && len(opts.Args.Keys) > 0 {
			from = opts.Args.Keys
		}
		matched, err := b.KeysWhere(opts.Property, opts.Exact, opts.Reverse, from)
		if err != nil {
			return nil, err
		}
		keys = matched
		results = ranked(matched)
	}

	if geoQuery {
		if len(opts.Args.Keys) == 0 {
			return nil, fmt.Errorf("--near and --closest need a point or a key argument")
		}
		neighbors, err := around(b, opts, opts.Args.Keys[0], keys)
		if err != nil {
			return nil, err
		}
		keys = make([]string, len(neighbors))
		results = make([]result, len(neighbors))
		for i, n := range neighbors {
			keys[i] = n.Key
			results[i] = result{ref: strconv.FormatFloat(n.Distance, 'f', 2, 64), key: n.Key}
		}
	}

	if opts.Fuzzy != "" {
		matches, err := b.FuzzyMatch(opts.Fuzzy, opts.Property, geobases.FuzzyOptions{
			Limit:    fuzzyLimit(opts.Limit, b.Len()),
			MinMatch: opts.MinMatch,
			Keys:     keys,
		})
		if err != nil {
			return nil, err
		}
		results = make([]result, len(matches))
		for i, m := range matches {
			results[i] = result{ref: strconv.FormatFloat(m.Score, 'f', 3, 64), key: m.Key}
		}
	}
	return results, nil
}

func fuzzyLimit(limit, all int) int {
	if limit <= 0 {
		return all
	}
	return limit
}

// around runs --near or --closest from a point, or from a key when the
// argument is not a point.
func around(b *geobases.Base, opts Options, anchor string, keys []string) ([]geobases.Neighbor, error) {
	search := geobases.SearchOptions{Exhaustive: opts.WithoutGrid, Keys: keys}

	p, err := geobases.ParsePoint(anchor)
	if err != nil {
		if !b.Contains(anchor) {
			return nil, fmt.Errorf("%q is neither a point nor a key of %s: %w", anchor, b.Name(), err)
		}
		if opts.Near > 0 {
			return b.FindNearKey(anchor, opts.Near, search)
		}
		return b.FindClosestKey(anchor, opts.Closest, search)
	}

	if opts.Near > 0 {
		return b.FindNear(p, opts.Near, search)
	}
	return b.FindClosest(p, opts.Closest, search)
}

// listKeys returns the given keys, or every key when none is given.
func listKeys(b *geobases.Base, keys []string) ([]result, error) {
	if len(keys) == 0 {
		return ranked(b.Keys()), nil
	}
	var out []result
	for _, k := range keys {
		if !b.Contains(k) {
			log.Warn().Str("key", k).Str("base", b.Name()).Msg("Key not found")
			continue
		}
		out = append(out, result{ref: strconv.Itoa(len(out) + 1), key: k})
	}
	return out, nil
}

func ranked(keys []string) []result {
	out := make([]result, len(keys))
	for i, k := range keys {
		out[i] = result{ref: strconv.Itoa(i + 1), key: k}
	}
	return out
}

// columns returns the fields to print after the reference column.
func columns(b *geobases.Base, opts Options) []string {
	if len(opts.Show) > 0 {
		return opts.Show
	}
	omit := make(map[string]bool, len(opts.Omit))
	for _, f := range opts.Omit {
		omit[f] = true
	}

	var fields []string
	for _, f := range b.Fields() {
		if !omit[f] {
			fields = append(fields, f)
		}
	}
	if b.HasGeoSupport() && !omit[geohashField] {
		fields = append(fields, geohashField)
	}
	return fields
}

func value(b *geobases.Base, key, field string) string {
	if field == geohashField {
		p, ok, err := b.Location(key)
		if err != nil || !ok {
			return ""
		}
		return p.Geohash(6)
	}
	v, err := b.Field(key, field)
	if err != nil {
		return ""
	}
	return v
}

func printQuiet(w io.Writer, b *geobases.Base, fields []string, results []result) error {
	for _, r := range results {
		row := make([]string, 0, len(fields)+1)
		row = append(row, r.ref)
		for _, f := range fields {
			row = append(row, value(b, r.key, f))
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, "^")); err != nil {
			return err
		}
	}
	return nil
}

// printTable prints one line per field and one column per result.
func printTable(w io.Writer, b *geobases.Base, fields []string, results []result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{refField}
	for _, r := range results {
		header = append(header, r.ref)
	}
	if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")); err != nil {
		return err
	}

	for _, f := range fields {
		line := []string{f}
		for _, r := range results {
			line = append(line, value(b, r.key, f))
		}
		if _, err := fmt.Fprintln(tw, strings.Join(line, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
