// Package loader reads delimited source files into keyed rows.
//
// Lines starting with '#' and blank lines are skipped. Each remaining line is
// split on the dataset delimiter and its columns are named by the dataset
// headers; columns with an empty header are not loaded. Compressed sources
// (.gz, .bz2, .zst, .lz4, .zip) are decompressed transparently.
package loader

import (
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog"

	"github.com/andreiashu/geobases/internal/config"
)

// maxLineSize bounds a single source line.
const maxLineSize = 1 << 20

// Row is one loaded line.
type Row struct {
	Key    string
	Line   int
	Values map[string]string
}

// Table is the content of a source in file order. Keys may repeat; the
// consumer decides how duplicates resolve.
type Table struct {
	Fields  []string // loaded headers, in column order
	Rows    []Row
	Skipped int // lines too short to hold the key
}

// Read parses delimited rows from r.
func Read(r io.Reader, ds config.Dataset, log zerolog.Logger) (*Table, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	keyIdx := make([]int, len(ds.KeyCol))
	for i, k := range ds.KeyCol {
		keyIdx[i] = ds.Column(k)
	}

	t := &Table{}
	for _, h := range ds.Headers {
		if h != "" {
			t.Fields = append(t.Fields, h)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNb := 0
	for scanner.Scan() {
		lineNb++
		line := strings.Trim(scanner.Text(), " \r\n")
		if line == "" || line[0] == '#' {
			continue
		}

		cols := strings.Split(line, ds.Delimiter)
		key, ok := buildKey(cols, keyIdx)
		if !ok {
			log.Warn().Int("line", lineNb).Int("columns", len(cols)).Msg("row too short for key, skipping")
			t.Skipped++
			continue
		}

		values := make(map[string]string, len(t.Fields))
		for i, h := range ds.Headers {
			if h == "" || i >= len(cols) {
				continue
			}
			values[h] = cols[i]
		}
		t.Rows = append(t.Rows, Row{Key: key, Line: lineNb, Values: values})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading line %d: %w", lineNb+1, err)
	}
	return t, nil
}

func buildKey(cols []string, idx []int) (string, bool) {
	if len(idx) == 1 {
		if idx[0] >= len(cols) {
			return "", false
		}
		return cols[idx[0]], true
	}
	var b strings.Builder
	for _, i := range idx {
		if i >= len(cols) {
			return "", false
		}
		b.WriteString(cols[i])
	}
	return b.String(), true
}

// Load opens ds.Source, filesystem first then fallback, and reads it.
func Load(ds config.Dataset, fallback fs.FS, log zerolog.Logger) (*Table, error) {
	rc, err := Open(ds.Source, fallback)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := Read(rc, ds, log)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ds.Source, err)
	}
	return t, nil
}

// Open returns a decompressed reader for name. The local filesystem is tried
// first so that files on disk override the fallback (usually embedded) copy.
func Open(name string, fallback fs.FS) (io.ReadCloser, error) {
	var f fs.File
	fh, err := os.Open(name)
	if err == nil {
		f = fh
	} else if fallback != nil {
		f, err = fallback.Open(name)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}

	rc, err := decompress(name, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return rc, nil
}

// readCloser closes the decoder, if any, then the underlying file.
type readCloser struct {
	io.Reader
	closers []func() error
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func decompress(name string, f fs.File) (io.ReadCloser, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		return &readCloser{Reader: zr, closers: []func() error{zr.Close, f.Close}}, nil
	case ".bz2":
		return &readCloser{Reader: bzip2.NewReader(f), closers: []func() error{f.Close}}, nil
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		return &readCloser{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			f.Close,
		}}, nil
	case ".lz4":
		return &readCloser{Reader: lz4.NewReader(f), closers: []func() error{f.Close}}, nil
	case ".zip":
		return openZip(f)
	default:
		return &readCloser{Reader: f, closers: []func() error{f.Close}}, nil
	}
}

// openZip concatenates every file of the archive. Entries are only streamed
// into memory, never extracted to disk.
func openZip(f fs.File) (io.ReadCloser, error) {
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if err := copyEntry(&buf, entry); err != nil {
			return nil, err
		}
	}
	return io.NopCloser(&buf), nil
}

// copyEntry is split out so the deferred Close runs per entry.
func copyEntry(w *bytes.Buffer, entry *zip.File) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening %s in zip: %w", entry.Name, err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return err
	}
	// Keep the last line of one entry apart from the first of the next.
	if w.Len() > 0 && w.Bytes()[w.Len()-1] != '\n' {
		w.WriteByte('\n')
	}
	return nil
}
