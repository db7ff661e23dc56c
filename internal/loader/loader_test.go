package loader

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreiashu/geobases/internal/config"
)

const sample = `# code^name^lat^lng
CDG^Paris Charles de Gaulle^49.0097^2.5479
ORY^Paris Orly^48.7262^2.3652

  
XXX^No Coordinates^^
BAD
`

func dataset(source string) config.Dataset {
	return config.Dataset{
		Source:    source,
		KeyCol:    config.KeyColumns{"code"},
		Delimiter: "^",
		Headers:   []string{"code", "name", "lat", "lng"},
	}
}

func TestRead(t *testing.T) {
	tbl, err := Read(strings.NewReader(sample), dataset("x"), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"code", "name", "lat", "lng"}, tbl.Fields)
	require.Len(t, tbl.Rows, 4)
	assert.Zero(t, tbl.Skipped)

	cdg := tbl.Rows[0]
	assert.Equal(t, "CDG", cdg.Key)
	assert.Equal(t, 2, cdg.Line)
	assert.Equal(t, "Paris Charles de Gaulle", cdg.Values["name"])
	assert.Equal(t, "2.5479", cdg.Values["lng"])

	xxx := tbl.Rows[2]
	assert.Equal(t, "XXX", xxx.Key)
	assert.Equal(t, 6, xxx.Line)
	assert.Equal(t, "", xxx.Values["lat"])

	// A single-column row still carries its key.
	assert.Equal(t, "BAD", tbl.Rows[3].Key)
	assert.Equal(t, map[string]string{"code": "BAD"}, tbl.Rows[3].Values)
}

func TestReadSkipsShortRows(t *testing.T) {
	ds := dataset("x")
	ds.KeyCol = config.KeyColumns{"lat"}

	var logs bytes.Buffer
	tbl, err := Read(strings.NewReader("A^a^1^2\nB^b\n"), ds, zerolog.New(&logs))
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "1", tbl.Rows[0].Key)
	assert.Equal(t, 1, tbl.Skipped)
	assert.Contains(t, logs.String(), "too short")
}

func TestReadCompositeKeyAndSkippedColumns(t *testing.T) {
	ds := config.Dataset{
		Source:    "x",
		KeyCol:    config.KeyColumns{"country", "code"},
		Delimiter: "|",
		Headers:   []string{"code", "", "country"},
	}
	tbl, err := Read(strings.NewReader("PAR|ignored|FR\r\n"), ds, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"code", "country"}, tbl.Fields)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "FRPAR", tbl.Rows[0].Key)
	assert.Equal(t, map[string]string{"code": "PAR", "country": "FR"}, tbl.Rows[0].Values)
}

func TestReadInvalidDataset(t *testing.T) {
	ds := dataset("x")
	ds.KeyCol = config.KeyColumns{"iata"}
	_, err := Read(strings.NewReader(sample), ds, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenPrefersFilesystem(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(name, []byte("disk\n"), 0o644))

	fallback := fstest.MapFS{
		"b.csv": {Data: []byte("embedded only\n")},
	}

	got := readAll(t, name, fallback)
	assert.Equal(t, "disk\n", got)

	got = readAll(t, "b.csv", fallback)
	assert.Equal(t, "embedded only\n", got)

	_, err := Open("missing.csv", fallback)
	assert.Error(t, err)
	_, err = Open("missing.csv", nil)
	assert.Error(t, err)
}

func TestOpenCompressed(t *testing.T) {
	plain := []byte("CDG^Paris Charles de Gaulle^49.0097^2.5479\n")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var l4 bytes.Buffer
	lw := lz4.NewWriter(&l4)
	_, err = lw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, lw.Close())

	var zp bytes.Buffer
	zpw := zip.NewWriter(&zp)
	for _, n := range []string{"part1.csv", "part2.csv"} {
		w, err := zpw.Create(n)
		require.NoError(t, err)
		_, err = w.Write(bytes.TrimSuffix(plain, []byte("\n")))
		require.NoError(t, err)
	}
	require.NoError(t, zpw.Close())

	fsys := fstest.MapFS{
		"a.csv.gz":  {Data: gz.Bytes()},
		"a.csv.zst": {Data: zs.Bytes()},
		"a.csv.lz4": {Data: l4.Bytes()},
		"a.zip":     {Data: zp.Bytes()},
	}

	for _, name := range []string{"a.csv.gz", "a.csv.zst", "a.csv.lz4"} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, string(plain), readAll(t, name, fsys))
		})
	}

	t.Run("a.zip", func(t *testing.T) {
		assert.Equal(t, string(plain)+string(plain), readAll(t, "a.zip", fsys))
	})
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{"airports.csv": {Data: []byte(sample)}}
	tbl, err := Load(dataset("airports.csv"), fsys, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 4)

	_, err = Load(dataset("nope.csv"), fsys, zerolog.Nop())
	assert.Error(t, err)
}

func readAll(t *testing.T, name string, fsys fstest.MapFS) string {
	t.Helper()
	rc, err := Open(name, fsys)
	require.NoError(t, err)
	defer rc.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	return buf.String()
}
