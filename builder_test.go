package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceMBTiles(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mbtiles")
	m, err := OpenMBTiles(path, MBTilesOptions{Format: PNG, Scheme: OSM})
	require.NoError(t, err)
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			require.NoError(t, m.Put(TileCoord{Z: 1, X: x, Y: y, Scheme: OSM}, gradientPNG(t, x*2+y)))
		}
	}
	require.NoError(t, m.RecomputeBounds())
	require.NoError(t, m.Close())
	return path
}

func TestCoverageBuilderFromMBTiles(t *testing.T) {
	r, err := OpenMBTilesReader(sourceMBTiles(t))
	require.NoError(t, err)
	defer r.Close()

	out := filepath.Join(t.TempDir(), "out.mbtiles")
	b := NewCoverageBuilder(out, r, BuilderOptions{Quiet: true})
	stats, err := b.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, BuildStats{Requested: 4, Written: 4}, stats)

	_, err = b.Run(context.Background(), false)
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)

	b = NewCoverageBuilder(out, r, BuilderOptions{Quiet: true})
	b.AddCoverage(WorldBBox, []int{1, 2})
	b.AddMetadata(map[string]string{"name": "custom"})
	stats, err = b.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, BuildStats{Requested: 20, Written: 4, Missing: 16}, stats)

	m, err := OpenMBTiles(out, MBTilesOptions{ReadOnly: true})
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, OSM, m.Scheme())
	n, err := m.Count(CountPattern{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	meta, err := m.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "custom", meta["name"])
	assert.Equal(t, "png", meta["format"])
	got, err := m.Get(TileCoord{Z: 1, X: 1, Y: 0, Scheme: OSM})
	require.NoError(t, err)
	assert.Equal(t, gradientPNG(t, 2), got)
}

func TestCoverageBuilderFromDownloader(t *testing.T) {
	tile := gradientPNG(t, 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(tile)
	}))
	defer srv.Close()
	ctx := context.Background()
	d := NewTileDownloader(ctx, NewTileMap(srv.URL+"/{z}/{x}/{y_osm}.png", nil, nil, 0))

	dir := t.TempDir()
	b := NewCoverageBuilder(filepath.Join(dir, "nocover.mbtiles"), d, BuilderOptions{Format: PNG, Scheme: TMS, Quiet: true})
	_, err := b.Run(ctx, false)
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)

	polar := orb.Polygon{{{10, 86}, {20, 86}, {20, 89}, {10, 89}, {10, 86}}}
	var ice *InvalidCoverageError
	assert.ErrorAs(t, b.AddGeometry(polar, []int{2}), &ice)

	out := filepath.Join(dir, "poly.mbtiles")
	b = NewCoverageBuilder(out, d, BuilderOptions{Format: PNG, Scheme: TMS, Quiet: true})
	poly := orb.Polygon{{{1, 1}, {10, 1}, {10, 10}, {1, 10}, {1, 1}}}
	require.NoError(t, b.AddGeometry(poly, []int{2}))
	stats, err := b.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, BuildStats{Requested: 1, Written: 1}, stats)

	m, err := OpenMBTiles(out, MBTilesOptions{ReadOnly: true})
	require.NoError(t, err)
	defer m.Close()
	ok, err := m.Exists(TileCoord{Z: 2, X: 2, Y: 1, Scheme: OSM})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCoverageBuilderOverlappingCoverages(t *testing.T) {
	tile := gradientPNG(t, 7)
	var mu sync.Mutex
	hits := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		w.Write(tile)
	}))
	defer srv.Close()
	ctx := context.Background()
	d := NewTileDownloader(ctx, NewTileMap(srv.URL+"/{z}/{x}/{y_osm}.png", nil, nil, 0))

	out := filepath.Join(t.TempDir(), "union.mbtiles")
	b := NewCoverageBuilder(out, d, BuilderOptions{Format: PNG, Scheme: TMS, Quiet: true})
	b.AddCoverage(WorldBBox, []int{1})
	b.AddCoverage(BBox{West: -10, South: -10, East: 10, North: 10}, []int{1, 2})
	// west of east, skipped with a warning
	b.AddCoverage(BBox{West: 10, South: -10, East: -10, North: 10}, []int{3})
	stats, err := b.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, BuildStats{Requested: 8, Written: 8}, stats)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, hits, 8)
	for path, n := range hits {
		assert.Equal(t, 1, n, path)
	}
	assert.Equal(t, 1, hits["/2/1/1.png"])
	assert.Equal(t, 1, hits["/2/2/2.png"])

	m, err := OpenMBTiles(out, MBTilesOptions{ReadOnly: true})
	require.NoError(t, err)
	defer m.Close()
	n, err := m.Count(CountPattern{})
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}
