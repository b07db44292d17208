package main

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("-8, 36,80,77")
	require.NoError(t, err)
	assert.Equal(t, BBox{West: -8, South: 36, East: 80, North: 77}, b)
	lon, lat := b.Center()
	assert.Equal(t, 36.0, lon)
	assert.Equal(t, 56.5, lat)

	for _, s := range []string{"1,2,3", "a,1,2,3", "10,0,5,10", "0,10,10,5", "-190,0,10,10", "0,-95,10,10"} {
		_, err := ParseBBox(s)
		var ce *InvalidCoverageError
		assert.ErrorAs(t, err, &ce, s)
	}
}

func TestParseZoomRange(t *testing.T) {
	min, max, err := ParseZoomRange("")
	require.NoError(t, err)
	assert.Equal(t, -1, min)
	assert.Equal(t, -1, max)

	min, max, err = ParseZoomRange("2-5")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5}, ZoomLevels(min, max))

	min, max, err = ParseZoomRange("7")
	require.NoError(t, err)
	assert.Equal(t, 7, min)
	assert.Equal(t, 7, max)

	for _, s := range []string{"x", "5-2", "0-32", "1-y"} {
		_, _, err := ParseZoomRange(s)
		var ce *ConfigurationError
		assert.ErrorAs(t, err, &ce, s)
	}
}

func TestTilesList(t *testing.T) {
	bbox := BBox{West: -8, South: 36, East: 80, North: 77}
	tiles, refined, err := TilesList(bbox, []int{3}, OSM, TileSize)
	require.NoError(t, err)
	require.Len(t, tiles, 9)
	for _, c := range tiles {
		assert.Equal(t, OSM, c.Scheme)
		assert.True(t, c.X >= 3 && c.X <= 5, c.String())
		assert.True(t, c.Y >= 1 && c.Y <= 3, c.String())
	}
	assert.True(t, refined.Contains(bbox), refined.String())

	again, _, err := TilesList(bbox, []int{3}, OSM, TileSize)
	require.NoError(t, err)
	assert.Equal(t, tiles, again)

	tms, _, err := TilesList(bbox, []int{3}, TMS, TileSize)
	require.NoError(t, err)
	require.Len(t, tms, 9)
	for i := range tms {
		assert.Equal(t, TMS, tms[i].Scheme)
	}
	assert.Contains(t, tms, TileCoord{Z: 3, X: 3, Y: 6, Scheme: TMS})
}

func TestTilesListNesting(t *testing.T) {
	bbox := BBox{West: -8, South: 36, East: 80, North: 77}
	z3, _, err := TilesList(bbox, []int{3}, OSM, TileSize)
	require.NoError(t, err)
	z4, _, err := TilesList(bbox, []int{4}, OSM, TileSize)
	require.NoError(t, err)

	parents := NewSet()
	for _, c := range z3 {
		parents.Add(c)
	}
	covered := NewSet()
	for _, c := range z4 {
		parent := TileCoord{Z: 3, X: c.X / 2, Y: c.Y / 2, Scheme: OSM}
		assert.True(t, parents.Has(parent), c.String())
		covered.Add(parent)
	}
	assert.Equal(t, parents.Len(), covered.Len())

	both, _, err := TilesList(bbox, []int{3, 4}, OSM, TileSize)
	require.NoError(t, err)
	assert.Len(t, both, len(z3)+len(z4))
	assert.Equal(t, 3, both[0].Z)
	assert.Equal(t, 4, both[len(both)-1].Z)
}

func TestTilesListEdgePastBoundary(t *testing.T) {
	bbox := BBox{West: -10, South: -10, East: 0.1, North: 10}
	tiles, refined, err := TilesList(bbox, []int{1}, TMS, TileSize)
	require.NoError(t, err)
	assert.Len(t, tiles, 4)
	assert.Contains(t, tiles, TileCoord{Z: 1, X: 1, Y: 1, Scheme: TMS})
	assert.True(t, refined.Contains(bbox), refined.String())

	tiles, refined, err = TilesList(bbox, []int{2}, OSM, TileSize)
	require.NoError(t, err)
	assert.Equal(t, []TileCoord{
		{Z: 2, X: 1, Y: 1, Scheme: OSM}, {Z: 2, X: 1, Y: 2, Scheme: OSM},
		{Z: 2, X: 2, Y: 1, Scheme: OSM}, {Z: 2, X: 2, Y: 2, Scheme: OSM},
	}, tiles)
	assert.True(t, refined.Contains(bbox), refined.String())
	assert.InDelta(t, -90, refined.West, 1e-9)
	assert.InDelta(t, 90, refined.East, 1e-9)
	assert.InDelta(t, 66.51326044311186, refined.North, 1e-9)

	// an edge on the boundary does not reach into the next tile
	tiles, _, err = TilesList(BBox{West: -10, South: -10, East: 0, North: 10}, []int{1}, OSM, TileSize)
	require.NoError(t, err)
	assert.Len(t, tiles, 2)
}

func TestTilesListInvalid(t *testing.T) {
	var ce *InvalidCoverageError
	_, _, err := TilesList(BBox{West: 10, South: 0, East: 0, North: 10}, []int{1}, OSM, TileSize)
	assert.ErrorAs(t, err, &ce)
	_, _, err = TilesList(WorldBBox, nil, OSM, TileSize)
	assert.ErrorAs(t, err, &ce)
	_, _, err = TilesList(WorldBBox, []int{32}, OSM, TileSize)
	assert.ErrorAs(t, err, &ce)
	_, _, err = TilesList(WorldBBox, []int{ZoomMin - 1}, OSM, TileSize)
	assert.ErrorAs(t, err, &ce)

	world, _, err := TilesList(WorldBBox, []int{0, 1}, TMS, TileSize)
	require.NoError(t, err)
	assert.Len(t, world, 5)
}

func TestGridTiles(t *testing.T) {
	tiles, _, err := TilesList(BBox{West: -8, South: 36, East: 80, North: 77}, []int{3}, TMS, TileSize)
	require.NoError(t, err)
	grid := GridTiles(tiles)
	require.Len(t, grid, 3)
	// northernmost row first
	assert.Equal(t, 6, grid[0][0].Y)
	assert.Equal(t, 4, grid[2][0].Y)
	for _, row := range grid {
		require.Len(t, row, 3)
		assert.Equal(t, 3, row[0].X)
		assert.Equal(t, 5, row[2].X)
	}

	osm, _, err := TilesList(BBox{West: -8, South: 36, East: 80, North: 77}, []int{3}, OSM, TileSize)
	require.NoError(t, err)
	assert.Equal(t, 1, GridTiles(osm)[0][0].Y)
}

func TestCoverageGeometry(t *testing.T) {
	poly := orb.Polygon{{{1, 1}, {10, 1}, {10, 10}, {1, 10}, {1, 1}}}
	cv := Coverage{Geometry: poly, Zooms: []int{2}}
	tiles, bbox, err := cv.Tiles(OSM, TileSize)
	require.NoError(t, err)
	assert.Contains(t, tiles, TileCoord{Z: 2, X: 2, Y: 1, Scheme: OSM})
	assert.True(t, bbox.Contains(BBox{West: 1, South: 1, East: 10, North: 10}))

	cv = Coverage{BBox: BBox{West: 1, South: 1, East: 10, North: 10}, Zooms: []int{2}}
	fromBBox, _, err := cv.Tiles(OSM, TileSize)
	require.NoError(t, err)
	assert.Equal(t, []TileCoord{{Z: 2, X: 2, Y: 1, Scheme: OSM}}, fromBBox)

	_, _, err = Coverage{Geometry: poly}.Tiles(OSM, TileSize)
	var ce *InvalidCoverageError
	assert.ErrorAs(t, err, &ce)
}
