package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileURL(t *testing.T) {
	m := NewTileMap("http://{s}.tile/{z}/{x}/{y}/{y_osm}?s={size}", nil, nil, 0)
	assert.Equal(t, []string{"a", "b", "c"}, m.Subdomains)

	u, err := m.TileURL(TileCoord{Z: 2, X: 1, Y: 1, Scheme: OSM})
	require.NoError(t, err)
	assert.Equal(t, "http://a.tile/2/1/2/1?s=256", u)

	u, err = m.TileURL(TileCoord{Z: 2, X: 2, Y: 2, Scheme: TMS})
	require.NoError(t, err)
	assert.Equal(t, "http://b.tile/2/2/2/1?s=256", u)

	single := NewTileMap("http://{s}.example/{z}/{x}/{y_osm}.png", []string{"t0"}, nil, 512)
	u, err = single.TileURL(TileCoord{Z: 1, X: 1, Y: 0, Scheme: OSM})
	require.NoError(t, err)
	assert.Equal(t, "http://t0.example/1/1/0.png", u)

	_, err = NewTileMap("http://tile/{z}/{x}/{row}", nil, nil, 0).TileURL(TileCoord{Z: 1})
	var de *DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "http://tile/{z}/{x}/{row}", de.URL)
}
