package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloaderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/3/4/2.png", r.URL.Path)
		assert.Equal(t, "mbtiler-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Write([]byte("tile"))
	}))
	defer srv.Close()

	m := NewTileMap(srv.URL+"/{z}/{x}/{y_osm}.png", nil, map[string]string{"User-Agent": "mbtiler-test", "X-Api-Key": "secret"}, 0)
	d := NewTileDownloader(context.Background(), m)
	assert.Equal(t, TileSize, d.TileSize())
	data, err := d.Tile(TileCoord{Z: 3, X: 4, Y: 2, Scheme: OSM})
	require.NoError(t, err)
	assert.Equal(t, []byte("tile"), data)
}

func TestDownloaderRetries(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewTileDownloader(context.Background(), NewTileMap(srv.URL+"/{z}/{x}/{y}", nil, nil, 0))
	var sleeps []time.Duration
	d.sleep = func(s time.Duration) { sleeps = append(sleeps, s) }
	before := testutil.ToFloat64(downloadRetries)

	_, err := d.Tile(TileCoord{Z: 1, X: 1, Y: 1})
	var de *DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, srv.URL+"/1/1/1", de.URL)
	assert.Contains(t, err.Error(), "cannot download URL")
	assert.EqualValues(t, DownloadRetries, atomic.LoadInt32(&requests))

	var secs []int
	for _, s := range sleeps {
		secs = append(secs, int(s/time.Second))
	}
	assert.Equal(t, []int{1, 1, 2, 2, 3, 3, 4, 4, 5, 5}, secs)
	assert.Equal(t, before+DownloadRetries-1, testutil.ToFloat64(downloadRetries))
}

func TestDownloaderRecovers(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	d := NewTileDownloader(context.Background(), NewTileMap(srv.URL+"/{z}/{x}/{y}", nil, nil, 0))
	d.sleep = func(time.Duration) {}
	data, err := d.Tile(TileCoord{Z: 0})
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), data)
	assert.EqualValues(t, 3, atomic.LoadInt32(&requests))
}

func TestDownloaderCancelled(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewTileDownloader(ctx, NewTileMap(srv.URL+"/{z}/{x}/{y}", nil, nil, 0))
	d.sleep = func(time.Duration) { t.Fatal("no retry after cancel") }
	_, err := d.Tile(TileCoord{Z: 0})
	var de *DownloadError
	assert.ErrorAs(t, err, &de)
	assert.EqualValues(t, 0, atomic.LoadInt32(&requests))
}
