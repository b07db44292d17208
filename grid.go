package main

import (
	"math"
	"strings"
)

const earthRadius = 6378137.0

//GlobalMercator EPSG:3857 球面墨卡托瓦片网格, 行号为tms
type GlobalMercator struct {
	tileSize          int
	initialResolution float64
	originShift       float64
}

//NewGlobalMercator 创建墨卡托网格
func NewGlobalMercator(tileSize int) *GlobalMercator {
	if tileSize <= 0 {
		tileSize = TileSize
	}
	return &GlobalMercator{
		tileSize:          tileSize,
		initialResolution: 2 * math.Pi * earthRadius / float64(tileSize),
		originShift:       2 * math.Pi * earthRadius / 2.0,
	}
}

//TileSize 瓦片像素大小
func (m *GlobalMercator) TileSize() int { return m.tileSize }

//OriginShift 原点偏移 (20037508.342789244)
func (m *GlobalMercator) OriginShift() float64 { return m.originShift }

//LatLonToMeters WGS84经纬度转墨卡托米
func (m *GlobalMercator) LatLonToMeters(lat, lon float64) (float64, float64) {
	mx := lon * m.originShift / 180.0
	my := math.Log(math.Tan((90+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	my = my * m.originShift / 180.0
	return mx, my
}

//MetersToLatLon 墨卡托米转WGS84经纬度
func (m *GlobalMercator) MetersToLatLon(mx, my float64) (float64, float64) {
	lon := (mx / m.originShift) * 180.0
	lat := (my / m.originShift) * 180.0
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	return lat, lon
}

//PixelsToMeters 像素坐标转墨卡托米
func (m *GlobalMercator) PixelsToMeters(px, py float64, zoom int) (float64, float64) {
	res := m.Resolution(zoom)
	return px*res - m.originShift, py*res - m.originShift
}

//MetersToPixels 墨卡托米转像素坐标
func (m *GlobalMercator) MetersToPixels(mx, my float64, zoom int) (float64, float64) {
	res := m.Resolution(zoom)
	return (mx + m.originShift) / res, (my + m.originShift) / res
}

//PixelsToTile 像素所在瓦片
func (m *GlobalMercator) PixelsToTile(px, py float64) (int, int) {
	ts := float64(m.tileSize)
	return int(math.Ceil(px/ts) - 1), int(math.Ceil(py/ts) - 1)
}

//PixelsToRaster 像素坐标原点从左下转到左上
func (m *GlobalMercator) PixelsToRaster(px, py float64, zoom int) (float64, float64) {
	mapSize := float64(m.tileSize << uint(zoom))
	return px, mapSize - py
}

//MetersToTile 米坐标所在瓦片 (tms)
func (m *GlobalMercator) MetersToTile(mx, my float64, zoom int) (int, int) {
	px, py := m.MetersToPixels(mx, my, zoom)
	return m.PixelsToTile(px, py)
}

//TileBounds 瓦片范围, 米
func (m *GlobalMercator) TileBounds(tx, ty, zoom int) (minx, miny, maxx, maxy float64) {
	ts := float64(m.tileSize)
	minx, miny = m.PixelsToMeters(float64(tx)*ts, float64(ty)*ts, zoom)
	maxx, maxy = m.PixelsToMeters(float64(tx+1)*ts, float64(ty+1)*ts, zoom)
	return
}

//TileLatLonBounds 瓦片范围, 经纬度 (minLat, minLon, maxLat, maxLon)
func (m *GlobalMercator) TileLatLonBounds(tx, ty, zoom int) (float64, float64, float64, float64) {
	minx, miny, maxx, maxy := m.TileBounds(tx, ty, zoom)
	minLat, minLon := m.MetersToLatLon(minx, miny)
	maxLat, maxLon := m.MetersToLatLon(maxx, maxy)
	return minLat, minLon, maxLat, maxLon
}

//Resolution 分辨率 米/像素
func (m *GlobalMercator) Resolution(zoom int) float64 {
	return m.initialResolution / math.Pow(2, float64(zoom))
}

//ZoomForPixelSize 不超过原始分辨率的最大级别
func (m *GlobalMercator) ZoomForPixelSize(pixelSize float64) int {
	return zoomForPixelSize(m.Resolution, pixelSize)
}

//GoogleTile tms转google行号
func (m *GlobalMercator) GoogleTile(tx, ty, zoom int) (int, int) {
	return tx, FlipY(ty, zoom)
}

//QuadTree 微软quadkey
func (m *GlobalMercator) QuadTree(tx, ty, zoom int) string {
	return quadKey(tx, FlipY(ty, zoom), zoom)
}

func zoomForPixelSize(resolution func(int) float64, pixelSize float64) int {
	for i := 0; i <= ZoomMax; i++ {
		if pixelSize > resolution(i) {
			if i != 0 {
				return i - 1
			}
			return 0
		}
	}
	return ZoomMax
}

func quadKey(tx, ty, zoom int) string {
	var sb strings.Builder
	for i := zoom; i > 0; i-- {
		digit := byte('0')
		mask := 1 << uint(i-1)
		if tx&mask != 0 {
			digit++
		}
		if ty&mask != 0 {
			digit += 2
		}
		sb.WriteByte(digit)
	}
	return sb.String()
}

//GlobalGeodetic EPSG:4326 经纬度直投网格, 0级两块瓦片
type GlobalGeodetic struct {
	tileSize int
	resFact  float64
}

//NewGlobalGeodetic 创建经纬度网格
func NewGlobalGeodetic(tileSize int) *GlobalGeodetic {
	if tileSize <= 0 {
		tileSize = TileSize
	}
	return &GlobalGeodetic{tileSize: tileSize, resFact: 180.0 / float64(tileSize)}
}

//TileSize 瓦片像素大小
func (g *GlobalGeodetic) TileSize() int { return g.tileSize }

//LonLatToPixels 经纬度转像素
func (g *GlobalGeodetic) LonLatToPixels(lon, lat float64, zoom int) (float64, float64) {
	res := g.Resolution(zoom)
	return (180 + lon) / res, (90 + lat) / res
}

//PixelsToTile 像素所在瓦片
func (g *GlobalGeodetic) PixelsToTile(px, py float64) (int, int) {
	ts := float64(g.tileSize)
	return int(math.Ceil(px/ts) - 1), int(math.Ceil(py/ts) - 1)
}

//LonLatToTile 经纬度所在瓦片 (tms)
func (g *GlobalGeodetic) LonLatToTile(lon, lat float64, zoom int) (int, int) {
	px, py := g.LonLatToPixels(lon, lat, zoom)
	return g.PixelsToTile(px, py)
}

//Resolution 分辨率 度/像素
func (g *GlobalGeodetic) Resolution(zoom int) float64 {
	return g.resFact / math.Pow(2, float64(zoom))
}

//ZoomForPixelSize 不超过原始分辨率的最大级别
func (g *GlobalGeodetic) ZoomForPixelSize(pixelSize float64) int {
	return zoomForPixelSize(g.Resolution, pixelSize)
}

//TileBounds 瓦片范围, 度 (minx, miny, maxx, maxy)
func (g *GlobalGeodetic) TileBounds(tx, ty, zoom int) (minx, miny, maxx, maxy float64) {
	res := g.Resolution(zoom)
	ts := float64(g.tileSize)
	minx = float64(tx)*ts*res - 180
	miny = float64(ty)*ts*res - 90
	maxx = float64(tx+1)*ts*res - 180
	maxy = float64(ty+1)*ts*res - 90
	return
}

//TileLatLonBounds 瓦片范围 (minLat, minLon, maxLat, maxLon)
func (g *GlobalGeodetic) TileLatLonBounds(tx, ty, zoom int) (float64, float64, float64, float64) {
	minx, miny, maxx, maxy := g.TileBounds(tx, ty, zoom)
	return miny, minx, maxy, maxx
}
