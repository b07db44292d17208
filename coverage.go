package main

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
)

//BBox WGS84经纬度范围
type BBox struct {
	West, South, East, North float64
}

//WorldBBox 墨卡托可用范围
var WorldBBox = BBox{West: -180, South: -85.05113, East: 180, North: 85.05113}

//Validate 范围检查
func (b BBox) Validate() error {
	if err := b.checkRange(); err != nil {
		return err
	}
	if b.West >= b.East {
		return &InvalidCoverageError{Msg: fmt.Sprintf("west %v >= east %v", b.West, b.East)}
	}
	if b.South >= b.North {
		return &InvalidCoverageError{Msg: fmt.Sprintf("south %v >= north %v", b.South, b.North)}
	}
	return nil
}

func (b BBox) checkRange() error {
	for _, lon := range []float64{b.West, b.East} {
		if math.Abs(lon) > 180 || math.IsNaN(lon) {
			return &InvalidCoverageError{Msg: fmt.Sprintf("longitude %v out of [-180,180]", lon)}
		}
	}
	for _, lat := range []float64{b.South, b.North} {
		if math.Abs(lat) > 90 || math.IsNaN(lat) {
			return &InvalidCoverageError{Msg: fmt.Sprintf("latitude %v out of [-90,90]", lat)}
		}
	}
	return nil
}

//ParseBBox 解析 "west,south,east,north"
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, &InvalidCoverageError{Msg: fmt.Sprintf("bbox %q needs 4 values", s)}
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, &InvalidCoverageError{Msg: fmt.Sprintf("bbox %q: %s", s, err)}
		}
		v[i] = f
	}
	b := BBox{West: v[0], South: v[1], East: v[2], North: v[3]}
	return b, b.Validate()
}

func (b BBox) String() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.West, b.South, b.East, b.North)
}

//Bound 转orb范围
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}

//BBoxFromBound orb范围转换
func BBoxFromBound(b orb.Bound) BBox {
	return BBox{West: b.Min.X(), South: b.Min.Y(), East: b.Max.X(), North: b.Max.Y()}
}

//Center 中心点
func (b BBox) Center() (lon, lat float64) {
	c := b.Bound().Center()
	return c.X(), c.Y()
}

//Contains 是否包含
func (b BBox) Contains(o BBox) bool {
	return b.West <= o.West && b.South <= o.South && b.East >= o.East && b.North >= o.North
}

func (b BBox) union(o BBox, empty bool) BBox {
	if empty {
		return o
	}
	return BBoxFromBound(b.Bound().Union(o.Bound()))
}

//ParseZoomRange 解析 "min-max" 或 "z"
func ParseZoomRange(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return -1, -1, nil
	}
	parts := strings.SplitN(s, "-", 2)
	min, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, configErrorf("zoom %q: %s", s, err)
	}
	max := min
	if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
		max, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, configErrorf("zoom %q: %s", s, err)
		}
	}
	if min < ZoomMin || max > ZoomMax || min > max {
		return 0, 0, configErrorf("zoom %q out of range", s)
	}
	return min, max, nil
}

//ZoomLevels [min,max] 级别列表
func ZoomLevels(min, max int) []int {
	var levels []int
	for z := min; z <= max; z++ {
		levels = append(levels, z)
	}
	return levels
}

func projectPixels(lon, lat float64, zoom, tileSize int) (float64, float64) {
	c := float64(tileSize) * math.Pow(2, float64(zoom))
	e := c/2 + lon*c/360
	f := math.Min(math.Max(math.Sin(lat*math.Pi/180), -0.9999), 0.9999)
	g := c/2 + 0.5*math.Log((1+f)/(1-f))*-(c/(2*math.Pi))
	return e, g
}

func validateZooms(zooms []int) error {
	if len(zooms) == 0 {
		return &InvalidCoverageError{Msg: "no zoom levels"}
	}
	for _, z := range zooms {
		if z < ZoomMin || z > ZoomMax {
			return &InvalidCoverageError{Msg: fmt.Sprintf("zoom %d out of [%d,%d]", z, ZoomMin, ZoomMax)}
		}
	}
	return nil
}

//TilesList 范围内各级别的墨卡托瓦片, 同时返回瓦片边界合并后的范围
func TilesList(bbox BBox, zooms []int, scheme RowScheme, tileSize int) ([]TileCoord, BBox, error) {
	if err := bbox.Validate(); err != nil {
		return nil, BBox{}, err
	}
	if err := validateZooms(zooms); err != nil {
		return nil, BBox{}, err
	}
	if tileSize <= 0 {
		tileSize = TileSize
	}
	ts := float64(tileSize)
	set := NewSet()
	for _, z := range zooms {
		px0, py0 := projectPixels(bbox.West, bbox.North, z, tileSize)
		px1, py1 := projectPixels(bbox.East, bbox.South, z, tileSize)
		n := 1 << uint(z)
		// unrounded pixels, so an edge just past a tile boundary keeps that tile
		for x := int(math.Floor(px0 / ts)); x < int(math.Ceil(px1/ts)); x++ {
			if x < 0 || x >= n {
				continue
			}
			for y := int(math.Floor(py0 / ts)); y < int(math.Ceil(py1/ts)); y++ {
				if y < 0 || y >= n {
					continue
				}
				set.Add(TileCoord{Z: z, X: x, Y: y, Scheme: OSM}.In(scheme))
			}
		}
	}
	tiles := set.Sorted()
	return tiles, tilesBBox(tiles), nil
}

//tilesBBox 瓦片边界的合并范围
func tilesBBox(tiles []TileCoord) BBox {
	var out BBox
	for i, c := range tiles {
		out = out.union(BBoxFromBound(c.Maptile().Bound()), i == 0)
	}
	return out
}

//GridTiles 按行分组, 行自北向南, 列自西向东
func GridTiles(tiles []TileCoord) [][]TileCoord {
	rows := make(map[int][]TileCoord)
	var scheme RowScheme
	for _, c := range tiles {
		rows[c.Y] = append(rows[c.Y], c)
		scheme = c.Scheme
	}
	ys := make([]int, 0, len(rows))
	for y := range rows {
		ys = append(ys, y)
	}
	if scheme == OSM {
		sort.Ints(ys)
	} else {
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))
	}
	grid := make([][]TileCoord, 0, len(ys))
	for _, y := range ys {
		row := rows[y]
		sort.Slice(row, func(i, j int) bool { return row[i].X < row[j].X })
		grid = append(grid, row)
	}
	return grid
}

//Coverage 范围+级别, 范围可以是几何
type Coverage struct {
	BBox     BBox
	Zooms    []int
	Geometry orb.Geometry
}

//Tiles 枚举覆盖的瓦片
func (cv Coverage) Tiles(scheme RowScheme, tileSize int) ([]TileCoord, BBox, error) {
	if cv.Geometry == nil {
		return TilesList(cv.BBox, cv.Zooms, scheme, tileSize)
	}
	if err := validateZooms(cv.Zooms); err != nil {
		return nil, BBox{}, err
	}
	if err := BBoxFromBound(cv.Geometry.Bound()).checkRange(); err != nil {
		return nil, BBox{}, err
	}
	set := NewSet()
	for _, z := range cv.Zooms {
		ts, err := tilecover.Geometry(cv.Geometry, maptile.Zoom(z))
		if err != nil {
			return nil, BBox{}, &InvalidCoverageError{Msg: err.Error()}
		}
		for t := range ts {
			set.Add(FromMaptile(t, scheme))
		}
	}
	tiles := set.Sorted()
	return tiles, tilesBBox(tiles), nil
}
