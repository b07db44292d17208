package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

//ImageExporter 把范围内的瓦片拼成一张图
type ImageExporter struct {
	source  TileSource
	Quality int
}

//NewImageExporter 创建导出器
func NewImageExporter(source TileSource) *ImageExporter {
	return &ImageExporter{source: source, Quality: defaultQuality}
}

//Stitch 拼接范围内的瓦片, 返回图像和其墨卡托仿射变换
func (e *ImageExporter) Stitch(bbox BBox, zoom int) (*image.NRGBA, GeoTransform, error) {
	ts := e.source.TileSize()
	tiles, _, err := TilesList(bbox, []int{zoom}, TMS, ts)
	if err != nil {
		return nil, GeoTransform{}, err
	}
	if len(tiles) == 0 {
		return nil, GeoTransform{}, &EmptyCoverageError{Msg: fmt.Sprintf("no tiles in %s at zoom %d", bbox, zoom)}
	}
	grid := GridTiles(tiles)
	minX, maxX := grid[0][0].X, grid[0][0].X
	for _, row := range grid {
		if row[0].X < minX {
			minX = row[0].X
		}
		if last := row[len(row)-1].X; last > maxX {
			maxX = last
		}
	}
	width, height := (maxX-minX+1)*ts, len(grid)*ts
	log.Infof("stitching %d tiles into %dx%d image", len(tiles), width, height)
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	for r, row := range grid {
		for _, c := range row {
			data, err := e.source.Tile(c)
			if err != nil {
				var de *DownloadError
				var ee *ExtractionError
				if errors.As(err, &de) || errors.As(err, &ee) {
					log.Warnf("tile %s missing ~ %s", c, err)
					continue
				}
				return nil, GeoTransform{}, err
			}
			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				log.Warnf("decode tile %s error ~ %s", c, err)
				continue
			}
			at := image.Pt((c.X-minX)*ts, r*ts)
			draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(image.Pt(ts, ts))}, toNRGBA(img, ts), image.Point{}, draw.Src)
		}
	}
	// the first row is the northernmost, rows are TMS so the last row has the lowest y
	mercator := NewGlobalMercator(ts)
	top, bottom := grid[0][0], grid[len(grid)-1][0]
	xmin, _, _, ymax := mercator.TileBounds(minX, top.Y, zoom)
	_, ymin, xmax, _ := mercator.TileBounds(maxX, bottom.Y, zoom)
	gt := GeoTransform{xmin, (xmax - xmin) / float64(width), 0, ymax, 0, (ymin - ymax) / float64(height)}
	return canvas, gt, nil
}

//ExportImage 导出图片, .tif 为EPSG:3857的GeoTIFF, 其余按扩展名编码
func (e *ImageExporter) ExportImage(bbox BBox, zoom int, out string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(out), "."))
	format, err := ParseTileFormat(ext)
	if err != nil {
		return err
	}
	img, gt, err := e.Stitch(bbox, zoom)
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	switch format {
	case TIF:
		err = writeGeoTIFF(f, img, gt, 3857, fmt.Sprintf("%s zoom %d", bbox, zoom))
	case PNG:
		err = png.Encode(f, img)
	case JPEG, JPG:
		err = jpeg.Encode(f, opaque(img, false), &jpeg.Options{Quality: e.Quality})
	default:
		err = &InvalidFormatError{Format: ext}
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", out, err)
	}
	log.Infof("exported %s zoom %d into %s", bbox, zoom, out)
	return f.Close()
}
