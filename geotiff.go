package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/tiff"
)

// GeoTIFF GeoKey IDs.
const (
	gkModelTypeGeoKey       = 1024
	gkRasterTypeGeoKey      = 1025
	gkGeographicTypeGeoKey  = 2048
	gkProjectedCSTypeGeoKey = 3072
)

// TIFF field types.
const (
	tAscii  = 2
	tShort  = 3
	tLong   = 4
	tDouble = 12
)

//geoTags GeoTIFF 地理标签
type geoTags struct {
	ImageDescription    string    `tiff:"field,tag=270"`
	ModelPixelScale     []float64 `tiff:"field,tag=33550"`
	ModelTiePoint       []float64 `tiff:"field,tag=33922"`
	ModelTransformation []float64 `tiff:"field,tag=34264"`
	GeoKeyDirectory     []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParams     []float64 `tiff:"field,tag=34736"`
	GeoAsciiParams      string    `tiff:"field,tag=34737"`
	NoData              string    `tiff:"field,tag=42113"`
}

func readGeoTags(r tiff.ReadAtReadSeeker) (*geoTags, error) {
	tif, err := tiff.Parse(r, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("parse tiff: %w", err)
	}
	ifds := tif.IFDs()
	if len(ifds) == 0 {
		return nil, fmt.Errorf("tiff has no ifd")
	}
	tags := &geoTags{}
	if err := tiff.UnmarshalIFD(ifds[0], tags); err != nil {
		return nil, fmt.Errorf("unmarshal geotags: %w", err)
	}
	return tags, nil
}

//GeoTransform 由像素比例+控制点或变换矩阵计算, 无地理参考返回false
func (g *geoTags) GeoTransform() (GeoTransform, bool) {
	if m := g.ModelTransformation; len(m) >= 16 {
		return GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}, true
	}
	if len(g.ModelPixelScale) >= 2 && len(g.ModelTiePoint) >= 6 {
		sx, sy := g.ModelPixelScale[0], g.ModelPixelScale[1]
		tp := g.ModelTiePoint
		return GeoTransform{tp[3] - tp[0]*sx, sx, 0, tp[4] + tp[1]*sy, 0, -sy}, true
	}
	return GeoTransform{0, 1, 0, 0, 0, 1}, false
}

//EPSG 坐标系代码
func (g *geoTags) EPSG() int {
	return normalizeEPSG(parseEPSG(g.GeoKeyDirectory))
}

//NoDataValue GDAL_NODATA
func (g *geoTags) NoDataValue() (float64, bool) {
	s := strings.Trim(g.NoData, "\x00 ")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseEPSG extracts the EPSG code from GeoKey directory entries.
func parseEPSG(geoKeys []uint16) int {
	if len(geoKeys) < 4 {
		return 0
	}
	geographic := 0
	numKeys := int(geoKeys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(geoKeys) {
			break
		}
		keyID, valueOffset := geoKeys[base], geoKeys[base+3]
		switch keyID {
		case gkProjectedCSTypeGeoKey:
			if valueOffset > 0 && valueOffset != 32767 {
				return int(valueOffset)
			}
		case gkGeographicTypeGeoKey:
			if valueOffset > 0 && valueOffset != 32767 {
				geographic = int(valueOffset)
			}
		}
	}
	return geographic
}

//normalizeEPSG 各种web墨卡托别名统一为3857
func normalizeEPSG(code int) int {
	switch code {
	case 900913, 3785, 102100, 102113:
		return 3857
	}
	return code
}

//ParseSRS 解析 "EPSG:n" 或 "n"
func ParseSRS(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	switch s {
	case "WGS84", "CRS:84", "OGC:CRS84":
		return 4326, nil
	}
	code, err := strconv.Atoi(strings.TrimPrefix(s, "EPSG:"))
	if err != nil {
		return 0, configErrorf("unsupported srs %q", s)
	}
	return normalizeEPSG(code), nil
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

type geoTIFFWriter struct {
	enc     binary.ByteOrder
	entries []ifdEntry
}

func (w *geoTIFFWriter) field(tag uint16, typ uint16, v interface{}) {
	buf := &bytes.Buffer{}
	var count uint32
	switch d := v.(type) {
	case string:
		buf.WriteString(d)
		buf.WriteByte(0)
		count = uint32(len(d) + 1)
	case []uint16:
		binary.Write(buf, w.enc, d)
		count = uint32(len(d))
	case []uint32:
		binary.Write(buf, w.enc, d)
		count = uint32(len(d))
	case []float64:
		binary.Write(buf, w.enc, d)
		count = uint32(len(d))
	}
	w.entries = append(w.entries, ifdEntry{tag: tag, typ: typ, count: count, data: buf.Bytes()})
}

func (w *geoTIFFWriter) entry(tag uint16) *ifdEntry {
	for i := range w.entries {
		if w.entries[i].tag == tag {
			return &w.entries[i]
		}
	}
	return nil
}

//writeGeoTIFF 写出单条带、无压缩的RGBA GeoTIFF
func writeGeoTIFF(out io.Writer, img *image.NRGBA, gt GeoTransform, epsg int, description string) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return fmt.Errorf("empty image")
	}
	w := &geoTIFFWriter{enc: binary.LittleEndian}
	stripSize := uint32(width * height * 4)

	w.field(256, tLong, []uint32{uint32(width)})
	w.field(257, tLong, []uint32{uint32(height)})
	w.field(258, tShort, []uint16{8, 8, 8, 8})
	w.field(259, tShort, []uint16{1})
	w.field(262, tShort, []uint16{2})
	if description != "" {
		w.field(270, tAscii, description)
	}
	w.field(273, tLong, []uint32{0})
	w.field(277, tShort, []uint16{4})
	w.field(278, tLong, []uint32{uint32(height)})
	w.field(279, tLong, []uint32{stripSize})
	w.field(284, tShort, []uint16{1})
	w.field(338, tShort, []uint16{2})
	w.field(33550, tDouble, []float64{gt[1], math.Abs(gt[5]), 0})
	w.field(33922, tDouble, []float64{0, 0, 0, gt[0], gt[3], 0})
	keys := []uint16{1, 1, 0, 3, gkModelTypeGeoKey, 0, 1, 1, gkRasterTypeGeoKey, 0, 1, 1, gkProjectedCSTypeGeoKey, 0, 1, uint16(epsg)}
	if epsg == 4326 {
		keys = []uint16{1, 1, 0, 3, gkModelTypeGeoKey, 0, 1, 2, gkRasterTypeGeoKey, 0, 1, 1, gkGeographicTypeGeoKey, 0, 1, 4326}
	}
	w.field(34735, tShort, keys)
	sort.Slice(w.entries, func(i, j int) bool { return w.entries[i].tag < w.entries[j].tag })

	// header, ifd, overflow area, then pixels
	ifdSize := uint32(2 + 12*len(w.entries) + 4)
	overflowOffset := 8 + ifdSize
	overflowSize := uint32(0)
	for _, e := range w.entries {
		if len(e.data) > 4 {
			overflowSize += uint32(len(e.data)+1) &^ 1
		}
	}
	binary.LittleEndian.PutUint32(w.entry(273).data, overflowOffset+overflowSize)

	hdr := []byte{'I', 'I', 0, 0, 0, 0, 0, 0}
	w.enc.PutUint16(hdr[2:], 42)
	w.enc.PutUint32(hdr[4:], 8)
	if _, err := out.Write(hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	ifd := &bytes.Buffer{}
	overflow := &bytes.Buffer{}
	binary.Write(ifd, w.enc, uint16(len(w.entries)))
	for _, e := range w.entries {
		binary.Write(ifd, w.enc, e.tag)
		binary.Write(ifd, w.enc, e.typ)
		binary.Write(ifd, w.enc, e.count)
		if len(e.data) <= 4 {
			var v [4]byte
			copy(v[:], e.data)
			ifd.Write(v[:])
			continue
		}
		binary.Write(ifd, w.enc, overflowOffset+uint32(overflow.Len()))
		overflow.Write(e.data)
		if overflow.Len()%2 == 1 {
			overflow.WriteByte(0)
		}
	}
	binary.Write(ifd, w.enc, uint32(0))
	if _, err := out.Write(ifd.Bytes()); err != nil {
		return fmt.Errorf("write ifd: %w", err)
	}
	if _, err := out.Write(overflow.Bytes()); err != nil {
		return fmt.Errorf("write overflow: %w", err)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := out.Write(img.Pix[off : off+width*4]); err != nil {
			return fmt.Errorf("write pixels: %w", err)
		}
	}
	return nil
}
