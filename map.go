package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// default subdomains for {s}
const defaultSubdomains = "abc"

var urlKey = regexp.MustCompile(`\{([^{}]*)\}`)

//TileMap 瓦片地图服务, URL模板支持 {s} {x} {y} {z} {y_osm} {size}
type TileMap struct {
	Name       string
	URL        string
	Subdomains []string
	Headers    map[string]string
	Size       int
	Format     TileFormat
}

//NewTileMap 创建地图服务, subdomains 为空时用 a,b,c
func NewTileMap(url string, subdomains []string, headers map[string]string, size int) *TileMap {
	if len(subdomains) == 0 {
		for _, s := range defaultSubdomains {
			subdomains = append(subdomains, string(s))
		}
	}
	if size <= 0 {
		size = TileSize
	}
	return &TileMap{URL: url, Subdomains: subdomains, Headers: headers, Size: size}
}

//TileURL 获取瓦片URL, {y} 为tms行号, {y_osm} 为xyz行号, 子域名按 (x+y) 轮询
func (m *TileMap) TileURL(c TileCoord) (string, error) {
	t := c.TMS()
	values := map[string]string{
		"x":     strconv.Itoa(t.X),
		"y":     strconv.Itoa(t.Y),
		"z":     strconv.Itoa(t.Z),
		"y_osm": strconv.Itoa(c.OSM().Y),
		"size":  strconv.Itoa(m.Size),
	}
	if len(m.Subdomains) > 0 {
		values["s"] = m.Subdomains[(t.X+t.Y)%len(m.Subdomains)]
	}
	var missing []string
	url := urlKey.ReplaceAllStringFunc(m.URL, func(k string) string {
		v, ok := values[strings.Trim(k, "{}")]
		if !ok {
			missing = append(missing, k)
			return k
		}
		return v
	})
	if len(missing) > 0 {
		return "", &DownloadError{URL: m.URL, Err: fmt.Errorf("unknown key %s in url template", strings.Join(missing, ","))}
	}
	return url, nil
}
