package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
)

//BuilderOptions 输出库参数, 来源为mbtiles时沿用其行号规则, 格式为空时沿用其格式
type BuilderOptions struct {
	Format      TileFormat
	Scheme      RowScheme
	JPEGQuality int
	Quiet       bool
}

//BuildStats 构建结果
type BuildStats struct {
	Requested int
	Written   int
	Missing   int
}

//CoverageBuilder 按范围从瓦片来源拼装mbtiles
type CoverageBuilder struct {
	ID        string
	output    string
	source    TileSource
	opts      BuilderOptions
	coverages []Coverage
	overrides map[string]string
}

//NewCoverageBuilder 创建构建任务
func NewCoverageBuilder(output string, source TileSource, opts BuilderOptions) *CoverageBuilder {
	id, _ := shortid.Generate()
	return &CoverageBuilder{
		ID:        id,
		output:    output,
		source:    source,
		opts:      opts,
		overrides: make(map[string]string),
	}
}

//AddCoverage 添加范围和级别
func (b *CoverageBuilder) AddCoverage(bbox BBox, zooms []int) {
	b.coverages = append(b.coverages, Coverage{BBox: bbox, Zooms: zooms})
}

//AddGeometry 添加几何覆盖范围, 先裁剪到墨卡托有效范围
func (b *CoverageBuilder) AddGeometry(g orb.Geometry, zooms []int) error {
	g = clip.Geometry(WorldBBox.Bound(), g)
	if g == nil {
		return &InvalidCoverageError{Msg: "geometry is outside the mercator extent"}
	}
	counts, err := getZoomCount(g, zooms)
	if err != nil {
		return &InvalidCoverageError{Msg: err.Error()}
	}
	log.Debugf("geometry coverage tiles per zoom %v", counts)
	b.coverages = append(b.coverages, Coverage{BBox: BBoxFromBound(g.Bound()), Zooms: zooms, Geometry: g})
	return nil
}

//AddMetadata 覆盖输出元数据, 优先于来源元数据
func (b *CoverageBuilder) AddMetadata(items map[string]string) {
	for k, v := range items {
		b.overrides[k] = v
	}
}

// tiles is the sorted union of every coverage, in TMS rows
func (b *CoverageBuilder) tiles() ([]TileCoord, error) {
	coverages := b.coverages
	if len(coverages) == 0 {
		cs, ok := b.source.(CoverageSource)
		if !ok {
			return nil, configErrorf("no coverage given and the tile source has no bounds")
		}
		bbox, err := cs.Bounds()
		if err != nil {
			return nil, err
		}
		zooms, err := cs.ZoomLevels()
		if err != nil {
			return nil, err
		}
		log.Infof("no coverage given, using source bounds %s and zooms %v", bbox, zooms)
		coverages = []Coverage{{BBox: bbox, Zooms: zooms}}
	}
	set := NewSet()
	for _, cv := range coverages {
		tiles, _, err := cv.Tiles(TMS, b.source.TileSize())
		if err != nil {
			var ice *InvalidCoverageError
			if errors.As(err, &ice) && len(coverages) > 1 {
				log.Warnf("skip coverage %s ~ %s", cv.BBox, err)
				continue
			}
			return nil, err
		}
		for _, t := range tiles {
			set.Add(t)
		}
	}
	if set.Len() == 0 {
		return nil, &EmptyCoverageError{Msg: "no tiles in the requested coverages"}
	}
	return set.Sorted(), nil
}

func (b *CoverageBuilder) open() (*MBTiles, error) {
	format, scheme := b.opts.Format, b.opts.Scheme
	var meta map[string]string
	if cs, ok := b.source.(CoverageSource); ok {
		if format == "" {
			format = cs.Format()
		}
		scheme = cs.Scheme()
		m, err := cs.Metadata()
		if err != nil {
			return nil, err
		}
		meta = m
	}
	out, err := OpenMBTiles(b.output, MBTilesOptions{
		Format:      format,
		Scheme:      scheme,
		Transcode:   true,
		JPEGQuality: b.opts.JPEGQuality,
	})
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := out.SetMetadata(meta); err != nil {
			out.Close()
			return nil, err
		}
	}
	return out, nil
}

//Run 抓取全部瓦片写入输出库, 已存在的输出只在 add 时追加
func (b *CoverageBuilder) Run(ctx context.Context, add bool) (BuildStats, error) {
	var stats BuildStats
	if _, err := os.Stat(b.output); err == nil {
		if !add {
			return stats, configErrorf("%s already exists, nothing to do without append", b.output)
		}
		log.Warnf("%s already exists, adding tiles", b.output)
	}
	tiles, err := b.tiles()
	if err != nil {
		return stats, err
	}
	stats.Requested = len(tiles)
	out, err := b.open()
	if err != nil {
		return stats, err
	}
	defer out.Close()

	start := time.Now()
	log.Infof("task %s: %d tiles to build into %s", b.ID, len(tiles), b.output)
	bar := newBar(int64(len(tiles)), "Build : ", b.opts.Quiet)
	for _, c := range tiles {
		if err := ctx.Err(); err != nil {
			bar.Finish()
			return stats, err
		}
		bar.Increment()
		data, err := b.source.Tile(c)
		if err != nil {
			var de *DownloadError
			var ee *ExtractionError
			if errors.As(err, &de) || errors.As(err, &ee) {
				log.Warnf("tile %s missing ~ %s", c, err)
				tilesSkipped.WithLabelValues(reasonMissing).Inc()
				stats.Missing++
				continue
			}
			bar.Finish()
			return stats, fmt.Errorf("fetch tile %s: %w", c, err)
		}
		if len(data) == 0 {
			tilesSkipped.WithLabelValues(reasonMissing).Inc()
			stats.Missing++
			continue
		}
		if err := out.Put(c, data); err != nil {
			bar.Finish()
			return stats, fmt.Errorf("save tile %s: %w", c, err)
		}
		tilesWritten.WithLabelValues(kindBuild).Inc()
		stats.Written++
	}
	finishBar(bar, fmt.Sprintf("task %s finished, %d written, %d missing ~", b.ID, stats.Written, stats.Missing), b.opts.Quiet)

	if err := out.RecomputeBounds(); err != nil {
		return stats, fmt.Errorf("recompute bounds: %w", err)
	}
	if len(b.overrides) > 0 {
		if err := out.SetMetadata(b.overrides); err != nil {
			return stats, err
		}
	}
	log.Infof("task %s built %s in %.3fs", b.ID, b.output, time.Since(start).Seconds())
	return stats, out.Close()
}
