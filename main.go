package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/carlmjohnson/versioninfo"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flag
var (
	cf          string
	verbose     bool
	metricsFile string
	startTime   time.Time
)

// build flags
var (
	buildMBTiles    string
	buildWMS        string
	buildWMSLayers  []string
	buildWMSVersion string
	buildWMSFormat  string
	buildWMSAlpha   bool
	buildTilesURL   string
	buildSubdomains string
	buildHeaders    []string
	buildBBox       string
	buildZoom       string
	buildGeojson    string
	buildMeta       []string
	buildAppend     bool
	buildFormat     string
	buildTMSOSM     bool
	buildTileSize   int
)

// export-image flags
var (
	imageBBox string
	imageZoom int
)

func init() {
	//InitLog 初始化日志
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	// then wrap the log output with it
	log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))
	log.SetLevel(log.DebugLevel)

	rootCmd.PersistentFlags().StringVarP(&cf, "config", "c", "conf.toml", "set config `file`")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", true, "debug output")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write prometheus counters to `file` when done")
	rootCmd.AddCommand(tileCmd, buildCmd, importCmd, exportCmd, exportImageCmd, infoCmd)

	f := tileCmd.Flags()
	f.StringP("profile", "p", "mercator", "tile cutting profile (mercator,geodetic,raster,gearth,garmin)")
	f.StringP("resampling", "r", "average", "resampling method (average,near,bilinear,cubic,cubicspline,lanczos,antialias)")
	f.StringP("s-srs", "s", "", "the spatial reference system used for the source input data")
	f.StringP("zoom", "z", "", "zoom levels to render (format:'2-5' or '10')")
	f.BoolP("resume", "e", false, "resume mode, generate only missing files")
	f.Bool("tms-osm", false, "use the osm/xyz row convention instead of tms")
	f.StringP("srcnodata", "a", "", "nodata values of the input dataset, e.g. '0 0 0'")
	f.String("init-dest", "", "initial fill of the output tiles (jpeg only), e.g. '255 255 255'")
	f.StringP("tile-format", "f", "", "image format of generated tiles (png,jpeg,hybrid)")
	f.Bool("mbtiles", false, "write the tiles into an mbtiles archive")
	f.Int("tilesize", 0, "tile size in pixels (256, 512 for garmin)")
	f.StringP("title", "t", "", "title of the map")
	f.StringP("copyright", "C", "", "copyright for the map")
	f.StringP("url", "u", "", "url address where the generated tiles are going to be published")
	f.Int("workers", 0, "render workers (defaults to task.workers)")
	f.Int("savepipe", 0, "buffered tiles between the renderers and the writer")
	f.Int("jpeg-quality", 85, "jpeg quality")
	f.BoolP("kml", "k", false, "generate kml for google earth")
	f.Int("kml-depth", 0, "kml depth")
	f.Bool("kmz", false, "compress kml files")
	f.StringP("webviewer", "w", "", "web viewer to generate (all,google,openlayers,none)")
	f.BoolP("quiet", "q", false, "hide progress")

	b := buildCmd.Flags()
	b.StringVar(&buildMBTiles, "mbtiles-input", "", "read tiles from an mbtiles `file`")
	b.StringVar(&buildWMS, "wms-server", "", "read tiles from a wms `url`")
	b.StringSliceVar(&buildWMSLayers, "wms-layers", nil, "wms layers")
	b.StringVar(&buildWMSVersion, "wms-version", "1.1.1", "wms version")
	b.StringVar(&buildWMSFormat, "wms-format", "image/jpeg", "wms image format")
	b.BoolVar(&buildWMSAlpha, "wms-transparent", false, "request transparent wms images")
	b.StringVar(&buildTilesURL, "tiles-url", "", "download tiles from a url template with {s} {x} {y} {z} {y_osm} {size}")
	b.StringVar(&buildSubdomains, "tiles-subdomains", defaultSubdomains, "subdomains for {s}")
	b.StringArrayVar(&buildHeaders, "tiles-header", nil, "http header 'Key: value' for downloads")
	b.StringVar(&buildBBox, "bbox", "", "coverage west,south,east,north")
	b.StringVarP(&buildZoom, "zoom", "z", "", "coverage zoom levels (format:'2-5' or '10')")
	b.StringVar(&buildGeojson, "geojson", "", "coverage geometry from a geojson `file`")
	b.StringArrayVar(&buildMeta, "meta", nil, "metadata override 'key=value'")
	b.BoolVar(&buildAppend, "append", false, "add tiles to an existing output")
	b.StringVarP(&buildFormat, "tile-format", "f", "", "output tile format (png,jpeg)")
	b.BoolVar(&buildTMSOSM, "tms-osm", false, "use the osm/xyz row convention for a new output")
	b.IntVar(&buildTileSize, "tilesize", TileSize, "tile size for downloads and wms")

	exportImageCmd.Flags().StringVar(&imageBBox, "bbox", "", "west,south,east,north")
	exportImageCmd.Flags().IntVarP(&imageZoom, "zoom", "z", 0, "zoom level")
	exportImageCmd.MarkFlagRequired("bbox")
}

func version() string {
	return versioninfo.Short()
}

var rootCmd = &cobra.Command{
	Use:           "mbtiler",
	Short:         "raster tile pyramids and mbtiles",
	Version:       version(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		startTime = time.Now()
		initConf(viper.GetViper(), cf)
		if !verbose || strings.EqualFold(viper.GetString("app.loglevel"), "info") {
			log.SetLevel(log.InfoLevel)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		if err := WriteMetrics(metricsFile); err != nil {
			log.Errorf("write metrics %s error ~ %s", metricsFile, err)
		}
		log.Infof("%s finished in %.3fs", cmd.Name(), time.Since(startTime).Seconds())
	},
}

var tileCmd = &cobra.Command{
	Use:   "tile INPUT [OUTPUT]",
	Short: "cut a georeferenced raster into a tile pyramid",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		if err := bindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		v.Set("input", args[0])
		if len(args) > 1 {
			v.Set("output", args[1])
		}
		opts, err := LoadOptions(v)
		if err != nil {
			return err
		}
		log.Debugf("options %s", opts)
		return runTile(cmd.Context(), opts)
	},
}

func runTile(ctx context.Context, opts Options) error {
	popts, err := opts.Pyramid()
	if err != nil {
		return err
	}
	srs, err := opts.SourceSRS()
	if err != nil {
		return err
	}
	nodata, err := opts.Nodata()
	if err != nil {
		return err
	}
	if _, err := os.Stat(opts.Input); err != nil {
		return configErrorf("input file %s: %s", opts.Input, err)
	}
	src, err := OpenRaster(opts.Input, srs, nodata)
	if err != nil {
		return err
	}
	defer src.Close()

	var store TileStore
	out := opts.OutputPath()
	if opts.MBTiles {
		store, err = OpenMBTiles(out, MBTilesOptions{
			Format:      popts.Format,
			Scheme:      opts.Scheme(),
			JPEGQuality: popts.JPEGQuality,
			Name:        popts.Title,
		})
	} else {
		store, err = NewDirStore(out, popts.Format, opts.Scheme())
	}
	if err != nil {
		return err
	}
	defer store.Close()

	b, err := NewPyramidBuilder(src, store, popts)
	if err != nil {
		return err
	}
	if opts.KML || opts.WebViewer != "none" {
		log.Infof("kml and web viewer output are not generated (kml=%v, webviewer=%s)", opts.KML, opts.WebViewer)
	}
	if err := b.Run(ctx); err != nil {
		return err
	}
	log.Infof("task %s: %v", b.ID, b.Stats())
	return store.Close()
}

var buildCmd = &cobra.Command{
	Use:   "build OUTPUT.mbtiles",
	Short: "build an mbtiles archive from an mbtiles, wms or tile url source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var source TileSource
		switch {
		case buildMBTiles != "":
			r, err := OpenMBTilesReader(buildMBTiles)
			if err != nil {
				return err
			}
			defer r.Close()
			source = r
		case buildWMS != "":
			source = NewWMSReader(ctx, buildWMS, buildWMSLayers, buildWMSVersion, buildWMSFormat, buildWMSAlpha, buildTileSize)
		case buildTilesURL != "":
			headers, err := parsePairs(buildHeaders, ":")
			if err != nil {
				return err
			}
			var subs []string
			for _, s := range buildSubdomains {
				subs = append(subs, string(s))
			}
			source = NewTileDownloader(ctx, NewTileMap(buildTilesURL, subs, headers, buildTileSize))
		default:
			return configErrorf("one of --mbtiles-input, --wms-server or --tiles-url is required")
		}
		opts := BuilderOptions{Scheme: TMS}
		if buildTMSOSM {
			opts.Scheme = OSM
		}
		if buildFormat != "" {
			f, err := ParseTileFormat(buildFormat)
			if err != nil {
				return configErrorf("%s", err)
			}
			opts.Format = f
		}
		b := NewCoverageBuilder(args[0], source, opts)
		if buildBBox != "" || buildGeojson != "" {
			minz, maxz, err := ParseZoomRange(buildZoom)
			if err != nil {
				return err
			}
			if minz < 0 {
				return configErrorf("--zoom is required with --bbox or --geojson")
			}
			zooms := ZoomLevels(minz, maxz)
			if buildBBox != "" {
				bbox, err := ParseBBox(buildBBox)
				if err != nil {
					return err
				}
				b.AddCoverage(bbox, zooms)
			}
			if buildGeojson != "" {
				g, err := loadCollection(buildGeojson)
				if err != nil {
					return err
				}
				if err := b.AddGeometry(g, zooms); err != nil {
					return err
				}
			}
		}
		meta, err := parsePairs(buildMeta, "=")
		if err != nil {
			return err
		}
		b.AddMetadata(meta)
		stats, err := b.Run(ctx, buildAppend)
		if err != nil {
			return err
		}
		log.Infof("task %s: %d requested, %d written, %d missing", b.ID, stats.Requested, stats.Written, stats.Missing)
		return nil
	},
}

func parsePairs(items []string, sep string) (map[string]string, error) {
	pairs := make(map[string]string)
	for _, item := range items {
		parts := strings.SplitN(item, sep, 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, configErrorf("invalid pair %q, expected key%svalue", item, sep)
		}
		pairs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return pairs, nil
}

var importCmd = &cobra.Command{
	Use:   "import DIR OUTPUT.mbtiles",
	Short: "import a z/x/y tile directory into mbtiles",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := OpenMBTiles(args[1], MBTilesOptions{})
		if err != nil {
			return err
		}
		defer out.Close()
		if _, err := ImportDir(args[0], out); err != nil {
			return err
		}
		return out.Close()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export INPUT.mbtiles DIR",
	Short: "export mbtiles into a z/x/y tile directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := OpenMBTiles(args[0], MBTilesOptions{ReadOnly: true})
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = ExportDir(in, args[1])
		return err
	},
}

var exportImageCmd = &cobra.Command{
	Use:   "export-image INPUT.mbtiles OUTPUT.{png,jpg,tif}",
	Short: "stitch the tiles of a bbox into one image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bbox, err := ParseBBox(imageBBox)
		if err != nil {
			return err
		}
		r, err := OpenMBTilesReader(args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		return NewImageExporter(r).ExportImage(bbox, imageZoom, args[1])
	},
}

var infoCmd = &cobra.Command{
	Use:   "info INPUT.mbtiles",
	Short: "show metadata and tile counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := OpenMBTiles(args[0], MBTilesOptions{ReadOnly: true})
		if err != nil {
			return err
		}
		defer in.Close()
		meta, err := in.Metadata()
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			log.Infof("%s: %s", k, meta[k])
		}
		zooms, err := in.ZoomLevels()
		if err != nil {
			return err
		}
		for _, z := range zooms {
			n, err := in.Count(CountPattern{Kind: CountZoom, Z: z})
			if err != nil {
				return err
			}
			log.Infof("zoom %d: %d tiles", z, n)
		}
		total, err := in.Count(CountPattern{Kind: CountAll})
		if err != nil {
			return err
		}
		images, err := in.CountImages()
		if err != nil {
			return err
		}
		log.Infof("%d tiles, %d images", total, images)
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, "use --help for the available options")
		}
		log.Error(err)
		os.Exit(1)
	}
}
