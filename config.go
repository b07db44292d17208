package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//EnvPrefix 环境变量前缀
const EnvPrefix = "MBTILER"

//Options 切片命令的参数, 每次运行构造一次
type Options struct {
	Input       string `mapstructure:"input" validate:"required"`
	Output      string `mapstructure:"output"`
	Profile     string `mapstructure:"profile" default:"mercator" validate:"oneof=mercator geodetic raster gearth garmin"`
	Resampling  string `mapstructure:"resampling" default:"average" validate:"oneof=average near bilinear cubic cubicspline lanczos antialias"`
	SRS         string `mapstructure:"s-srs"`
	Zoom        string `mapstructure:"zoom"`
	Resume      bool   `mapstructure:"resume"`
	TMSOSM      bool   `mapstructure:"tms-osm"`
	SrcNodata   string `mapstructure:"srcnodata"`
	InitDest    string `mapstructure:"init-dest"`
	TileFormat  string `mapstructure:"tile-format" validate:"omitempty,oneof=png jpeg jpg hybrid"`
	MBTiles     bool   `mapstructure:"mbtiles"`
	TileSize    int    `mapstructure:"tilesize" validate:"gte=0,lte=4096"`
	Title       string `mapstructure:"title"`
	Copyright   string `mapstructure:"copyright"`
	URL         string `mapstructure:"url"`
	Workers     int    `mapstructure:"workers" default:"1" validate:"gte=1,lte=64"`
	SavePipe    int    `mapstructure:"savepipe" default:"1" validate:"gte=1"`
	JPEGQuality int    `mapstructure:"jpeg-quality" default:"85" validate:"gte=1,lte=100"`
	KML         bool   `mapstructure:"kml"`
	KMLDepth    int    `mapstructure:"kml-depth" validate:"gte=0"`
	KMZ         bool   `mapstructure:"kmz"`
	WebViewer   string `mapstructure:"webviewer" validate:"omitempty,oneof=all google openlayers none"`
	Quiet       bool   `mapstructure:"quiet"`
}

// initConf 初始化配置
func initConf(v *viper.Viper, cfgFile string) {
	v.SetDefault("app.version", version())
	v.SetDefault("app.title", "mbtiler")
	v.SetDefault("app.loglevel", "debug")
	v.SetDefault("task.workers", 1)
	v.SetDefault("task.savepipe", 1)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if cfgFile == "" {
		return
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Debugf("config file(%s) not exist", cfgFile)
		return
	}
	v.SetConfigType("toml")
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		log.Warnf("read config file(%s) error, details: %s", v.ConfigFileUsed(), err)
	}
}

//envName 参数对应的环境变量名
func envName(key string) string {
	return EnvPrefix + "_" + strcase.ToScreamingSnake(key)
}

//bindFlags 绑定命令行参数, 优先级 参数 > 环境变量 > 配置文件 > 缺省
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if err = v.BindPFlag(f.Name, f); err != nil {
			return
		}
		err = v.BindEnv(f.Name, envName(f.Name))
	})
	return err
}

//LoadOptions 读取并校验参数, 推导与原工具一致的缺省值
func LoadOptions(v *viper.Viper) (Options, error) {
	var o Options
	if err := v.Unmarshal(&o); err != nil {
		return o, configErrorf("%s", err)
	}
	if o.Workers == 0 {
		o.Workers = v.GetInt("task.workers")
	}
	if o.SavePipe == 0 {
		o.SavePipe = v.GetInt("task.savepipe")
	}
	if err := defaults.Set(&o); err != nil {
		return o, configErrorf("%s", err)
	}
	o.Profile = strings.ToLower(o.Profile)
	o.Resampling = strings.ToLower(o.Resampling)
	o.TileFormat = strings.ToLower(o.TileFormat)
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(o); err != nil {
		return o, configErrorf("%s", err)
	}
	o.derive()
	return o, nil
}

func (o *Options) derive() {
	if o.TileSize == 0 {
		o.TileSize = TileSize
		if o.Profile == string(ProfileGarmin) {
			o.TileSize = 512
		}
	}
	if o.TileFormat == "" {
		switch ProfileKind(o.Profile) {
		case ProfileGEarth:
			o.TileFormat = string(HYBRID)
		case ProfileGarmin:
			o.TileFormat = string(JPEG)
		default:
			o.TileFormat = string(PNG)
		}
	}
	if o.TileFormat == string(HYBRID) || o.Profile == string(ProfileGarmin) {
		o.WebViewer = "none"
	} else if o.WebViewer == "" {
		o.WebViewer = "all"
	}
	if o.Profile == string(ProfileGEarth) {
		if o.KMLDepth == 0 {
			o.KMLDepth = 3
		}
		o.KMZ = true
		o.KML = true
	} else if o.KMLDepth == 0 {
		o.KMLDepth = 1
	}
}

//parseValues 解析 "0 0 0" 或 "0,0,0"
func parseValues(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, configErrorf("invalid value %q", f)
		}
		values = append(values, v)
	}
	return values, nil
}

//Pyramid 转为切片参数
func (o Options) Pyramid() (PyramidOptions, error) {
	minz, maxz, err := ParseZoomRange(o.Zoom)
	if err != nil {
		return PyramidOptions{}, err
	}
	resampling, err := ParseResampling(o.Resampling)
	if err != nil {
		return PyramidOptions{}, err
	}
	format, err := ParseTileFormat(o.TileFormat)
	if err != nil {
		return PyramidOptions{}, configErrorf("%s", err)
	}
	initDest, err := parseValues(o.InitDest)
	if err != nil {
		return PyramidOptions{}, err
	}
	title := o.Title
	if title == "" {
		title = baseName(o.Input)
	}
	return PyramidOptions{
		Profile:     ProfileKind(o.Profile),
		TileSize:    o.TileSize,
		Resampling:  resampling,
		Format:      format,
		MinZoom:     minz,
		MaxZoom:     maxz,
		Resume:      o.Resume,
		InitDest:    initDest,
		JPEGQuality: o.JPEGQuality,
		Workers:     o.Workers,
		SavePipe:    o.SavePipe,
		Title:       title,
		Copyright:   o.Copyright,
		URL:         o.URL,
		Quiet:       o.Quiet,
	}, nil
}

//Scheme 输出行号规则
func (o Options) Scheme() RowScheme {
	if o.TMSOSM {
		return OSM
	}
	return TMS
}

//Nodata 源影像nodata值
func (o Options) Nodata() ([]float64, error) {
	return parseValues(o.SrcNodata)
}

//SourceSRS --s-srs 指定的坐标系
func (o Options) SourceSRS() (int, error) {
	return ParseSRS(o.SRS)
}

//OutputPath 缺省输出为去掉扩展名的输入文件名, mbtiles 加 .mbtiles
func (o Options) OutputPath() string {
	out := o.Output
	if out == "" {
		out = baseName(o.Input)
		if o.MBTiles {
			out += ".mbtiles"
		}
	}
	return out
}

func (o Options) String() string {
	return fmt.Sprintf("%s -> %s (%s, %s, %s, zoom %q)", o.Input, o.OutputPath(), o.Profile, o.TileFormat, o.Resampling, o.Zoom)
}
