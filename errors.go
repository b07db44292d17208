package main

import "fmt"

//ConfigurationError 参数错误, 启动前检查
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

//RasterOpenError 源影像无法打开或不支持
type RasterOpenError struct {
	Path string
	Err  error
}

func (e *RasterOpenError) Error() string {
	return fmt.Sprintf("open raster %s: %s", e.Path, e.Err)
}

func (e *RasterOpenError) Unwrap() error { return e.Err }

//InvalidCoverageError 范围或级别非法
type InvalidCoverageError struct {
	Msg string
}

func (e *InvalidCoverageError) Error() string {
	return "invalid coverage: " + e.Msg
}

//EmptyCoverageError 范围内没有瓦片
type EmptyCoverageError struct {
	Msg string
}

func (e *EmptyCoverageError) Error() string {
	return "empty coverage: " + e.Msg
}

//ImageOutputError 单个瓦片渲染/编码失败
type ImageOutputError struct {
	Coord TileCoord
	Err   error
}

func (e *ImageOutputError) Error() string {
	return fmt.Sprintf("'%d/%d/%d': %s", e.Coord.Z, e.Coord.X, e.Coord.Y, e.Err)
}

func (e *ImageOutputError) Unwrap() error { return e.Err }

//DownloadError 远程瓦片下载失败
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("download: %s", e.Err)
	}
	return fmt.Sprintf("download %s: %s", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

//ExtractionError 瓦片源提取失败
type ExtractionError struct {
	Msg string
}

func (e *ExtractionError) Error() string {
	return "extraction: " + e.Msg
}

//InvalidFormatError 不支持的格式
type InvalidFormatError struct {
	Format string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid format %q", e.Format)
}
