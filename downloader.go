package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

//DownloadRetries 单个瓦片的下载次数
const DownloadRetries = 10

//TileDownloader 按URL模板下载瓦片
type TileDownloader struct {
	Map     *TileMap
	Client  *http.Client
	Retries int
	ctx     context.Context
	sleep   func(time.Duration)
}

//NewTileDownloader 创建下载器
func NewTileDownloader(ctx context.Context, m *TileMap) *TileDownloader {
	return &TileDownloader{
		Map:     m,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Retries: DownloadRetries,
		ctx:     ctx,
		sleep:   sleepContext(ctx),
	}
}

//TileSize 模板中的 {size}
func (d *TileDownloader) TileSize() int {
	return d.Map.Size
}

func (d *TileDownloader) fetch(url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range d.Map.Headers {
		req.Header.Set(k, v)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

//Tile 下载瓦片, 失败后按 retryFetch 的间隔重试
func (d *TileDownloader) Tile(c TileCoord) ([]byte, error) {
	url, err := d.Map.TileURL(c)
	if err != nil {
		return nil, err
	}
	log.Debugf("download %s", url)
	data, err := retryFetch(d.ctx, d.Retries, d.sleep, url, func() ([]byte, error) {
		return d.fetch(url)
	})
	if err != nil {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("cannot download URL: %v", err)}
	}
	return data, nil
}

//retryFetch 最多调用 fetch retries 次, 等待时间从1秒开始每两次加1秒, 最多10秒.
//ctx 取消后不再请求, 返回最后一次的错误
func retryFetch(ctx context.Context, retries int, sleep func(time.Duration), name string, fetch func() ([]byte, error)) ([]byte, error) {
	sleeptime := 1
	var last error
	for r := retries; r > 0; {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			break
		}
		data, err := fetch()
		if err == nil {
			return data, nil
		}
		last = err
		if ctx.Err() != nil {
			break
		}
		log.Debugf("fetch %s error ~ %s, %d retries left", name, err, r-1)
		r--
		if r > 0 {
			downloadRetries.Inc()
		}
		sleep(time.Duration(sleeptime) * time.Second)
		if sleeptime <= 10 && r%2 == 0 {
			sleeptime++
		}
	}
	if last == nil {
		last = fmt.Errorf("no attempts left")
	}
	return nil, last
}

//sleepContext 等待, ctx 取消时提前返回
func sleepContext(ctx context.Context) func(time.Duration) {
	return func(d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
}
