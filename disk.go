package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const tileMapResourceFile = "tilemapresource.xml"

func numericDirs(path string) ([]int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var dirs []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		dirs = append(dirs, n)
	}
	sort.Ints(dirs)
	return dirs, nil
}

//ImportDir 导入 z/x/y.ext 目录到mbtiles, 完成后重算范围
func ImportDir(dir string, out *MBTiles) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", dir)
	}
	scheme := out.Scheme()
	meta := make(map[string]string)
	tmrPath := filepath.Join(dir, tileMapResourceFile)
	tmr, err := ReadTileMapResource(tmrPath)
	switch {
	case err == nil:
		scheme = tmr.RowScheme()
		meta = tmr.Metadata()
		delete(meta, "bounds")
		delete(meta, "center")
	case errors.Is(err, fs.ErrNotExist):
		tmr = nil
	default:
		log.Warnf("ignore %s ~ %s", tmrPath, err)
		tmr = nil
	}

	zooms, err := numericDirs(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	format := ""
	for _, z := range zooms {
		xs, err := numericDirs(filepath.Join(dir, strconv.Itoa(z)))
		if err != nil {
			return count, err
		}
		for _, x := range xs {
			col := filepath.Join(dir, strconv.Itoa(z), strconv.Itoa(x))
			files, err := os.ReadDir(col)
			if err != nil {
				return count, err
			}
			for _, f := range files {
				if f.IsDir() {
					continue
				}
				parts := strings.SplitN(f.Name(), ".", 2)
				y, err := strconv.Atoi(parts[0])
				if err != nil || len(parts) != 2 {
					log.Debugf("skip %s", f.Name())
					continue
				}
				if format == "" {
					format = parts[1]
				}
				data, err := os.ReadFile(filepath.Join(col, f.Name()))
				if err != nil {
					return count, err
				}
				c := TileCoord{Z: z, X: x, Y: y, Scheme: scheme}
				if !c.Valid() {
					log.Warnf("skip invalid tile %s", c)
					continue
				}
				if err := out.Put(c, data); err != nil {
					return count, fmt.Errorf("import %s: %w", c, err)
				}
				count++
			}
		}
	}
	if format != "" {
		if _, ok := meta["format"]; !ok {
			meta["format"] = format
		}
	}
	if err := out.SetMetadata(meta); err != nil {
		return count, err
	}
	if err := out.RecomputeBounds(); err != nil {
		return count, err
	}
	if tmr == nil && count > 0 {
		all, err := out.Metadata()
		if err != nil {
			return count, err
		}
		f, _ := ParseTileFormat(all["format"])
		t, err := NewTileMapResource(all, TileSize, f, scheme)
		if err != nil {
			return count, err
		}
		if err := t.WriteFile(tmrPath); err != nil {
			return count, err
		}
	}
	log.Infof("imported %d tiles from %s into %s", count, dir, out.Path())
	return count, nil
}

//ExportDir 导出mbtiles为 z/x/y.format 目录, 行号沿用库内规则
func ExportDir(in *MBTiles, dir string) (int, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return 0, err
	}
	meta, err := in.Metadata()
	if err != nil {
		return 0, err
	}
	format := in.Format()
	if format == "" {
		format = JPG
	}
	count := 0
	err = in.Tiles(func(t Tile) error {
		ext := format.Ext()
		if f := DetectFormat(t.C); f != "" {
			ext = f.Ext()
		}
		col := filepath.Join(dir, strconv.Itoa(t.T.Z), strconv.Itoa(t.T.X))
		if err := os.MkdirAll(col, os.ModePerm); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(col, fmt.Sprintf("%d.%s", t.T.Y, ext)), t.C, 0644); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	tmr, err := NewTileMapResource(meta, TileSize, format, in.Scheme())
	if err != nil {
		return count, err
	}
	if err := tmr.WriteFile(filepath.Join(dir, tileMapResourceFile)); err != nil {
		return count, err
	}
	log.Infof("exported %d tiles from %s into %s", count, in.Path(), dir)
	return count, nil
}
