package tle

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Cache stores per-satellite TLE text on a filesystem so the daemon can warm
// start without the network. Files are named tle_<catnr>_<unix>.txt; at most
// maxFiles per satellite are kept.
type Cache struct {
	fs       afero.Fs
	dir      string
	maxFiles int
}

// NewCache creates a Cache rooted at dir on fs, keeping at most maxFiles
// files per satellite.
func NewCache(fs afero.Fs, dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{
		fs:       fs,
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// Write saves data for one satellite to a timestamped file and prunes old
// files beyond maxFiles.
func (c *Cache) Write(catalogID int, data []byte, ts time.Time) error {
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	name := fmt.Sprintf("tle_%d_%d.txt", catalogID, ts.Unix())
	if err := afero.WriteFile(c.fs, filepath.Join(c.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return c.prune(catalogID)
}

// LoadLatest reads the newest cache file for a satellite. Returns the data,
// the time it was written, and any error.
func (c *Cache) LoadLatest(catalogID int) ([]byte, time.Time, error) {
	files, err := c.listFiles(catalogID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, fmt.Errorf("no cache files for catalog %d", catalogID)
	}

	// Files are sorted oldest first; take the last one.
	latest := files[len(files)-1]
	data, err := afero.ReadFile(c.fs, filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}

	return data, latest.ts, nil
}

type cacheFile struct {
	name string
	ts   time.Time
}

func (c *Cache) listFiles(catalogID int) ([]cacheFile, error) {
	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if _, statErr := c.fs.Stat(c.dir); statErr != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	prefix := fmt.Sprintf("tle_%d_", catalogID)

	var files []cacheFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".txt") {
			continue
		}
		tsStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".txt")
		unix, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}

func (c *Cache) prune(catalogID int) error {
	files, err := c.listFiles(catalogID)
	if err != nil {
		return err
	}
	if len(files) <= c.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-c.maxFiles] {
		if err := c.fs.Remove(filepath.Join(c.dir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}

	return nil
}
