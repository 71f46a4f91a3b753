package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MapExt is the file extension of cache containers.
const MapExt = ".map"

// Maps handles operations on a directory of cache containers and the
// shared containers that sit next to them.
type Maps struct {
	Dir string
}

// ForFile returns the Maps directory that holds the given container.
func ForFile(path string) *Maps {
	return &Maps{Dir: filepath.Dir(path)}
}

// SharedPath returns the path to a sibling container by file name
func (m *Maps) SharedPath(name string) string {
	return filepath.Join(m.Dir, name)
}

// FileExists checks if a file exists
func (m *Maps) FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// FileSize returns the size of a file, or 0 if it doesn't exist
func (m *Maps) FileSize(filename string) int64 {
	info, err := os.Stat(filename)
	if err != nil {
		return 0
	}
	return info.Size()
}

// ListMaps walks the directory and returns every container path, sorted.
func (m *Maps) ListMaps() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(m.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), MapExt) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// GameFolder returns the name of the directory two levels above a container,
// which is the per-title install folder in remastered distributions
// (<install>/<title>/maps/<name>.map).
func GameFolder(path string) string {
	if path == "" {
		return ""
	}
	dir := filepath.Dir(filepath.Dir(filepath.Clean(path)))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return filepath.Base(dir)
}
