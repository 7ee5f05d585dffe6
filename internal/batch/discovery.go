package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/MeKo-Tech/marisma/internal/scene"
)

// DiscoverScenes finds scene directories among args. An argument is either a
// scene directory itself or a directory whose children (and, when recursive,
// deeper descendants) are searched. A scene directory is one whose name is a
// Landsat product identifier. The result is ordered by acquisition date.
func DiscoverScenes(args []string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", arg)
		}

		if isSceneDir(arg) {
			if shouldIncludeScene(arg, includePatterns, excludePatterns) {
				add(filepath.Clean(arg))
			}
			continue
		}

		found, err := discoverInDirectory(arg, recursive, includePatterns, excludePatterns)
		if err != nil {
			return nil, err
		}
		for _, d := range found {
			add(d)
		}
	}

	sortByAcquisition(dirs)
	return dirs, nil
}

// discoverInDirectory walks root for scene directories. Scene directories are
// not descended into.
func discoverInDirectory(root string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	var dirs []string

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if isSceneDir(path) {
			if shouldIncludeScene(path, includePatterns, excludePatterns) {
				dirs = append(dirs, path)
			}
			return filepath.SkipDir
		}
		if !recursive {
			return filepath.SkipDir
		}
		return nil
	}

	return dirs, filepath.WalkDir(root, walkFn)
}

func isSceneDir(path string) bool {
	_, err := scene.ParseProductID(filepath.Base(path))
	return err == nil
}

// shouldIncludeScene determines if a scene should be included based on include/exclude patterns.
func shouldIncludeScene(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return true
	}
	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern checks if the base name of path matches any of the given patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// sortByAcquisition orders scene directories by date, then by name.
func sortByAcquisition(dirs []string) {
	sort.SliceStable(dirs, func(i, j int) bool {
		a, _ := scene.ParseProductID(filepath.Base(dirs[i]))
		b, _ := scene.ParseProductID(filepath.Base(dirs[j]))
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return filepath.Base(dirs[i]) < filepath.Base(dirs[j])
	})
}
