// Package store keeps debug copies of pipeline intermediates on disk.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// StepName identifies a pipeline step for caching purposes.
type StepName string

const (
	StepPosts    StepName = "posts"
	StepDigest   StepName = "digest"
	StepClassify StepName = "classify"
	StepReport   StepName = "report"
)

// Cache writes step outputs and model exchanges under a root directory.
// A nil *Cache is valid and discards everything.
type Cache struct {
	dir string
	now func() time.Time
}

// New returns a cache rooted at dir
func New(dir string) *Cache {
	return &Cache{dir: dir, now: time.Now}
}

// Dir returns the cache root
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// stepDir returns the cache directory for a given step.
func (c *Cache) stepDir(step StepName) string {
	return filepath.Join(c.dir, string(step))
}

// generateFilename creates a sortable, collision-free filename with the given
// extension. Many model calls can land in the same second.
func (c *Cache) generateFilename(ext string) string {
	return c.now().UTC().Format("2006-01-02T15-04-05.000000000") + "_" + uuid.NewString()[:8] + ext
}

func (c *Cache) write(dir, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	path := filepath.Join(dir, c.generateFilename(ext))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write cache file: %w", err)
	}
	return path, nil
}

// SaveStepOutput saves JSON-serializable data to the step's cache directory.
// Returns the path to the saved file, or "" for a nil cache.
func SaveStepOutput[T any](c *Cache, step StepName, data T) (string, error) {
	if c == nil {
		return "", nil
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal step output: %w", err)
	}
	return c.write(c.stepDir(step), ".json", jsonData)
}

// SaveTextOutput saves text content (e.g., markdown) to the step's cache directory.
func (c *Cache) SaveTextOutput(step StepName, content string, ext string) (string, error) {
	if c == nil {
		return "", nil
	}
	return c.write(c.stepDir(step), ext, []byte(content))
}

// LoadLatestStepOutput loads the most recent output from a step's cache directory.
// Returns the data, the filepath it was loaded from, and any error.
func LoadLatestStepOutput[T any](c *Cache, step StepName) (T, string, error) {
	var zero T

	latestPath, err := c.LatestStepFile(step, ".json")
	if err != nil {
		return zero, "", err
	}

	data, err := LoadStepOutput[T](latestPath)
	if err != nil {
		return zero, "", err
	}

	return data, latestPath, nil
}

// LoadStepOutput loads JSON data from a specific file path.
func LoadStepOutput[T any](path string) (T, error) {
	var data T

	jsonData, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("failed to read step output: %w", err)
	}

	if err := json.Unmarshal(jsonData, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal step output: %w", err)
	}

	return data, nil
}

// LatestStepFile returns the path to the most recent file with the given
// extension in a step's cache directory.
func (c *Cache) LatestStepFile(step StepName, ext string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("no cached output for step %s: cache disabled", step)
	}
	dir := c.stepDir(step)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no cached output for step %s", step)
		}
		return "", err
	}

	// Names start with a fixed-width UTC timestamp, so name order is chronological
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ext {
			files = append(files, entry.Name())
		}
	}

	if len(files) == 0 {
		return "", fmt.Errorf("no cached output for step %s", step)
	}
	sort.Strings(files)

	return filepath.Join(dir, files[len(files)-1]), nil
}
