package store

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/formsync/extension-core/internal/models"
	"go.uber.org/zap"
)

// Cache persists the last fetched template list to a file, standing in
// for extension storage. The coordinator invalidates it on every
// template change notification; the popup-equivalent re-fetches on
// open, so the cache only ever shortens a cold start.
type Cache struct {
	path string
	mu   sync.Mutex
	log  *zap.Logger
}

// NewCache returns a Cache backed by the given file path.
func NewCache(path string, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{path: path, log: log}
}

// Load returns the cached templates, or ok=false when the cache is
// empty, missing or unreadable. A corrupt cache file is treated as a
// miss, not an error.
func (c *Cache) Load() (ts []models.Template, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&ts); err != nil {
		c.log.Warn("template cache unreadable, ignoring", zap.Error(err))
		return nil, false
	}
	return ts, true
}

// Store writes the template list to the cache file.
func (c *Cache) Store(ts []models.Template) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Create(c.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(ts)
}

// Invalidate removes the cache file. A missing file is fine.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		c.log.Warn("invalidate template cache", zap.Error(err))
		return
	}
	c.log.Debug("template cache invalidated")
}
