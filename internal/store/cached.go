package store

import (
	"context"

	"github.com/formsync/extension-core/internal/models"
	"go.uber.org/zap"
)

// CachedService layers the file cache over the backend client. Reads
// hit the cache first; a backend fetch that returns templates refreshes
// it. Saves invalidate the cache so the next read sees the new list.
type CachedService struct {
	client *Client
	cache  *Cache
	log    *zap.Logger
}

// NewCachedService wraps client with cache.
func NewCachedService(client *Client, cache *Cache, log *zap.Logger) *CachedService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedService{client: client, cache: cache, log: log}
}

// ListTemplates serves from the cache when possible. On a miss it asks
// the backend; an empty backend answer (including outages) is returned
// as-is and is not cached, so a transient failure cannot shadow a later
// successful fetch.
func (s *CachedService) ListTemplates(ctx context.Context) []models.Template {
	if ts, ok := s.cache.Load(); ok {
		s.log.Debug("templates served from cache", zap.Int("count", len(ts)))
		return ts
	}

	ts := s.client.ListTemplates(ctx)
	if len(ts) > 0 {
		if err := s.cache.Store(ts); err != nil {
			s.log.Warn("template cache not written", zap.Error(err))
		}
	}
	return ts
}

// SaveTemplate forwards to the backend and invalidates the cache on
// success.
func (s *CachedService) SaveTemplate(ctx context.Context, t models.Template) (*models.Template, error) {
	saved, err := s.client.SaveTemplate(ctx, t)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate()
	return saved, nil
}

// ReportUsage forwards to the backend; usage counters never touch the
// cache.
func (s *CachedService) ReportUsage(templateID int64, success bool) {
	s.client.ReportUsage(templateID, success)
}

// Health forwards the backend liveness probe.
func (s *CachedService) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}
