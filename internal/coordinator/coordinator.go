// Package coordinator implements the long-lived background dispatcher
// that mediates between the popup, content scripts and the backend API.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/formsync/extension-core/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TemplateService is the slice of the store client the coordinator
// needs.
type TemplateService interface {
	ListTemplates(ctx context.Context) []models.Template
	SaveTemplate(ctx context.Context, t models.Template) (*models.Template, error)
	ReportUsage(templateID int64, success bool)
}

// CacheInvalidator clears the persisted template cache.
type CacheInvalidator interface {
	Invalidate()
}

// Tab is an open page that can receive relayed notifications.
type Tab interface {
	ID() int
	Notify(msg models.Message) error
}

// Coordinator dispatches extension messages. One instance lives per
// browser profile; it must never crash on a malformed message.
type Coordinator struct {
	svc   TemplateService
	cache CacheInvalidator
	log   *zap.Logger

	mu   sync.Mutex
	tabs map[int]Tab
}

// New constructs a Coordinator.
func New(svc TemplateService, cache CacheInvalidator, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		svc:   svc,
		cache: cache,
		log:   log,
		tabs:  map[int]Tab{},
	}
}

// RegisterTab adds a tab to the notification fan-out. A tab registering
// twice replaces its previous registration.
func (c *Coordinator) RegisterTab(t Tab) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tabs[t.ID()] = t
}

// UnregisterTab removes a tab; unknown IDs are ignored.
func (c *Coordinator) UnregisterTab(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tabs, id)
}

// Dispatch routes a message through the action table and returns the
// response envelope. Any panic inside a handler is recovered into an
// error response: a malformed message must never take the coordinator
// down.
func (c *Coordinator) Dispatch(ctx context.Context, msg models.Message) (resp models.Response) {
	msgID := uuid.NewString()
	log := c.log.With(zap.String("msg_id", msgID), zap.String("action", msg.Action))

	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked", zap.Any("panic", r))
			resp = models.Response{Success: false, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	switch msg.Action {
	case models.ActionGetTemplates:
		return models.Response{Success: true, Templates: c.svc.ListTemplates(ctx)}

	case models.ActionSaveTemplate:
		if msg.Template == nil {
			return models.Response{Success: false, Error: "missing template payload"}
		}
		saved, err := c.svc.SaveTemplate(ctx, *msg.Template)
		if err != nil {
			log.Warn("save template failed", zap.Error(err))
			return models.Response{Success: false, Error: err.Error()}
		}
		return models.Response{Success: true, Template: saved}

	case models.ActionRecordUsage:
		c.svc.ReportUsage(msg.TemplateID, msg.Success)
		return models.Response{Success: true}

	case models.ActionPing:
		return models.Response{Success: true, Message: "FormSync is running"}

	case models.ActionTemplateCreated, models.ActionTemplateUpdated, models.ActionTemplateDeleted:
		c.handleTemplateNotification(log, msg)
		return models.Response{Success: true, Message: "notification processed"}

	default:
		return models.Response{Success: false, Error: "unrecognized action"}
	}
}

// handleTemplateNotification invalidates the local cache and relays the
// notification to every registered tab. Per-tab failures are logged and
// do not stop delivery to the remaining tabs.
func (c *Coordinator) handleTemplateNotification(log *zap.Logger, msg models.Message) {
	log.Info("template change",
		zap.Int64("template", msg.TemplateID),
		zap.String("name", msg.TemplateName))

	c.cache.Invalidate()

	for _, tab := range c.snapshotTabs() {
		if err := tab.Notify(msg); err != nil {
			log.Warn("tab not notified", zap.Int("tab", tab.ID()), zap.Error(err))
		}
	}
}

// snapshotTabs returns the registered tabs ordered by ID, outside the
// lock so slow tabs cannot block registration.
func (c *Coordinator) snapshotTabs() []Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Tab, 0, len(c.tabs))
	for _, t := range c.tabs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
