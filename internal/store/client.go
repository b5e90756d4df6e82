// Package store talks to the FormSync backend: template fetches,
// template saves, usage telemetry and the manual connection test. It
// also holds the extension-storage-shaped template cache.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/formsync/extension-core/internal/cryptofield"
	"github.com/formsync/extension-core/internal/models"
	"go.uber.org/zap"
)

// Backend routes, relative to the base URL. Authentication is a
// pre-shared static key header, not a per-user session token: the
// extension context has no session.
const (
	templatesPath = "/api/v1/public/templates"
	healthPath    = "/api/v1/public/health"
	keyHeader     = "X-Extension-Key"
)

// Client is the extension-side backend client. Construct with NewClient.
type Client struct {
	http    *http.Client
	baseURL string
	key     string
	userID  int64
	dec     *cryptofield.Decoder
	log     *zap.Logger
}

// NewClient returns a Client. httpClient may be nil, in which case a
// client with a 15s timeout is used.
func NewClient(baseURL, key string, userID int64, dec *cryptofield.Decoder, log *zap.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		key:     key,
		userID:  userID,
		dec:     dec,
		log:     log,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd *bytes.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(keyHeader, c.key)
	return req, nil
}

// ListTemplates fetches the user's templates and decodes every
// decryptable field before returning.
//
// Any network or HTTP-status failure degrades to an empty list: the
// caller cannot distinguish "no templates" from "fetch failed". The
// failure is logged here; the popup treats both the same way.
func (c *Client) ListTemplates(ctx context.Context) []models.Template {
	path := fmt.Sprintf("%s?usuarioId=%d", templatesPath, c.userID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		c.log.Warn("build templates request", zap.Error(err))
		return nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("fetch templates", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("fetch templates", zap.Int("status", resp.StatusCode))
		return nil
	}

	var raw []models.Template
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.log.Warn("decode templates response", zap.Error(err))
		return nil
	}

	return c.dec.DecodeTemplateList(raw)
}

// SaveTemplate creates a template on the backend and returns the saved
// copy. Unlike reads, saves surface their errors: the popup shows them.
func (c *Client) SaveTemplate(ctx context.Context, t models.Template) (*models.Template, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, templatesPath, body)
	if err != nil {
		return nil, fmt.Errorf("build save request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("save template: status %d", resp.StatusCode)
	}

	var saved models.Template
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return nil, fmt.Errorf("decode saved template: %w", err)
	}
	return &saved, nil
}

// ReportUsage records a fill attempt for the template. It is
// fire-and-forget: the call returns immediately, the request runs in
// the background, and failures are logged, never surfaced. Usage
// telemetry must not block or break the autofill flow.
func (c *Client) ReportUsage(templateID int64, success bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		body, _ := json.Marshal(map[string]bool{"success": success})
		path := fmt.Sprintf("%s/%d/uso", templatesPath, templateID)
		req, err := c.newRequest(ctx, http.MethodPost, path, body)
		if err != nil {
			c.log.Warn("build usage request", zap.Error(err))
			return
		}
		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Warn("report usage", zap.Int64("template", templateID), zap.Error(err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			c.log.Warn("report usage", zap.Int64("template", templateID), zap.Int("status", resp.StatusCode))
			return
		}
		c.log.Debug("usage recorded", zap.Int64("template", templateID), zap.Bool("success", success))
	}()
}

// Health probes the backend liveness endpoint. Used by the manual
// "test connection" action.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}
