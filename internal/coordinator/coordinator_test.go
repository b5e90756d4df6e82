package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/formsync/extension-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeService implements TemplateService for testing.
type fakeService struct {
	templates []models.Template
	saveErr   error
	savePanic bool

	saved      []models.Template
	usageIDs   []int64
	usageFlags []bool
}

func (f *fakeService) ListTemplates(ctx context.Context) []models.Template {
	return f.templates
}

func (f *fakeService) SaveTemplate(ctx context.Context, t models.Template) (*models.Template, error) {
	if f.savePanic {
		panic("service exploded")
	}
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = append(f.saved, t)
	out := t
	out.ID = 42
	return &out, nil
}

func (f *fakeService) ReportUsage(templateID int64, success bool) {
	f.usageIDs = append(f.usageIDs, templateID)
	f.usageFlags = append(f.usageFlags, success)
}

type fakeCache struct {
	invalidations int
}

func (f *fakeCache) Invalidate() { f.invalidations++ }

type fakeTab struct {
	id        int
	notifyErr error
	got       []models.Message
}

func (f *fakeTab) ID() int { return f.id }

func (f *fakeTab) Notify(msg models.Message) error {
	f.got = append(f.got, msg)
	return f.notifyErr
}

func newTestCoordinator(svc *fakeService, cache *fakeCache) *Coordinator {
	return New(svc, cache, zap.NewNop())
}

func TestDispatch_GetTemplates(t *testing.T) {
	svc := &fakeService{templates: []models.Template{
		{ID: 1, Name: "Login"},
		{ID: 2, Name: "Checkout"},
	}}
	c := newTestCoordinator(svc, &fakeCache{})

	resp := c.Dispatch(context.Background(), models.Message{Action: models.ActionGetTemplates})

	assert.True(t, resp.Success)
	require.Len(t, resp.Templates, 2)
	assert.Equal(t, "Login", resp.Templates[0].Name)
}

func TestDispatch_GetTemplates_EmptyListIsSuccess(t *testing.T) {
	c := newTestCoordinator(&fakeService{}, &fakeCache{})

	resp := c.Dispatch(context.Background(), models.Message{Action: models.ActionGetTemplates})

	assert.True(t, resp.Success)
	assert.Empty(t, resp.Templates)
	assert.Empty(t, resp.Error)
}

func TestDispatch_SaveTemplate(t *testing.T) {
	svc := &fakeService{}
	c := newTestCoordinator(svc, &fakeCache{})

	tpl := models.Template{Name: "New", Fields: []models.Field{{Name: "email", Value: "a@b.c"}}}
	resp := c.Dispatch(context.Background(), models.Message{
		Action:   models.ActionSaveTemplate,
		Template: &tpl,
	})

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Template)
	assert.Equal(t, int64(42), resp.Template.ID)
	require.Len(t, svc.saved, 1)
	assert.Equal(t, "New", svc.saved[0].Name)
}

func TestDispatch_SaveTemplate_MissingPayload(t *testing.T) {
	c := newTestCoordinator(&fakeService{}, &fakeCache{})

	resp := c.Dispatch(context.Background(), models.Message{Action: models.ActionSaveTemplate})

	assert.False(t, resp.Success)
	assert.Equal(t, "missing template payload", resp.Error)
}

func TestDispatch_SaveTemplate_ServiceError(t *testing.T) {
	svc := &fakeService{saveErr: errors.New("backend unavailable")}
	c := newTestCoordinator(svc, &fakeCache{})

	resp := c.Dispatch(context.Background(), models.Message{
		Action:   models.ActionSaveTemplate,
		Template: &models.Template{Name: "X"},
	})

	assert.False(t, resp.Success)
	assert.Equal(t, "backend unavailable", resp.Error)
}

func TestDispatch_RecordUsage(t *testing.T) {
	svc := &fakeService{}
	c := newTestCoordinator(svc, &fakeCache{})

	resp := c.Dispatch(context.Background(), models.Message{
		Action:     models.ActionRecordUsage,
		TemplateID: 7,
		Success:    true,
	})

	assert.True(t, resp.Success)
	require.Len(t, svc.usageIDs, 1)
	assert.Equal(t, int64(7), svc.usageIDs[0])
	assert.True(t, svc.usageFlags[0])
}

func TestDispatch_Ping(t *testing.T) {
	c := newTestCoordinator(&fakeService{}, &fakeCache{})

	resp := c.Dispatch(context.Background(), models.Message{Action: models.ActionPing})

	assert.True(t, resp.Success)
	assert.Equal(t, "FormSync is running", resp.Message)
}

func TestDispatch_UnknownAction(t *testing.T) {
	c := newTestCoordinator(&fakeService{}, &fakeCache{})

	for _, action := range []string{"", "fillForm", "GETTEMPLATES", "nonsense"} {
		resp := c.Dispatch(context.Background(), models.Message{Action: action})
		assert.False(t, resp.Success, "action %q", action)
		assert.Equal(t, "unrecognized action", resp.Error)
	}
}

func TestDispatch_RecoversFromPanic(t *testing.T) {
	svc := &fakeService{savePanic: true}
	c := newTestCoordinator(svc, &fakeCache{})

	var resp models.Response
	assert.NotPanics(t, func() {
		resp = c.Dispatch(context.Background(), models.Message{
			Action:   models.ActionSaveTemplate,
			Template: &models.Template{Name: "boom"},
		})
	})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "internal error")

	// The coordinator must stay usable after a recovered panic.
	resp = c.Dispatch(context.Background(), models.Message{Action: models.ActionPing})
	assert.True(t, resp.Success)
}

func TestDispatch_TemplateNotification(t *testing.T) {
	cache := &fakeCache{}
	c := newTestCoordinator(&fakeService{}, cache)

	good := &fakeTab{id: 1}
	failing := &fakeTab{id: 2, notifyErr: errors.New("tab closed")}
	last := &fakeTab{id: 3}
	c.RegisterTab(good)
	c.RegisterTab(failing)
	c.RegisterTab(last)

	for _, action := range []string{
		models.ActionTemplateCreated,
		models.ActionTemplateUpdated,
		models.ActionTemplateDeleted,
	} {
		resp := c.Dispatch(context.Background(), models.Message{
			Action:       action,
			TemplateID:   5,
			TemplateName: "Login",
		})
		assert.True(t, resp.Success, "action %q", action)
		assert.Equal(t, "notification processed", resp.Message)
	}

	assert.Equal(t, 3, cache.invalidations)
	// A failing tab must not stop delivery to the remaining tabs.
	assert.Len(t, good.got, 3)
	assert.Len(t, failing.got, 3)
	assert.Len(t, last.got, 3)
	assert.Equal(t, models.ActionTemplateCreated, good.got[0].Action)
}

func TestUnregisterTab(t *testing.T) {
	cache := &fakeCache{}
	c := newTestCoordinator(&fakeService{}, cache)

	tab := &fakeTab{id: 9}
	c.RegisterTab(tab)
	c.UnregisterTab(9)
	c.UnregisterTab(404) // unknown ID is a no-op

	c.Dispatch(context.Background(), models.Message{Action: models.ActionTemplateDeleted})

	assert.Empty(t, tab.got)
	assert.Equal(t, 1, cache.invalidations)
}

func TestRegisterTab_ReplacesByID(t *testing.T) {
	c := newTestCoordinator(&fakeService{}, &fakeCache{})

	old := &fakeTab{id: 1}
	repl := &fakeTab{id: 1}
	c.RegisterTab(old)
	c.RegisterTab(repl)

	c.Dispatch(context.Background(), models.Message{Action: models.ActionTemplateUpdated})

	assert.Empty(t, old.got)
	assert.Len(t, repl.got, 1)
}

const testKey = "test-extension-key"

func newTestServer(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	c := newTestCoordinator(svc, &fakeCache{})
	srv := httptest.NewServer(NewRouter(c, testKey, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func bridgePost(t *testing.T, srv *httptest.Server, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/bridge/message", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Extension-Key", key)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestRouter_Message(t *testing.T) {
	svc := &fakeService{templates: []models.Template{{ID: 1, Name: "Login"}}}
	srv := newTestServer(t, svc)

	resp := bridgePost(t, srv, testKey, `{"action":"getTemplates"}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out models.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	require.Len(t, out.Templates, 1)
	assert.Equal(t, "Login", out.Templates[0].Name)
}

func TestRouter_MessageBadJSON(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp := bridgePost(t, srv, testKey, `{"action":`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_MessageUnknownActionIsHTTP200(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp := bridgePost(t, srv, testKey, `{"action":"bogus"}`)
	defer resp.Body.Close()

	// Unknown actions are an application-level failure, not an HTTP one.
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Success)
	assert.Equal(t, "unrecognized action", out.Error)
}

func TestRouter_MissingKeyRejected(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp := bridgePost(t, srv, "", `{"action":"ping"}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_NonJSONRejected(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/bridge/message", strings.NewReader("action=ping"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Extension-Key", testKey)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestRouter_HealthzSkipsAuth(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp, err := srv.Client().Get(srv.URL + "/bridge/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
