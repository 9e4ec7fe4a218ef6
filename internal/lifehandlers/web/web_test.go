package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webOS-ports/sam/internal/domain/catalog"
	"github.com/webOS-ports/sam/internal/domain/lifecycle"
	"github.com/webOS-ports/sam/internal/infrastructure/config"
	"github.com/webOS-ports/sam/internal/infrastructure/logging"
)

type wamStub struct {
	mu       sync.Mutex
	requests map[string]map[string]any
	refuse   bool
}

func (w *wamStub) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		w.mu.Lock()
		w.requests[r.URL.Path] = body
		refuse := w.refuse
		w.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		if refuse {
			json.NewEncoder(rw).Encode(map[string]any{
				"returnValue": false,
				"errorText":   "window denied",
			})
			return
		}
		json.NewEncoder(rw).Encode(map[string]any{
			"returnValue":  true,
			"processId":    2110,
			"webprocessid": "web-2110",
		})
	}
}

func (w *wamStub) request(path string) map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requests[path]
}

func newWebApp(t *testing.T, handler *Handler) *lifecycle.RunningApp {
	t.Helper()

	cat := catalog.New()
	_, err := cat.AddApp(&catalog.AppDesc{ID: "tv.browser", Type: catalog.AppTypeWeb, Title: "Browser"})
	require.NoError(t, err)

	svc := lifecycle.NewServices(
		config.Default(),
		cat,
		lifecycle.NewHandlerMux(handler, handler, handler),
		nil,
		logging.NewNop(),
		nil,
	)

	lp, _ := cat.GetByAppID("tv.browser")
	app := lifecycle.NewRunningApp(svc, lp)
	app.SetInstanceID("browser-instance0")
	app.SetDisplayID(0)
	return app
}

func TestLaunchThroughWAM(t *testing.T) {
	stub := &wamStub{requests: make(map[string]map[string]any)}
	ts := httptest.NewServer(stub.handler())
	defer ts.Close()

	handler := New(ts.URL, 2*time.Second, logging.NewNop())
	app := newWebApp(t, handler)

	task := lifecycle.NewLunaTask(nil, lifecycle.Request{
		AppID:  "tv.browser",
		Params: map[string]any{"url": "http://example.com"},
	}, nil)

	require.NoError(t, handler.Launch(app, task))

	assert.Equal(t, 2110, app.ProcessID())
	assert.Equal(t, "web-2110", app.WebProcessID())
	assert.Equal(t, lifecycle.StatusForeground, app.LifeStatus())

	body := stub.request("/launchApp")
	require.NotNil(t, body)
	assert.Equal(t, "browser-instance0", body["instanceId"])
	assert.Equal(t, "tv.browser", body["appId"])
}

func TestLaunchRefusedByWAM(t *testing.T) {
	stub := &wamStub{requests: make(map[string]map[string]any), refuse: true}
	ts := httptest.NewServer(stub.handler())
	defer ts.Close()

	handler := New(ts.URL, 2*time.Second, logging.NewNop())
	app := newWebApp(t, handler)

	task := lifecycle.NewLunaTask(nil, lifecycle.Request{AppID: "tv.browser"}, nil)

	err := handler.Launch(app, task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window denied")
	assert.Equal(t, lifecycle.StatusStop, app.LifeStatus())
}

func TestPauseThroughWAM(t *testing.T) {
	stub := &wamStub{requests: make(map[string]map[string]any)}
	ts := httptest.NewServer(stub.handler())
	defer ts.Close()

	handler := New(ts.URL, 2*time.Second, logging.NewNop())
	app := newWebApp(t, handler)

	task := lifecycle.NewLunaTask(nil, lifecycle.Request{AppID: "tv.browser"}, nil)
	require.NoError(t, handler.Pause(app, task))

	assert.Equal(t, lifecycle.StatusPaused, app.LifeStatus())
	assert.NotNil(t, stub.request("/pauseApp"))
	app.Stop()
}

func TestTermDrivesClosing(t *testing.T) {
	stub := &wamStub{requests: make(map[string]map[string]any)}
	ts := httptest.NewServer(stub.handler())
	defer ts.Close()

	handler := New(ts.URL, 2*time.Second, logging.NewNop())
	app := newWebApp(t, handler)

	task := lifecycle.NewLunaTask(nil, lifecycle.Request{AppID: "tv.browser", Reason: "memory"}, nil)
	require.NoError(t, handler.Term(app, task))

	assert.Equal(t, lifecycle.StatusClosing, app.LifeStatus())
	assert.Equal(t, "memory", stub.request("/closeApp")["reason"])
	app.Stop()
}
