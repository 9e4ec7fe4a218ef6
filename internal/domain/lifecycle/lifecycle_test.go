package lifecycle

import (
	"sync"
	"time"

	"github.com/webOS-ports/sam/internal/domain/catalog"
	"github.com/webOS-ports/sam/internal/infrastructure/config"
	"github.com/webOS-ports/sam/internal/infrastructure/logging"
)

// Shared test fixtures for the lifecycle package.

type recordingSink struct {
	mu           sync.Mutex
	statuses     []LifeStatus
	lifeEvents   []LifeStatus
	runningPosts int
}

func (s *recordingSink) PostRunning(apps []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningPosts++
}

func (s *recordingSink) PostLifeStatus(app *RunningApp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, app.LifeStatus())
}

func (s *recordingSink) PostLifeEvent(app *RunningApp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifeEvents = append(s.lifeEvents, app.LifeStatus())
}

func (s *recordingSink) Statuses() []LifeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LifeStatus, len(s.statuses))
	copy(out, s.statuses)
	return out
}

func (s *recordingSink) RunningPosts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningPosts
}

type fakeHandler struct {
	mu         sync.Mutex
	launches   int
	relaunches int
	pauses     int
	terms      int
	kills      int
	killCh     chan struct{}
	launchErr  error
	onLaunch   func(app *RunningApp, task *LunaTask)
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{killCh: make(chan struct{}, 32)}
}

func (h *fakeHandler) Launch(app *RunningApp, task *LunaTask) error {
	h.mu.Lock()
	h.launches++
	fn := h.onLaunch
	err := h.launchErr
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if fn != nil {
		fn(app, task)
	}
	return nil
}

func (h *fakeHandler) Relaunch(app *RunningApp, task *LunaTask) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relaunches++
	return nil
}

func (h *fakeHandler) Pause(app *RunningApp, task *LunaTask) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
	return nil
}

func (h *fakeHandler) Term(app *RunningApp, task *LunaTask) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terms++
	return nil
}

func (h *fakeHandler) Kill(app *RunningApp) error {
	h.mu.Lock()
	h.kills++
	h.mu.Unlock()
	select {
	case h.killCh <- struct{}{}:
	default:
	}
	return nil
}

func (h *fakeHandler) counts() (launches, relaunches, pauses, terms, kills int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.launches, h.relaunches, h.pauses, h.terms, h.kills
}

type recordingResponder struct {
	mu       sync.Mutex
	payloads []map[string]any
	err      error
}

func (r *recordingResponder) Respond(payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingResponder) Payloads() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, len(r.payloads))
	copy(out, r.payloads)
	return out
}

// testCatalog seeds the usual suspects: a native menu app, a web browser,
// a qml clock and a devmode native sampler.
func testCatalog() *catalog.Catalog {
	cat := catalog.New()
	cat.AddApp(&catalog.AppDesc{ID: "tv.menu", Type: catalog.AppTypeNative, Title: "Menu", Main: "/usr/bin/menu"})
	cat.AddApp(&catalog.AppDesc{ID: "tv.browser", Type: catalog.AppTypeWeb, Title: "Browser"})
	cat.AddApp(&catalog.AppDesc{ID: "tv.clock", Type: catalog.AppTypeQML, Title: "Clock", Main: "/usr/share/clock/main.qml"})
	cat.AddApp(&catalog.AppDesc{ID: "dev.sampler", Type: catalog.AppTypeNative, Title: "Sampler", Location: catalog.AppLocationDevmode})
	return cat
}

type svcOptions struct {
	sink              EventSink
	handler           LifeHandler
	transitionTimeout time.Duration
	relaunchSupported bool
	multiInstance     bool
}

func testServices(opts svcOptions) *Services {
	cfg := config.Default()
	cfg.Lifecycle.AppRelaunchSupported = opts.relaunchSupported
	if opts.transitionTimeout > 0 {
		cfg.Lifecycle.TransitionTimeout = opts.transitionTimeout
	}
	if opts.multiInstance {
		cfg.Lifecycle.TargetDistro = config.DistroAuto
	}

	handler := opts.handler
	if handler == nil {
		handler = newFakeHandler()
	}
	sink := opts.sink
	if sink == nil {
		sink = NopSink{}
	}

	return NewServices(
		cfg,
		testCatalog(),
		NewHandlerMux(handler, handler, handler),
		sink,
		logging.NewNop(),
		nil,
	)
}

func newTask(req Request) (*LunaTask, *recordingResponder) {
	responder := &recordingResponder{}
	return NewLunaTask(nil, req, responder), responder
}
