// Package web forwards lifecycle requests to the web app manager (WAM),
// which owns every browser-based app process.
package web

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/webOS-ports/sam/internal/domain/lifecycle"
	"github.com/webOS-ports/sam/internal/infrastructure/logging"
	"github.com/webOS-ports/sam/internal/infrastructure/resilience"
	"github.com/webOS-ports/sam/internal/lifehandlers/transport"
)

// Handler drives web apps through WAM over HTTP.
type Handler struct {
	client  *resty.Client
	breaker *resilience.Breaker
	logger  *logging.Logger
}

// New creates the web backend against a WAM endpoint.
func New(baseURL string, timeout time.Duration, logger *logging.Logger) *Handler {
	log := logger.Named("web")
	return &Handler{
		client: transport.NewClient(baseURL, timeout),
		breaker: resilience.New("wam", resilience.Settings{
			FailureThreshold: 5,
			CoolDown:         30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				log.Warn("breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
		logger: log,
	}
}

// Launch asks WAM to start the app and records the process identities it
// reports back.
func (h *Handler) Launch(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	reply, err := h.post(task.Context(), "/launchApp", map[string]any{
		"instanceId":    app.InstanceID(),
		"launchPointId": app.LaunchPointID(),
		"appId":         app.AppID(),
		"parameters":    app.LaunchParams(task),
	})
	if err != nil {
		return err
	}

	if reply.ProcessID > 0 {
		app.SetProcessID(reply.ProcessID)
	}
	if reply.WebProcessID != "" {
		app.SetWebProcessID(reply.WebProcessID)
	}
	app.SetLifeStatus(lifecycle.StatusForeground)
	return nil
}

// Relaunch re-delivers the launch to a running web app through WAM. Only
// called when the registered fast-path does not apply.
func (h *Handler) Relaunch(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	app.SetLifeStatus(lifecycle.StatusLaunching)

	_, err := h.post(task.Context(), "/relaunchApp", map[string]any{
		"instanceId": app.InstanceID(),
		"appId":      app.AppID(),
		"parameters": app.RelaunchParams(task),
	})
	if err != nil {
		return err
	}
	app.SetLifeStatus(lifecycle.StatusForeground)
	return nil
}

// Pause moves the app off screen without tearing the page down.
func (h *Handler) Pause(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	app.SetLifeStatus(lifecycle.StatusPausing)

	_, err := h.post(task.Context(), "/pauseApp", map[string]any{
		"instanceId": app.InstanceID(),
		"appId":      app.AppID(),
		"parameters": task.Params(),
	})
	if err != nil {
		return err
	}
	app.SetLifeStatus(lifecycle.StatusPaused)
	return nil
}

// Term asks WAM to close the page cooperatively.
func (h *Handler) Term(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	app.SetLifeStatus(lifecycle.StatusClosing)

	_, err := h.post(task.Context(), "/closeApp", map[string]any{
		"instanceId": app.InstanceID(),
		"appId":      app.AppID(),
		"reason":     task.Reason(),
	})
	return err
}

// Kill force-closes through WAM. Fire-and-forget: errors are logged, never
// surfaced, and the call is idempotent.
func (h *Handler) Kill(app *lifecycle.RunningApp) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.post(ctx, "/killApp", map[string]any{
		"instanceId": app.InstanceID(),
		"appId":      app.AppID(),
	}); err != nil {
		h.logger.Warn("kill request failed",
			zap.String("instanceId", app.InstanceID()),
			zap.Error(err))
	}
	return nil
}

func (h *Handler) post(ctx context.Context, path string, body map[string]any) (*transport.Reply, error) {
	var reply transport.Reply

	err := h.breaker.Execute(func() error {
		resp, err := h.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&reply).
			Post(path)
		if err != nil {
			return fmt.Errorf("wam request %s failed: %w", path, err)
		}
		if resp.IsError() {
			return fmt.Errorf("wam request %s failed: %s", path, resp.Status())
		}
		if !reply.ReturnValue {
			return fmt.Errorf("wam refused %s: %s", path, reply.ErrorText)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}
