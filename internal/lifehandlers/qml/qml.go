// Package qml forwards lifecycle requests to the QML booster, which hosts
// QML apps inside pre-warmed runtime processes.
package qml

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

// Handler drives QML apps through the booster over HTTP.
type Handler struct {
	client  *resty.Client
	breaker *resilience.Breaker
	logger  *logging.Logger
}

// New creates the qml backend against a booster endpoint.
func New(baseURL string, timeout time.Duration, logger *logging.Logger) *Handler {
	return &Handler{
		client: transport.NewClient(baseURL, timeout),
		breaker: resilience.New("booster", resilience.Settings{
			FailureThreshold: 5,
			CoolDown:         30 * time.Second,
		}),
		logger: logger.Named("qml"),
	}
}

// Launch hands the booster the minimal QML payload: main, appId, params.
func (h *Handler) Launch(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	reply, err := h.post(task.Context(), "/launch", app.LaunchParams(task))
	if err != nil {
		return err
	}
	if reply.ProcessID > 0 {
		app.SetProcessID(reply.ProcessID)
	}
	app.SetLifeStatus(lifecycle.StatusForeground)
	return nil
}

// Relaunch restarts the app inside its booster slot.
func (h *Handler) Relaunch(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	app.SetLifeStatus(lifecycle.StatusLaunching)

	if _, err := h.post(task.Context(), "/relaunch", app.LaunchParams(task)); err != nil {
		return err
	}
	app.SetLifeStatus(lifecycle.StatusForeground)
	return nil
}

// Pause suspends the booster slot.
func (h *Handler) Pause(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	app.SetLifeStatus(lifecycle.StatusPausing)

	if _, err := h.post(task.Context(), "/pause", map[string]any{
		"appId":      app.AppID(),
		"instanceId": app.InstanceID(),
	}); err != nil {
		return err
	}
	app.SetLifeStatus(lifecycle.StatusPaused)
	return nil
}

// Term asks the booster to close the app cooperatively.
func (h *Handler) Term(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	app.SetLifeStatus(lifecycle.StatusClosing)

	_, err := h.post(task.Context(), "/close", map[string]any{
		"appId":      app.AppID(),
		"instanceId": app.InstanceID(),
		"reason":     task.Reason(),
	})
	return err
}

// Kill force-terminates the booster slot. Idempotent, errors only logged.
func (h *Handler) Kill(app *lifecycle.RunningApp) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.post(ctx, "/kill", map[string]any{
		"appId":      app.AppID(),
		"instanceId": app.InstanceID(),
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
			return fmt.Errorf("booster request %s failed: %w", path, err)
		}
		if resp.IsError() {
			return fmt.Errorf("booster request %s failed: %s", path, resp.Status())
		}
		if !reply.ReturnValue {
			return fmt.Errorf("booster refused %s: %s", path, reply.ErrorText)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}
