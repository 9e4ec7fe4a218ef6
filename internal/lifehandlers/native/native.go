// Package native starts and stops native application processes directly.
package native

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/webOS-ports/sam/internal/domain/lifecycle"
	"github.com/webOS-ports/sam/internal/infrastructure/logging"
)

// Handler launches native apps as OS processes. It supervises every process
// it starts and reports exits so the registry can drop the instance.
type Handler struct {
	logger *logging.Logger
	onExit func(pid int)

	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// New creates the native backend. onExit is invoked from the reaper
// goroutine whenever a supervised process dies; pass nil to ignore exits.
func New(logger *logging.Logger, onExit func(pid int)) *Handler {
	if onExit == nil {
		onExit = func(int) {}
	}
	return &Handler{
		logger: logger.Named("native"),
		onExit: onExit,
		procs:  make(map[int]*exec.Cmd),
	}
}

// Launch starts the app binary with the launch payload as its argument.
func (h *Handler) Launch(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	desc := app.LaunchPoint().AppDesc()
	if desc.Main == "" {
		return fmt.Errorf("app %s has no main executable", desc.ID)
	}

	payload, err := json.Marshal(app.LaunchParams(task))
	if err != nil {
		return fmt.Errorf("failed to encode launch params: %w", err)
	}

	cmd := exec.Command(desc.Main, string(payload))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", desc.Main, err)
	}
	pid := cmd.Process.Pid
	app.SetProcessID(pid)

	h.mu.Lock()
	h.procs[pid] = cmd
	h.mu.Unlock()
	go h.reap(pid, cmd)

	h.logger.Info("native app started",
		zap.String("appId", desc.ID),
		zap.String("instanceId", app.InstanceID()),
		zap.Int("pid", pid))

	app.SetLifeStatus(lifecycle.StatusForeground)
	return nil
}

// Relaunch restarts the process. Only called when the registered fast-path
// does not apply; that path never reaches the backend.
func (h *Handler) Relaunch(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	app.SetLifeStatus(lifecycle.StatusLaunching)

	if pid := app.ProcessID(); pid > 0 {
		h.signal(pid, syscall.SIGKILL)
	}
	return h.Launch(app, task)
}

// Pause stops the process with SIGSTOP.
func (h *Handler) Pause(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	pid := app.ProcessID()
	if pid <= 0 {
		return fmt.Errorf("app %s has no process", app.AppID())
	}

	app.SetLifeStatus(lifecycle.StatusPausing)
	if err := h.signal(pid, syscall.SIGSTOP); err != nil {
		return err
	}
	app.SetLifeStatus(lifecycle.StatusPaused)
	return nil
}

// Term asks the process to exit cooperatively.
func (h *Handler) Term(app *lifecycle.RunningApp, task *lifecycle.LunaTask) error {
	pid := app.ProcessID()
	if pid <= 0 {
		return fmt.Errorf("app %s has no process", app.AppID())
	}

	app.SetLifeStatus(lifecycle.StatusClosing)
	return h.signal(pid, syscall.SIGTERM)
}

// Kill force-terminates the process. Idempotent: a process that is already
// gone is not an error.
func (h *Handler) Kill(app *lifecycle.RunningApp) error {
	pid := app.ProcessID()
	if pid <= 0 {
		return nil
	}
	if err := h.signal(pid, syscall.SIGKILL); err != nil {
		h.logger.Debug("kill on dead process", zap.Int("pid", pid), zap.Error(err))
	}
	return nil
}

func (h *Handler) signal(pid int, sig syscall.Signal) error {
	h.mu.Lock()
	cmd, ok := h.procs[pid]
	h.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}
	return nil
}

func (h *Handler) reap(pid int, cmd *exec.Cmd) {
	err := cmd.Wait()

	h.mu.Lock()
	delete(h.procs, pid)
	h.mu.Unlock()

	h.logger.Info("native app exited", zap.Int("pid", pid), zap.Error(err))
	h.onExit(pid)
}
