package lifecycle

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/webOS-ports/sam/internal/domain/catalog"
)

var errNotRegistered = errors.New("instance is not registered")

// RunningApp is a single live application instance. It owns the instance's
// state machine, killing timer and registration channel. The registry is the
// sole owner of RunningApp values; everything else holds non-owning
// references scoped to one operation.
type RunningApp struct {
	svc         *Services
	launchPoint *catalog.LaunchPoint

	mu            sync.Mutex
	instanceID    string
	displayID     int
	processID     int
	webProcessID  string
	lifeStatus    LifeStatus
	launchCount   int
	killingTimer  *time.Timer
	keepAlive     bool
	noSplash      bool
	spinner       bool
	isHidden      bool
	isFullWindow  bool
	preload       string
	token         int64
	context       int
	isRegistered  bool
	registeredApp Responder
}

// NewRunningApp creates an instance bound to a launch point. The instance
// starts in STOP with no identity; the registry assigns one before Add.
func NewRunningApp(svc *Services, launchPoint *catalog.LaunchPoint) *RunningApp {
	return &RunningApp{
		svc:          svc,
		launchPoint:  launchPoint,
		displayID:    -1,
		processID:    -1,
		lifeStatus:   StatusStop,
		noSplash:     true,
		spinner:      true,
		isFullWindow: true,
	}
}

// Stop releases the killing timer. The registry calls this on every removal
// path, including abnormal teardown.
func (a *RunningApp) Stop() {
	a.mu.Lock()
	a.stopKillingTimerLocked()
	a.mu.Unlock()
}

func (a *RunningApp) LaunchPoint() *catalog.LaunchPoint { return a.launchPoint }
func (a *RunningApp) LaunchPointID() string             { return a.launchPoint.ID() }
func (a *RunningApp) AppID() string                     { return a.launchPoint.AppID() }
func (a *RunningApp) AppType() catalog.AppType          { return a.launchPoint.AppDesc().Type }

func (a *RunningApp) InstanceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instanceID
}

func (a *RunningApp) SetInstanceID(instanceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instanceID = instanceID
}

func (a *RunningApp) DisplayID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.displayID
}

func (a *RunningApp) SetDisplayID(displayID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.displayID = displayID
}

func (a *RunningApp) ProcessID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processID
}

func (a *RunningApp) SetProcessID(processID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processID = processID
}

func (a *RunningApp) WebProcessID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.webProcessID
}

func (a *RunningApp) SetWebProcessID(webProcessID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.webProcessID = webProcessID
}

func (a *RunningApp) LifeStatus() LifeStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lifeStatus
}

// IsTransition reports whether the instance is currently between states.
func (a *RunningApp) IsTransition() bool {
	return a.LifeStatus().IsTransition()
}

func (a *RunningApp) LaunchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.launchCount
}

func (a *RunningApp) KeepAlive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.keepAlive
}

func (a *RunningApp) NoSplash() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.noSplash
}

func (a *RunningApp) Spinner() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spinner
}

func (a *RunningApp) IsHidden() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isHidden
}

func (a *RunningApp) IsFullWindow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isFullWindow
}

func (a *RunningApp) SetFullWindow(fullWindow bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.isFullWindow = fullWindow
}

func (a *RunningApp) Preload() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preload
}

func (a *RunningApp) Token() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *RunningApp) SetToken(token int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

func (a *RunningApp) Context() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.context
}

func (a *RunningApp) SetContext(context int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.context = context
}

func (a *RunningApp) IsRegistered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isRegistered
}

// ApplyLaunchRequest reads launch-policy flags off the request params.
func (a *RunningApp) ApplyLaunchRequest(params map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v, ok := params["keepAlive"].(bool); ok {
		a.keepAlive = v
	}
	if v, ok := params["noSplash"].(bool); ok {
		a.noSplash = v
	}
	if v, ok := params["spinner"].(bool); ok {
		a.spinner = v
	}
	if v, ok := params["hidden"].(bool); ok {
		a.isHidden = v
	}
	if v, ok := params["preload"].(string); ok {
		a.preload = v
	}
}

// SetLifeStatus drives the state machine. The contract:
//
//  1. next == current is a no-op success.
//  2. A transition during another transition is refused, except CLOSING,
//     which may always be entered (abort stays possible).
//  3. LAUNCHING from FOREGROUND collapses to a RELAUNCHING pulse with the
//     state held at FOREGROUND; LAUNCHING from BACKGROUND, PAUSED or
//     PRELOADED enters RELAUNCHING instead.
//  4. Entering PRELOADING or LAUNCHING increments the launch counter.
//  5. The killing timer is armed while in a transition state and cancelled
//     otherwise.
//
// Every successful change posts a status event and a life event.
func (a *RunningApp) SetLifeStatus(next LifeStatus) bool {
	logger := a.svc.Logger

	a.mu.Lock()
	current := a.lifeStatus
	if current == next {
		a.mu.Unlock()
		logger.Debug("life status unchanged",
			zap.String("instanceId", a.InstanceID()),
			zap.String("appId", a.AppID()),
			zap.String("status", next.String()))
		return true
	}

	// CLOSING is privileged. It can always be entered, so a stuck launch
	// can still be aborted.
	if current.IsTransition() && next.IsTransition() && next != StatusClosing {
		a.mu.Unlock()
		logger.Warn("life status change refused during transition",
			zap.String("instanceId", a.InstanceID()),
			zap.String("appId", a.AppID()),
			zap.String("from", current.String()),
			zap.String("to", next.String()))
		return false
	}

	switch next {
	case StatusStop:
		if current == StatusClosing {
			logger.Info("closed by SAM", zap.String("instanceId", a.instanceID), zap.String("appId", a.AppID()))
		} else {
			logger.Info("closed by itself", zap.String("instanceId", a.instanceID), zap.String("appId", a.AppID()))
		}

	case StatusPreloading:
		a.launchCount++

	case StatusLaunching:
		a.launchCount++
		switch current {
		case StatusForeground:
			// Self relaunch: the app never leaves the screen. Emit a
			// RELAUNCHING pulse, then hold the state at FOREGROUND.
			a.lifeStatus = StatusRelaunching
			a.mu.Unlock()
			logger.Info("life status changed",
				zap.String("instanceId", a.InstanceID()),
				zap.String("appId", a.AppID()),
				zap.String("from", current.String()),
				zap.String("to", StatusRelaunching.String()))
			a.svc.Sink.PostLifeStatus(a)
			a.mu.Lock()
			next = StatusForeground
		case StatusBackground, StatusPaused, StatusPreloaded:
			next = StatusRelaunching
		}
	}

	a.lifeStatus = next
	if next.IsTransition() {
		a.startKillingTimerLocked(a.svc.Config.Lifecycle.TransitionTimeout)
	} else {
		a.stopKillingTimerLocked()
	}
	a.mu.Unlock()

	logger.Info("life status changed",
		zap.String("instanceId", a.InstanceID()),
		zap.String("appId", a.AppID()),
		zap.String("from", current.String()),
		zap.String("to", next.String()))
	if m := a.svc.Metrics; m != nil {
		m.StatusChanges.WithLabelValues(next.String()).Inc()
	}

	a.svc.Sink.PostLifeStatus(a)
	a.svc.Sink.PostLifeEvent(a)
	return true
}

// Launch forwards to the launcher backend for this app type.
func (a *RunningApp) Launch(task *LunaTask) error {
	return a.svc.Handlers.For(a).Launch(a, task)
}

// Relaunch delivers a relaunch to the instance. Registered apps with the
// relaunch fast-path enabled get the event pushed straight over their
// registration channel; the launcher backend is bypassed entirely.
func (a *RunningApp) Relaunch(task *LunaTask) error {
	if a.IsRegistered() && a.svc.Config.Lifecycle.AppRelaunchSupported {
		a.SetLifeStatus(StatusLaunching)
		if err := a.SendEvent(a.RelaunchParams(task)); err != nil {
			task.ReplyError(ErrCodeLaunch, "Failed to send relaunch event")
			return err
		}
		task.Reply(nil)
		return nil
	}
	return a.svc.Handlers.For(a).Relaunch(a, task)
}

// Pause forwards to the launcher backend.
func (a *RunningApp) Pause(task *LunaTask) error {
	return a.svc.Handlers.For(a).Pause(a, task)
}

// Close requests cooperative termination. The term request reaches the
// backend even when the instance is already closing (a doubled close terms
// twice — shipped behavior); the doubled task itself completes successfully
// because closing is idempotent from the client's view.
func (a *RunningApp) Close(task *LunaTask) error {
	wasClosing := a.LifeStatus() == StatusClosing

	err := a.svc.Handlers.For(a).Term(a, task)

	if wasClosing {
		a.svc.Logger.Warn("instance is already closing",
			zap.String("instanceId", a.InstanceID()),
			zap.String("appId", a.AppID()))
		task.Reply(nil)
		return nil
	}
	return err
}

// RegisterApp binds the task's response handle as the instance's outbound
// event channel. One-shot: a second registration is rejected and the
// existing channel is untouched.
func (a *RunningApp) RegisterApp(task *LunaTask) error {
	a.mu.Lock()
	if a.isRegistered {
		a.mu.Unlock()
		return task.ReplyError(ErrCodeGeneral, "The app is already registered")
	}
	a.registeredApp = task.Responder()
	a.isRegistered = true
	a.mu.Unlock()

	payload := map[string]any{
		"event":   "registered",
		"message": "registered", // message mirrors event for back-compat
	}
	if err := a.SendEvent(payload); err != nil {
		a.mu.Lock()
		a.isRegistered = false
		a.registeredApp = nil
		a.mu.Unlock()
		a.svc.Logger.Warn("failed to register application",
			zap.String("instanceId", a.InstanceID()),
			zap.String("appId", a.AppID()),
			zap.Error(err))
		return err
	}

	a.svc.Logger.Info("application is registered",
		zap.String("instanceId", a.InstanceID()),
		zap.String("appId", a.AppID()))
	return nil
}

// SendEvent pushes a payload over the registration channel. The sender
// stamps returnValue:true.
func (a *RunningApp) SendEvent(payload map[string]any) error {
	a.mu.Lock()
	registered := a.isRegistered
	channel := a.registeredApp
	a.mu.Unlock()

	if !registered || channel == nil {
		a.svc.Logger.Warn("instance is not registered",
			zap.String("instanceId", a.InstanceID()),
			zap.String("appId", a.AppID()))
		return errNotRegistered
	}

	payload["returnValue"] = true
	return channel.Respond(payload)
}

// LaunchParams builds the payload handed to the launcher backend. QML apps
// get the minimal booster shape; everything else gets the registerApp
// interface envelope.
func (a *RunningApp) LaunchParams(task *LunaTask) map[string]any {
	params := make(map[string]any)
	desc := a.launchPoint.AppDesc()

	if preload := a.Preload(); preload != "" {
		params["preload"] = preload
	}

	if desc.Type == catalog.AppTypeQML {
		params["main"] = desc.Main
		params["appId"] = desc.ID
		params["params"] = task.Params()
		return params
	}

	params["event"] = "launch"
	params["reason"] = task.Reason()
	params["appId"] = task.AppID()
	params["nid"] = task.AppID()
	params["interfaceVersion"] = 2
	params["interfaceMethod"] = "registerApp"
	params["parameters"] = task.Params()
	params["@system_native_app"] = true
	return params
}

// RelaunchParams builds the payload pushed over the registration channel.
func (a *RunningApp) RelaunchParams(task *LunaTask) map[string]any {
	return map[string]any{
		"returnValue": true,
		"event":       "relaunch",
		"message":     "relaunch", // message mirrors event for back-compat
		"parameters":  task.Params(),
		"reason":      task.Reason(),
		"appId":       task.AppID(),
	}
}

// ToJSON renders the instance for the running observers.
func (a *RunningApp) ToJSON() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := map[string]any{
		"instanceId":    a.instanceID,
		"launchPointId": a.launchPoint.ID(),
		"id":            a.launchPoint.AppID(),
		"displayId":     a.displayID,
		"appType":       string(a.launchPoint.AppDesc().Type),
		"lifeStatus":    a.lifeStatus.String(),
	}
	if a.processID > 0 {
		out["processid"] = strconv.Itoa(a.processID)
	}
	if a.webProcessID != "" {
		out["webprocessid"] = a.webProcessID
	}
	return out
}

// startKillingTimerLocked arms the transition guard. Rearming is cancel then
// schedule. Callers hold a.mu.
func (a *RunningApp) startKillingTimerLocked(timeout time.Duration) {
	a.stopKillingTimerLocked()
	a.killingTimer = time.AfterFunc(timeout, a.onKillingTimer)
}

func (a *RunningApp) stopKillingTimerLocked() {
	if a.killingTimer != nil {
		a.killingTimer.Stop()
		a.killingTimer = nil
	}
}

// onKillingTimer fires when a transition exceeds its deadline. It kills the
// instance and rearms: the timer keeps firing until the app actually leaves
// the transition state. Timeout here is a scheduled action, not an error.
func (a *RunningApp) onKillingTimer() {
	a.mu.Lock()
	if a.killingTimer == nil || !a.lifeStatus.IsTransition() {
		a.mu.Unlock()
		return
	}
	a.killingTimer = time.AfterFunc(a.svc.Config.Lifecycle.TransitionTimeout, a.onKillingTimer)
	a.mu.Unlock()

	a.svc.Logger.Warn("transition timed out, killing",
		zap.String("instanceId", a.InstanceID()),
		zap.String("appId", a.AppID()),
		zap.String("lifeStatus", a.LifeStatus().String()))
	if m := a.svc.Metrics; m != nil {
		m.TransitionTimeouts.Inc()
		m.KillsTotal.Inc()
	}

	if err := a.svc.Handlers.For(a).Kill(a); err != nil {
		a.svc.Logger.Warn("kill failed",
			zap.String("instanceId", a.InstanceID()),
			zap.Error(err))
	}
}
