package lifecycle

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/webOS-ports/sam/internal/shared/id"
)

// MemoryChecker decides whether the device has headroom to launch an item.
// Implementations may suspend the decision: allocate a token with
// Orchestrator.NextToken, set it on the item, return (false, nil) and resume
// the pipeline later through Orchestrator.Resume.
type MemoryChecker interface {
	CanLaunch(item *LaunchingItem) (bool, error)
}

type alwaysFits struct{}

func (alwaysFits) CanLaunch(item *LaunchingItem) (bool, error) { return true, nil }

// Orchestrator accepts client tasks, resolves or creates the RunningApp and
// drives it through the launch pipeline. All operations serialize on one
// dispatch lock; this is the Go rendition of the platform's single
// cooperative event loop.
type Orchestrator struct {
	svc    *Services
	apps   *RunningAppList
	memory MemoryChecker
	gen    *id.Generator

	mu        sync.Mutex
	pending   map[int64]*LaunchingItem
	nextToken atomic.Int64
}

// NewOrchestrator wires the pipeline against fresh services.
func NewOrchestrator(svc *Services) *Orchestrator {
	return &Orchestrator{
		svc:     svc,
		apps:    NewRunningAppList(svc),
		memory:  alwaysFits{},
		gen:     id.Default(),
		pending: make(map[int64]*LaunchingItem),
	}
}

// WithMemoryChecker swaps in a real memory policy.
func (o *Orchestrator) WithMemoryChecker(checker MemoryChecker) *Orchestrator {
	o.memory = checker
	return o
}

// WithGenerator swaps in an id generator. Tests inject deterministic entropy.
func (o *Orchestrator) WithGenerator(gen *id.Generator) *Orchestrator {
	o.gen = gen
	return o
}

// Apps exposes the registry to the RPC layer for read paths.
func (o *Orchestrator) Apps() *RunningAppList { return o.apps }

// NextToken allocates an RPC correlation token.
func (o *Orchestrator) NextToken() int64 { return o.nextToken.Add(1) }

// Launch resolves or creates an instance for the task and walks it through
// PRELAUNCH, MEMORY_CHECK and LAUNCH. Each stage may resolve synchronously,
// suspend on an outstanding reply, or fail and short-circuit to DONE.
func (o *Orchestrator) Launch(task *LunaTask) {
	if task.AppID() == "" && task.LaunchPointID() == "" {
		task.ReplyError(ErrCodeInvalidParam, "Both appId and launchPointId are missing")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	item := NewLaunchingItem(task)
	o.runItem(item)
}

// Resume continues an item that suspended on an outstanding reply. Late
// replies for tokens that were already resolved or cleared are dropped.
func (o *Orchestrator) Resume(token int64, payload map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	item, ok := o.pending[token]
	if !ok {
		o.svc.Logger.Debug("dropping reply for stale token", zap.Int64("token", token))
		return
	}
	delete(o.pending, token)
	item.ResetReturnToken()
	item.SetReturnPayload(payload)
	o.runItem(item)
}

// runItem advances the pipeline until the item suspends or reaches DONE.
// Callers hold the dispatch lock.
func (o *Orchestrator) runItem(item *LaunchingItem) {
	for item.Stage() != StageDone {
		switch item.Stage() {
		case StageNone:
			item.SetStage(StagePrelaunch)
		case StagePrelaunch:
			o.prelaunch(item)
		case StageMemoryCheck:
			o.memoryCheck(item)
		case StageLaunch:
			o.launch(item)
		}
		if token := item.ReturnToken(); token != 0 {
			o.pending[token] = item
			return
		}
	}
	o.finish(item)
}

// prelaunch resolves the task to a live instance or creates one. New
// instances are minted an id, registered and made visible before launch.
func (o *Orchestrator) prelaunch(item *LaunchingItem) {
	task := item.Task()

	if app := o.apps.GetByLunaTask(task); app != nil {
		item.app = app
		item.existing = true
		item.SetStage(StageMemoryCheck)
		return
	}

	app := o.apps.CreateByLunaTask(task)
	if app == nil {
		item.Fail(ErrCodeGeneral, "Cannot find proper launchPoint")
		return
	}

	if app.InstanceID() == "" {
		displayID := task.DisplayID()
		if displayID < 0 {
			displayID = 0
		}
		instanceID := o.gen.GenerateInstanceID(displayID)
		app.SetInstanceID(instanceID)
		app.SetDisplayID(displayID)
		task.SetInstanceID(instanceID)
		task.SetDisplayID(displayID)
	}

	if !o.apps.Add(app) {
		item.Fail(ErrCodeGeneral, "Already running instanceId")
		return
	}

	item.app = app
	item.SetStage(StageMemoryCheck)
}

func (o *Orchestrator) memoryCheck(item *LaunchingItem) {
	app, wasExisting := item.app, item.existing

	ok, err := o.memory.CanLaunch(item)
	if err != nil {
		if app != nil && !wasExisting {
			o.apps.RemoveByObject(app)
		}
		item.Fail(ErrCodeLaunch, err.Error())
		return
	}
	if !ok {
		// Suspended: the checker owns the resume.
		return
	}
	if item.Stage() != StageMemoryCheck {
		// Redirected back through prelaunch. The instance minted for the
		// original target never launched; take it back out.
		if app != nil && !wasExisting {
			o.apps.RemoveByObject(app)
		}
		return
	}
	item.SetStage(StageLaunch)
}

// launch drives the instance. Existing instances get a relaunch (possibly
// the registered fast-path); fresh ones enter LAUNCHING or PRELOADING and go
// to the launcher backend.
func (o *Orchestrator) launch(item *LaunchingItem) {
	task := item.Task()
	app := item.app

	if item.existing {
		if err := app.Relaunch(task); err != nil {
			item.Fail(ErrCodeLaunch, err.Error())
			return
		}
		item.SetStage(StageDone)
		return
	}

	if item.Preload() != "" {
		app.SetLifeStatus(StatusPreloading)
	} else {
		app.SetLifeStatus(StatusLaunching)
	}

	if err := app.Launch(task); err != nil {
		// The instance never ran; take it back out of the registry.
		o.apps.RemoveByObject(app)
		item.Fail(ErrCodeLaunch, err.Error())
		return
	}
	item.SetStage(StageDone)
}

// finish delivers the stored return payload (or the error value) to the
// original caller.
func (o *Orchestrator) finish(item *LaunchingItem) {
	task := item.Task()

	if item.ErrCode() != 0 {
		if m := o.svc.Metrics; m != nil {
			m.LaunchesTotal.WithLabelValues("error").Inc()
		}
		task.ReplyError(item.ErrCode(), item.ErrText())
		return
	}

	if m := o.svc.Metrics; m != nil {
		m.LaunchesTotal.WithLabelValues("ok").Inc()
	}
	extra := item.ReturnPayload()
	if item.IsRedirected() {
		if extra == nil {
			extra = make(map[string]any)
		}
		extra["requestedAppId"] = item.RequestedAppID()
	}
	task.Reply(extra)
}

// Pause requests a transition to PAUSED.
func (o *Orchestrator) Pause(task *LunaTask) {
	o.mu.Lock()
	defer o.mu.Unlock()

	app := o.apps.GetByLunaTask(task)
	if app == nil {
		task.ReplyError(ErrCodeGeneral, "The app is not running")
		return
	}
	if err := app.Pause(task); err != nil {
		task.ReplyError(ErrCodeGeneral, err.Error())
		return
	}
	task.Reply(nil)
}

// Close requests cooperative termination of a live instance.
func (o *Orchestrator) Close(task *LunaTask) {
	o.mu.Lock()
	defer o.mu.Unlock()

	app := o.apps.GetByLunaTask(task)
	if app == nil {
		task.ReplyError(ErrCodeGeneral, "The app is not running")
		return
	}
	if err := app.Close(task); err != nil {
		task.ReplyError(ErrCodeGeneral, err.Error())
		return
	}
	task.Reply(nil)
}

// RegisterApp binds the task's response handle as the app's event channel.
// The channel stays open; the "registered" event is its first message.
func (o *Orchestrator) RegisterApp(task *LunaTask) {
	o.mu.Lock()
	defer o.mu.Unlock()

	app := o.apps.GetByLunaTask(task)
	if app == nil {
		task.ReplyError(ErrCodeGeneral, "The app is not running")
		return
	}
	app.RegisterApp(task)
}

// GetAppLifeStatus replies with the instance's current status.
func (o *Orchestrator) GetAppLifeStatus(task *LunaTask) {
	o.mu.Lock()
	defer o.mu.Unlock()

	app := o.apps.GetByLunaTask(task)
	if app == nil {
		task.ReplyError(ErrCodeGeneral, "The app is not running")
		return
	}
	task.Reply(map[string]any{
		"status":    app.LifeStatus().String(),
		"displayId": app.DisplayID(),
	})
}

// Running returns the current running list.
func (o *Orchestrator) Running(devmodeOnly bool) []map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.apps.ToJSON(devmodeOnly)
}

// IsTransition reports whether any instance is mid-transition.
func (o *Orchestrator) IsTransition(devmodeOnly bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.apps.IsTransition(devmodeOnly)
}

// OnProcessExited removes the instance owning a dead process. The removal
// path walks the instance to STOP and republishes the running list.
func (o *Orchestrator) OnProcessExited(processID int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.apps.RemoveByPID(processID)
}

// OnStatusReport applies a launcher-reported status change to the instance
// owning the token, clearing the token on receipt.
func (o *Orchestrator) OnStatusReport(token int64, status LifeStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	app := o.apps.GetByToken(token)
	if app == nil {
		return false
	}
	app.SetToken(0)
	return app.SetLifeStatus(status)
}
