package lifecycle

import (
	"go.uber.org/zap"

	"github.com/webOS-ports/sam/internal/domain/catalog"
)

// RunningAppList is the registry of live instances: an insertion-ordered
// mapping from instanceId to RunningApp. The registry exclusively owns every
// RunningApp; lookups hand out non-owning references valid for the span of
// one operation. Secondary lookups are linear scans — cardinality is tens.
type RunningAppList struct {
	svc *Services

	// Registry mutations serialize on the dispatch goroutine; the list
	// itself carries no lock. See DESIGN.md.
	order []*RunningApp
	index map[string]*RunningApp
}

// NewRunningAppList creates an empty registry.
func NewRunningAppList(svc *Services) *RunningAppList {
	return &RunningAppList{
		svc:   svc,
		index: make(map[string]*RunningApp),
	}
}

// CreateByLunaTask builds a RunningApp for a client task. The launch point id
// wins over the appId fallback ("<appId>_default"). The resolved identity is
// written back onto the task so downstream code sees it fully resolved.
// Creation does not add to the registry.
func (l *RunningAppList) CreateByLunaTask(task *LunaTask) *RunningApp {
	if task == nil {
		return nil
	}

	var app *RunningApp
	if task.LaunchPointID() != "" {
		app = l.CreateByLaunchPointID(task.LaunchPointID())
	} else if task.AppID() != "" {
		app = l.CreateByAppID(task.AppID())
	}
	if app == nil {
		return nil
	}

	app.ApplyLaunchRequest(task.Params())
	app.SetInstanceID(task.InstanceID())
	app.SetDisplayID(task.DisplayID())

	task.SetLaunchPointID(app.LaunchPointID())
	task.SetAppID(app.AppID())
	return app
}

// CreateByJSON rehydrates an instance from a snapshot object. All four keys
// are required.
func (l *RunningAppList) CreateByJSON(snapshot map[string]any) *RunningApp {
	launchPointID, ok1 := snapshot["launchPointId"].(string)
	instanceID, ok2 := snapshot["instanceId"].(string)
	processID, ok3 := toInt(snapshot["processId"])
	displayID, ok4 := toInt(snapshot["displayId"])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}

	app := l.CreateByLaunchPointID(launchPointID)
	if app == nil {
		return nil
	}
	app.SetInstanceID(instanceID)
	app.SetProcessID(processID)
	app.SetDisplayID(displayID)
	return app
}

// CreateByAppID builds an instance on the app's default launch point.
func (l *RunningAppList) CreateByAppID(appID string) *RunningApp {
	return l.CreateByLaunchPointID(catalog.DefaultLaunchPointID(appID))
}

// CreateByLaunchPointID builds an instance on a cataloged launch point.
func (l *RunningAppList) CreateByLaunchPointID(launchPointID string) *RunningApp {
	launchPoint, ok := l.svc.Catalog.GetByLaunchPointID(launchPointID)
	if !ok {
		l.svc.Logger.Warn("cannot find proper launch point",
			zap.String("launchPointId", launchPointID))
		return nil
	}
	return NewRunningApp(l.svc, launchPoint)
}

// GetByLunaTask resolves a task against the registry, accepting whatever
// partial identity the client supplied, and writes the resolved identity
// back onto the task. On platforms without multi-instance support the
// display is coerced to "any" so per-appId queries return the first match.
func (l *RunningAppList) GetByLunaTask(task *LunaTask) *RunningApp {
	if task == nil {
		return nil
	}

	displayID := task.DisplayID()
	if !l.svc.Config.Lifecycle.MultiInstance() {
		displayID = -1
	}

	app := l.GetByIds(task.InstanceID(), task.LaunchPointID(), task.AppID(), displayID)
	if app != nil {
		task.SetInstanceID(app.InstanceID())
		task.SetLaunchPointID(app.LaunchPointID())
		task.SetAppID(app.AppID())
	}
	return app
}

// GetByIds looks up with a priority-then-validate discipline: the primary key
// is instanceId, then launchPointId, then appId; the hit is then validated
// against every non-empty key and a concrete displayId. A partial identity
// never returns a wrong match just because one identifier happened to hit.
func (l *RunningAppList) GetByIds(instanceID, launchPointID, appID string, displayID int) *RunningApp {
	var app *RunningApp
	switch {
	case instanceID != "":
		app = l.GetByInstanceID(instanceID)
	case launchPointID != "":
		app = l.GetByLaunchPointID(launchPointID, displayID)
	case appID != "":
		app = l.GetByAppID(appID, displayID)
	}
	if app == nil {
		return nil
	}

	if instanceID != "" && instanceID != app.InstanceID() {
		return nil
	}
	if launchPointID != "" && launchPointID != app.LaunchPointID() {
		return nil
	}
	if appID != "" && appID != app.AppID() {
		return nil
	}
	if displayID != -1 && displayID != app.DisplayID() {
		return nil
	}
	return app
}

// GetByInstanceID looks up the primary index.
func (l *RunningAppList) GetByInstanceID(instanceID string) *RunningApp {
	if instanceID == "" {
		return nil
	}
	return l.index[instanceID]
}

// GetByLaunchPointID scans in insertion order; displayId -1 means any.
func (l *RunningAppList) GetByLaunchPointID(launchPointID string, displayID int) *RunningApp {
	for _, app := range l.order {
		if app.LaunchPointID() != launchPointID {
			continue
		}
		if displayID == -1 || app.DisplayID() == displayID {
			return app
		}
	}
	return nil
}

// GetByAppID scans in insertion order; displayId -1 means any.
func (l *RunningAppList) GetByAppID(appID string, displayID int) *RunningApp {
	for _, app := range l.order {
		if app.AppID() != appID {
			continue
		}
		if displayID == -1 || app.DisplayID() == displayID {
			return app
		}
	}
	return nil
}

// GetByPID finds the instance owning a process.
func (l *RunningAppList) GetByPID(processID int) *RunningApp {
	for _, app := range l.order {
		if app.ProcessID() == processID {
			return app
		}
	}
	return nil
}

// GetByWebProcessID finds the instance backed by a renderer process.
func (l *RunningAppList) GetByWebProcessID(webProcessID string) *RunningApp {
	if webProcessID == "" {
		return nil
	}
	for _, app := range l.order {
		if app.WebProcessID() == webProcessID {
			return app
		}
	}
	return nil
}

// GetByToken finds the instance waiting on an outstanding launcher reply.
func (l *RunningAppList) GetByToken(token int64) *RunningApp {
	for _, app := range l.order {
		if app.Token() == token {
			return app
		}
	}
	return nil
}

// Add makes an instance visible. Nil apps, apps without an instance id and
// duplicate instance ids are rejected.
func (l *RunningAppList) Add(app *RunningApp) bool {
	if app == nil {
		return false
	}
	instanceID := app.InstanceID()
	if instanceID == "" {
		return false
	}
	if _, exists := l.index[instanceID]; exists {
		l.svc.Logger.Info("instanceId already exists",
			zap.String("instanceId", instanceID))
		return false
	}

	l.index[instanceID] = app
	l.order = append(l.order, app)
	l.onAdd(app)
	return true
}

// RemoveByObject removes an instance by identity.
func (l *RunningAppList) RemoveByObject(app *RunningApp) bool {
	if app == nil {
		return false
	}
	for i, candidate := range l.order {
		if candidate == app {
			l.removeAt(i)
			return true
		}
	}
	return false
}

// RemoveByInstanceID removes an instance by its primary key.
func (l *RunningAppList) RemoveByInstanceID(instanceID string) bool {
	for i, app := range l.order {
		if app.InstanceID() == instanceID {
			l.removeAt(i)
			return true
		}
	}
	return false
}

// RemoveByPID removes the instance owning a process.
func (l *RunningAppList) RemoveByPID(processID int) bool {
	for i, app := range l.order {
		if app.ProcessID() == processID {
			l.removeAt(i)
			return true
		}
	}
	return false
}

// RemoveAllByType removes every instance of one app type.
func (l *RunningAppList) RemoveAllByType(appType catalog.AppType) {
	l.removeAll(func(app *RunningApp) bool {
		return app.AppType() == appType
	})
}

// RemoveAllByContext removes every instance of one app type tagged with a
// rendering context.
func (l *RunningAppList) RemoveAllByContext(appType catalog.AppType, context int) {
	l.removeAll(func(app *RunningApp) bool {
		return app.AppType() == appType && app.Context() == context
	})
}

// RemoveAllByLaunchPoint removes every instance started from a launch point.
func (l *RunningAppList) RemoveAllByLaunchPoint(launchPoint *catalog.LaunchPoint) {
	l.removeAll(func(app *RunningApp) bool {
		return app.LaunchPoint() == launchPoint
	})
}

// SetContext tags every instance of one app type with a rendering context.
func (l *RunningAppList) SetContext(appType catalog.AppType, context int) {
	for _, app := range l.order {
		if app.AppType() == appType {
			app.SetContext(context)
		}
	}
}

// IsTransition reports whether any instance (optionally devmode apps only)
// is currently in a transition state.
func (l *RunningAppList) IsTransition(devmodeOnly bool) bool {
	for _, app := range l.order {
		if devmodeOnly && !app.LaunchPoint().AppDesc().IsDevmode() {
			continue
		}
		if app.IsTransition() {
			return true
		}
	}
	return false
}

// ToJSON appends one object per qualifying instance, in insertion order.
func (l *RunningAppList) ToJSON(devmodeOnly bool) []map[string]any {
	out := make([]map[string]any, 0, len(l.order))
	for _, app := range l.order {
		if devmodeOnly && !app.LaunchPoint().AppDesc().IsDevmode() {
			continue
		}
		out = append(out, app.ToJSON())
	}
	return out
}

// Size returns the number of live instances.
func (l *RunningAppList) Size() int {
	return len(l.order)
}

// removeAll deletes every matching entry in place. Victims are collected
// first so onRemove never runs against a half-mutated index.
func (l *RunningAppList) removeAll(match func(*RunningApp) bool) {
	kept := l.order[:0]
	var removed []*RunningApp
	for _, app := range l.order {
		if match(app) {
			delete(l.index, app.InstanceID())
			removed = append(removed, app)
		} else {
			kept = append(kept, app)
		}
	}
	l.order = kept
	for _, app := range removed {
		l.onRemove(app)
	}
}

func (l *RunningAppList) removeAt(i int) {
	app := l.order[i]
	l.order = append(l.order[:i], l.order[i+1:]...)
	delete(l.index, app.InstanceID())
	l.onRemove(app)
}

// onAdd publishes the new running list. The instance's status is defined
// before it becomes visible.
func (l *RunningAppList) onAdd(app *RunningApp) {
	l.svc.Logger.Info("instance added",
		zap.String("instanceId", app.InstanceID()),
		zap.String("appId", app.AppID()))
	if m := l.svc.Metrics; m != nil {
		m.AppsRunning.Set(float64(len(l.order)))
	}
	l.svc.Sink.PostRunning(l.ToJSON(false))
}

// onRemove fires exactly once per removed instance: the app walks to STOP
// through the state machine (releasing its timer), then the running list is
// republished.
func (l *RunningAppList) onRemove(app *RunningApp) {
	l.svc.Logger.Info("instance removed",
		zap.String("instanceId", app.InstanceID()),
		zap.String("appId", app.AppID()))
	app.SetLifeStatus(StatusStop)
	app.Stop()
	if m := l.svc.Metrics; m != nil {
		m.AppsRunning.Set(float64(len(l.order)))
	}
	l.svc.Sink.PostRunning(l.ToJSON(false))
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
