package lifecycle

import (
	"time"

	"github.com/google/uuid"
)

// LaunchStage is the position of an in-flight launch in the orchestrator
// pipeline.
type LaunchStage int

const (
	StageNone LaunchStage = iota
	StagePrelaunch
	StageMemoryCheck
	StageLaunch
	StageDone
)

func (s LaunchStage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StagePrelaunch:
		return "prelaunch"
	case StageMemoryCheck:
		return "memory_check"
	case StageLaunch:
		return "launch"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// LaunchingItem is the ephemeral state of one launch moving through the
// pipeline. It lives from request arrival until the DONE stage delivers the
// stored return payload to the original caller.
type LaunchingItem struct {
	uid            string
	task           *LunaTask
	appID          string
	requestedAppID string
	redirected     bool
	stage          LaunchStage
	subStage       int
	callerID       string
	showSplash     bool
	showSpinner    bool
	keepAlive      bool
	preload        string
	params         map[string]any
	app            *RunningApp
	existing       bool
	returnToken    int64
	returnPayload  map[string]any
	errCode        ErrCode
	errText        string
	startTime      time.Time
}

// NewLaunchingItem wraps a launch task. Launch-policy flags are read off the
// request params.
func NewLaunchingItem(task *LunaTask) *LaunchingItem {
	item := &LaunchingItem{
		uid:            uuid.New().String(),
		task:           task,
		appID:          task.AppID(),
		requestedAppID: task.AppID(),
		stage:          StageNone,
		callerID:       task.Caller(),
		showSplash:     true,
		showSpinner:    true,
		params:         task.Params(),
		startTime:      time.Now(),
	}
	if v, ok := item.params["noSplash"].(bool); ok {
		item.showSplash = !v
	}
	if v, ok := item.params["spinner"].(bool); ok {
		item.showSpinner = v
	}
	if v, ok := item.params["keepAlive"].(bool); ok {
		item.keepAlive = v
	}
	if v, ok := item.params["preload"].(string); ok {
		item.preload = v
	}
	return item
}

func (i *LaunchingItem) UID() string            { return i.uid }
func (i *LaunchingItem) Task() *LunaTask        { return i.task }
func (i *LaunchingItem) AppID() string          { return i.appID }
func (i *LaunchingItem) RequestedAppID() string { return i.requestedAppID }
func (i *LaunchingItem) IsRedirected() bool     { return i.redirected }
func (i *LaunchingItem) Stage() LaunchStage     { return i.stage }
func (i *LaunchingItem) SubStage() int          { return i.subStage }
func (i *LaunchingItem) CallerID() string       { return i.callerID }
func (i *LaunchingItem) ShowSplash() bool       { return i.showSplash }
func (i *LaunchingItem) ShowSpinner() bool      { return i.showSpinner }
func (i *LaunchingItem) KeepAlive() bool        { return i.keepAlive }
func (i *LaunchingItem) Preload() string        { return i.preload }
func (i *LaunchingItem) Params() map[string]any { return i.params }
func (i *LaunchingItem) App() *RunningApp       { return i.app }
func (i *LaunchingItem) StartTime() time.Time   { return i.startTime }

func (i *LaunchingItem) SetStage(stage LaunchStage) { i.stage = stage }
func (i *LaunchingItem) SetSubStage(subStage int)   { i.subStage = subStage }

func (i *LaunchingItem) ReturnToken() int64         { return i.returnToken }
func (i *LaunchingItem) SetReturnToken(token int64) { i.returnToken = token }
func (i *LaunchingItem) ResetReturnToken()          { i.returnToken = 0 }

func (i *LaunchingItem) ReturnPayload() map[string]any     { return i.returnPayload }
func (i *LaunchingItem) SetReturnPayload(p map[string]any) { i.returnPayload = p }

func (i *LaunchingItem) ErrCode() ErrCode { return i.errCode }
func (i *LaunchingItem) ErrText() string  { return i.errText }

// Fail records an error value and short-circuits the pipeline to DONE.
func (i *LaunchingItem) Fail(code ErrCode, text string) {
	i.errCode = code
	i.errText = text
	i.stage = StageDone
}

// SetRedirection retargets the launch before the LAUNCH stage: the target
// appId changes, params are replaced, and the item is marked redirected. The
// original requestedAppId is preserved for the client's final response.
func (i *LaunchingItem) SetRedirection(targetAppID string, params map[string]any) bool {
	if i.stage >= StageLaunch {
		return false
	}
	i.appID = targetAppID
	i.params = params
	i.redirected = true
	i.app = nil
	i.existing = false
	i.stage = StageNone

	i.task.SetAppID(targetAppID)
	i.task.SetLaunchPointID("")
	i.task.SetInstanceID("")
	i.task.SetParams(params)
	return true
}
