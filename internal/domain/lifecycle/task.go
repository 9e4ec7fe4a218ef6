package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCode classifies a request failure. Errors are values carried on the
// task and returned to the client as {returnValue:false, errorCode, errorText};
// nothing in the core panics across instances.
type ErrCode int

const (
	// ErrCodeGeneral covers duplicate registration, missing catalog entries
	// and duplicate instance ids.
	ErrCodeGeneral ErrCode = 1
	// ErrCodeInvalidParam means the task carried neither appId nor launchPointId.
	ErrCodeInvalidParam ErrCode = 2
	// ErrCodeLaunch means the launcher refused or the registration channel
	// send failed.
	ErrCodeLaunch ErrCode = 11
)

// Responder delivers a payload back to the requesting client. The handle may
// be held open past the originating request (registration channel).
type Responder interface {
	Respond(payload map[string]any) error
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(payload map[string]any) error

func (f ResponderFunc) Respond(payload map[string]any) error { return f(payload) }

// Request carries the client-supplied fields of an inbound call.
type Request struct {
	AppID         string         `json:"id"`
	LaunchPointID string         `json:"launchPointId"`
	InstanceID    string         `json:"instanceId"`
	DisplayID     int            `json:"displayId"`
	Params        map[string]any `json:"params"`
	Reason        string         `json:"reason"`
	Caller        string         `json:"caller"`
}

// LunaTask is one in-flight client request. The task owns the response
// callback; exactly one reply is delivered per task.
type LunaTask struct {
	uid       string
	ctx       context.Context
	createdAt time.Time

	mu            sync.Mutex
	appID         string
	launchPointID string
	instanceID    string
	displayID     int
	params        map[string]any
	reason        string
	caller        string
	token         int64

	responder Responder
	responded bool
}

// NewLunaTask wraps a request and its response callback.
func NewLunaTask(ctx context.Context, req Request, responder Responder) *LunaTask {
	if ctx == nil {
		ctx = context.Background()
	}
	return &LunaTask{
		uid:           uuid.New().String(),
		ctx:           ctx,
		createdAt:     time.Now(),
		appID:         req.AppID,
		launchPointID: req.LaunchPointID,
		instanceID:    req.InstanceID,
		displayID:     req.DisplayID,
		params:        req.Params,
		reason:        req.Reason,
		caller:        req.Caller,
		responder:     responder,
	}
}

func (t *LunaTask) UID() string              { return t.uid }
func (t *LunaTask) Context() context.Context { return t.ctx }
func (t *LunaTask) CreatedAt() time.Time     { return t.createdAt }

func (t *LunaTask) AppID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appID
}

func (t *LunaTask) SetAppID(appID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appID = appID
}

func (t *LunaTask) LaunchPointID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.launchPointID
}

func (t *LunaTask) SetLaunchPointID(launchPointID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.launchPointID = launchPointID
}

func (t *LunaTask) InstanceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.instanceID
}

func (t *LunaTask) SetInstanceID(instanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.instanceID = instanceID
}

func (t *LunaTask) DisplayID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayID
}

func (t *LunaTask) SetDisplayID(displayID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.displayID = displayID
}

func (t *LunaTask) Params() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

func (t *LunaTask) SetParams(params map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.params = params
}

func (t *LunaTask) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reason == "" {
		return "normal"
	}
	return t.reason
}

func (t *LunaTask) Caller() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.caller
}

func (t *LunaTask) Token() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

func (t *LunaTask) SetToken(token int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

// Responder exposes the underlying response handle so it can be held open as
// a registration channel.
func (t *LunaTask) Responder() Responder { return t.responder }

// Reply completes the task successfully. The resolved identity travels with
// the response; extra keys are merged in. Only the first reply is delivered.
func (t *LunaTask) Reply(extra map[string]any) error {
	t.mu.Lock()
	if t.responded || t.responder == nil {
		t.mu.Unlock()
		return nil
	}
	t.responded = true
	payload := map[string]any{
		"returnValue": true,
	}
	if t.appID != "" {
		payload["appId"] = t.appID
	}
	if t.launchPointID != "" {
		payload["launchPointId"] = t.launchPointID
	}
	if t.instanceID != "" {
		payload["instanceId"] = t.instanceID
	}
	responder := t.responder
	t.mu.Unlock()

	for k, v := range extra {
		payload[k] = v
	}
	return responder.Respond(payload)
}

// ReplyError completes the task with an error value.
func (t *LunaTask) ReplyError(code ErrCode, text string) error {
	t.mu.Lock()
	if t.responded || t.responder == nil {
		t.mu.Unlock()
		return nil
	}
	t.responded = true
	responder := t.responder
	t.mu.Unlock()

	return responder.Respond(map[string]any{
		"returnValue": false,
		"errorCode":   int(code),
		"errorText":   text,
	})
}

// Responded reports whether a reply was already delivered.
func (t *LunaTask) Responded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.responded
}
