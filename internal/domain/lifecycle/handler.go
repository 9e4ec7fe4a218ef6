package lifecycle

import "github.com/webOS-ports/sam/internal/domain/catalog"

// LifeHandler is the launcher backend for one app type. Launch, Relaunch,
// Pause and Term carry the client task and must eventually drive the instance
// out of its current state; Kill is fire-and-forget and idempotent.
type LifeHandler interface {
	Launch(app *RunningApp, task *LunaTask) error
	Relaunch(app *RunningApp, task *LunaTask) error
	Pause(app *RunningApp, task *LunaTask) error
	Term(app *RunningApp, task *LunaTask) error
	Kill(app *RunningApp) error
}

// HandlerMux selects a launcher backend from the app descriptor's type.
// Selection is pure: it depends only on the descriptor and holds no state.
type HandlerMux struct {
	native LifeHandler
	web    LifeHandler
	qml    LifeHandler
}

// NewHandlerMux wires one backend per app type.
func NewHandlerMux(native, web, qml LifeHandler) *HandlerMux {
	return &HandlerMux{native: native, web: web, qml: qml}
}

// For returns the backend responsible for the app.
func (m *HandlerMux) For(app *RunningApp) LifeHandler {
	switch app.LaunchPoint().AppDesc().Type {
	case catalog.AppTypeWeb:
		return m.web
	case catalog.AppTypeQML:
		return m.qml
	default:
		return m.native
	}
}
