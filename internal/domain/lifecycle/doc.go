// Package lifecycle is the core of the application lifecycle manager.
//
// It tracks every running application instance on the device, mediates
// launch/relaunch/pause/close requests, enforces the lifecycle state machine
// and drives time-bounded transitions to completion.
//
// Components:
//   - RunningApp: one instance's state machine, killing timer and
//     registration channel
//   - RunningAppList: the registry of live instances (sole owner)
//   - Orchestrator: the launch pipeline (prelaunch, memory check, launch)
//   - LunaTask: an in-flight client request with its response callback
//   - LifeHandler / HandlerMux: launcher backend selection by app type
//
// State machine:
//   - Steady states: stop, preloaded, splashed, foreground, background, paused
//   - Transition states: preloading, splashing, launching, relaunching,
//     pausing, closing — each guarded by the killing timer, which kills the
//     instance and rearms on every missed deadline
//   - closing may always be entered; any other transition-during-transition
//     is refused
//
// Concurrency:
//   - All mutating operations serialize on the orchestrator's dispatch lock
//   - RunningApp carries its own mutex for the killing-timer goroutine
//   - Observer events fire synchronously, in state-transition order
package lifecycle
