package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webOS-ports/sam/internal/domain/catalog"
)

func addTestApp(t *testing.T, list *RunningAppList, appID, instanceID string, displayID int) *RunningApp {
	t.Helper()
	app := list.CreateByAppID(appID)
	require.NotNil(t, app, "app %s must be in the test catalog", appID)
	app.SetInstanceID(instanceID)
	app.SetDisplayID(displayID)
	require.True(t, list.Add(app))
	return app
}

func TestCreateByLunaTaskPrefersLaunchPointID(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	task, _ := newTask(Request{
		AppID:         "tv.browser",
		LaunchPointID: "tv.menu_default",
		InstanceID:    "inst0",
		DisplayID:     0,
	})
	app := list.CreateByLunaTask(task)

	require.NotNil(t, app)
	assert.Equal(t, "tv.menu", app.AppID())
	// The resolved identity is written back onto the task.
	assert.Equal(t, "tv.menu", task.AppID())
	assert.Equal(t, "tv.menu_default", task.LaunchPointID())
	assert.Equal(t, 0, list.Size(), "creation does not add to the registry")
}

func TestCreateByLunaTaskFallsBackToAppID(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	task, _ := newTask(Request{AppID: "tv.browser"})
	app := list.CreateByLunaTask(task)

	require.NotNil(t, app)
	assert.Equal(t, "tv.browser_default", app.LaunchPointID())
	assert.Equal(t, "tv.browser_default", task.LaunchPointID())
}

func TestCreateByLunaTaskWithNoIdentity(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	task, _ := newTask(Request{})
	assert.Nil(t, list.CreateByLunaTask(task))
	assert.Nil(t, list.CreateByLunaTask(nil))
}

func TestCreateByLunaTaskUnknownLaunchPoint(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	task, _ := newTask(Request{AppID: "no.such.app"})
	assert.Nil(t, list.CreateByLunaTask(task))
}

func TestCreateByJSON(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	app := list.CreateByJSON(map[string]any{
		"launchPointId": "tv.menu_default",
		"instanceId":    "inst7",
		"processId":     float64(812), // decoded JSON numbers arrive as float64
		"displayId":     float64(1),
	})

	require.NotNil(t, app)
	assert.Equal(t, "inst7", app.InstanceID())
	assert.Equal(t, 812, app.ProcessID())
	assert.Equal(t, 1, app.DisplayID())
}

func TestCreateByJSONMissingKey(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	snapshots := []map[string]any{
		{"instanceId": "x", "processId": 1, "displayId": 0},
		{"launchPointId": "tv.menu_default", "processId": 1, "displayId": 0},
		{"launchPointId": "tv.menu_default", "instanceId": "x", "displayId": 0},
		{"launchPointId": "tv.menu_default", "instanceId": "x", "processId": 1},
	}
	for i, snapshot := range snapshots {
		assert.Nil(t, list.CreateByJSON(snapshot), "snapshot %d", i)
	}
}

func TestAddRejections(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	assert.False(t, list.Add(nil))

	noID := list.CreateByAppID("tv.menu")
	assert.False(t, list.Add(noID), "empty instanceId is rejected")

	addTestApp(t, list, "tv.menu", "inst0", 0)
	dup := list.CreateByAppID("tv.browser")
	dup.SetInstanceID("inst0")
	assert.False(t, list.Add(dup), "duplicate instanceId is rejected")
	assert.Equal(t, 1, list.Size())
}

func TestAddPublishesRunning(t *testing.T) {
	sink := &recordingSink{}
	svc := testServices(svcOptions{sink: sink})
	list := NewRunningAppList(svc)

	addTestApp(t, list, "tv.menu", "inst0", 0)
	assert.Equal(t, 1, sink.RunningPosts())
}

func TestRemoveRoundTrip(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	app := addTestApp(t, list, "tv.menu", "inst0", 0)
	require.True(t, list.RemoveByInstanceID("inst0"))

	assert.Nil(t, list.GetByInstanceID("inst0"))
	assert.Equal(t, 0, list.Size())
	assert.Equal(t, StatusStop, app.LifeStatus(), "removal walks the app to STOP")
	assert.False(t, list.RemoveByInstanceID("inst0"), "second removal finds nothing")
}

func TestRemoveByPID(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	app := addTestApp(t, list, "tv.menu", "inst0", 0)
	app.SetProcessID(4120)

	require.True(t, list.RemoveByPID(4120))
	assert.Equal(t, 0, list.Size())
}

func TestRemoveByObject(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	app := addTestApp(t, list, "tv.menu", "inst0", 0)
	other := NewRunningApp(svc, app.LaunchPoint())

	assert.False(t, list.RemoveByObject(other))
	assert.True(t, list.RemoveByObject(app))
	assert.Equal(t, 0, list.Size())
}

func TestGetByIdsPriorityAndValidation(t *testing.T) {
	svc := testServices(svcOptions{multiInstance: true})
	list := NewRunningAppList(svc)

	addTestApp(t, list, "tv.menu", "inst0", 0)
	addTestApp(t, list, "tv.browser", "inst1", 1)

	// Primary key priority: instanceId wins.
	assert.Equal(t, "inst0", list.GetByIds("inst0", "", "", -1).InstanceID())

	// Partial identities resolve.
	assert.Equal(t, "inst1", list.GetByIds("", "tv.browser_default", "", -1).InstanceID())
	assert.Equal(t, "inst1", list.GetByIds("", "", "tv.browser", -1).InstanceID())
	assert.Equal(t, "inst1", list.GetByIds("", "", "tv.browser", 1).InstanceID())

	// A hit on the primary key is still rejected when another field disagrees.
	assert.Nil(t, list.GetByIds("inst0", "", "tv.browser", -1))
	assert.Nil(t, list.GetByIds("inst0", "tv.browser_default", "", -1))
	assert.Nil(t, list.GetByIds("", "", "tv.browser", 0))
	assert.Nil(t, list.GetByIds("", "", "", -1))
	assert.Nil(t, list.GetByIds("ghost", "", "", -1))
}

func TestGetByLunaTaskCoercesDisplayWithoutMultiInstance(t *testing.T) {
	svc := testServices(svcOptions{multiInstance: false})
	list := NewRunningAppList(svc)

	addTestApp(t, list, "tv.menu", "inst0", 0)

	// The client asks for display 3; without multi-instance support the
	// display is coerced to "any" and the per-appId query still matches.
	task, _ := newTask(Request{AppID: "tv.menu", DisplayID: 3})
	app := list.GetByLunaTask(task)

	require.NotNil(t, app)
	assert.Equal(t, "inst0", task.InstanceID(), "resolved identity lands on the task")
}

func TestGetByLunaTaskHonorsDisplayWithMultiInstance(t *testing.T) {
	svc := testServices(svcOptions{multiInstance: true})
	list := NewRunningAppList(svc)

	addTestApp(t, list, "tv.menu", "inst0", 0)

	task, _ := newTask(Request{AppID: "tv.menu", DisplayID: 3})
	assert.Nil(t, list.GetByLunaTask(task))
}

func TestSecondaryLookups(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	app := addTestApp(t, list, "tv.browser", "inst0", 0)
	app.SetProcessID(900)
	app.SetWebProcessID("web-12")
	app.SetToken(77)

	assert.Equal(t, app, list.GetByPID(900))
	assert.Equal(t, app, list.GetByWebProcessID("web-12"))
	assert.Equal(t, app, list.GetByToken(77))
	assert.Nil(t, list.GetByWebProcessID(""))
	assert.Nil(t, list.GetByPID(901))
}

// S6: cascade removal by type and context removes exactly the matching
// entries, firing onRemove once each.
func TestRemoveAllByContext(t *testing.T) {
	sink := &recordingSink{}
	svc := testServices(svcOptions{sink: sink})
	list := NewRunningAppList(svc)

	native1 := addTestApp(t, list, "tv.menu", "inst0", 0)
	native2 := addTestApp(t, list, "dev.sampler", "inst1", 0)
	web1 := addTestApp(t, list, "tv.browser", "inst2", 0)
	native1.SetContext(1)
	native2.SetContext(2)
	web1.SetContext(1)
	postsBefore := sink.RunningPosts()

	list.RemoveAllByContext(catalog.AppTypeNative, 1)

	assert.Equal(t, 2, list.Size())
	assert.Nil(t, list.GetByInstanceID("inst0"))
	assert.NotNil(t, list.GetByInstanceID("inst1"))
	assert.NotNil(t, list.GetByInstanceID("inst2"))
	assert.Equal(t, StatusStop, native1.LifeStatus())
	assert.Equal(t, postsBefore+1, sink.RunningPosts(), "onRemove fires once")
}

func TestRemoveAllByType(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	addTestApp(t, list, "tv.menu", "inst0", 0)
	addTestApp(t, list, "dev.sampler", "inst1", 0)
	addTestApp(t, list, "tv.browser", "inst2", 0)

	list.RemoveAllByType(catalog.AppTypeNative)

	assert.Equal(t, 1, list.Size())
	assert.NotNil(t, list.GetByInstanceID("inst2"))
}

func TestRemoveAllByLaunchPoint(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	app := addTestApp(t, list, "tv.menu", "inst0", 0)
	addTestApp(t, list, "tv.browser", "inst1", 0)

	list.RemoveAllByLaunchPoint(app.LaunchPoint())

	assert.Equal(t, 1, list.Size())
	assert.Nil(t, list.GetByInstanceID("inst0"))
}

func TestSetContext(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	native := addTestApp(t, list, "tv.menu", "inst0", 0)
	web := addTestApp(t, list, "tv.browser", "inst1", 0)

	list.SetContext(catalog.AppTypeNative, 9)

	assert.Equal(t, 9, native.Context())
	assert.Equal(t, 0, web.Context())
}

func TestIsTransition(t *testing.T) {
	svc := testServices(svcOptions{transitionTimeout: time.Hour})
	list := NewRunningAppList(svc)

	system := addTestApp(t, list, "tv.menu", "inst0", 0)
	devmode := addTestApp(t, list, "dev.sampler", "inst1", 0)

	assert.False(t, list.IsTransition(false))

	require.True(t, system.SetLifeStatus(StatusLaunching))
	assert.True(t, list.IsTransition(false))
	assert.False(t, list.IsTransition(true), "devmode-only scan skips system apps")

	require.True(t, devmode.SetLifeStatus(StatusLaunching))
	assert.True(t, list.IsTransition(true))

	system.Stop()
	devmode.Stop()
}

func TestToJSONInsertionOrder(t *testing.T) {
	svc := testServices(svcOptions{})
	list := NewRunningAppList(svc)

	addTestApp(t, list, "tv.browser", "inst0", 0)
	addTestApp(t, list, "tv.menu", "inst1", 0)
	addTestApp(t, list, "dev.sampler", "inst2", 0)

	all := list.ToJSON(false)
	require.Len(t, all, 3)
	assert.Equal(t, "inst0", all[0]["instanceId"])
	assert.Equal(t, "inst1", all[1]["instanceId"])
	assert.Equal(t, "inst2", all[2]["instanceId"])

	devmode := list.ToJSON(true)
	require.Len(t, devmode, 1)
	assert.Equal(t, "inst2", devmode[0]["instanceId"])
}
