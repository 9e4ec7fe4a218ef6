// Package catalog keeps the launch point table: every way an installed
// application can be started. The catalog outlives every running instance;
// running apps hold strong references to launch points, the catalog never
// looks back at running apps.
package catalog

import (
	"fmt"
	"sync"
)

// AppType classifies an application by its launcher backend.
type AppType string

const (
	AppTypeNative AppType = "native"
	AppTypeWeb    AppType = "web"
	AppTypeQML    AppType = "qml"
)

// AppLocation identifies where an app is installed.
type AppLocation string

const (
	AppLocationSystem  AppLocation = "system"
	AppLocationDevmode AppLocation = "devmode"
)

// AppDesc describes one installed application.
type AppDesc struct {
	ID       string      `yaml:"id"`
	Type     AppType     `yaml:"type"`
	Title    string      `yaml:"title"`
	Main     string      `yaml:"main"`
	Location AppLocation `yaml:"location"`
}

// IsDevmode reports whether the app was side-loaded through devmode.
func (d *AppDesc) IsDevmode() bool {
	return d.Location == AppLocationDevmode
}

// LaunchPoint identifies "this app, launched this way".
type LaunchPoint struct {
	id      string
	title   string
	appDesc *AppDesc
}

// NewLaunchPoint creates a launch point for an app descriptor.
func NewLaunchPoint(id, title string, desc *AppDesc) *LaunchPoint {
	return &LaunchPoint{id: id, title: title, appDesc: desc}
}

func (lp *LaunchPoint) ID() string        { return lp.id }
func (lp *LaunchPoint) Title() string     { return lp.title }
func (lp *LaunchPoint) AppDesc() *AppDesc { return lp.appDesc }
func (lp *LaunchPoint) AppID() string     { return lp.appDesc.ID }

// DefaultLaunchPointID returns the canonical launch point id for an app.
func DefaultLaunchPointID(appID string) string {
	return appID + "_default"
}

// Catalog is the launch point table, keyed by launch point id.
type Catalog struct {
	mu     sync.RWMutex
	points map[string]*LaunchPoint
	order  []string
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		points: make(map[string]*LaunchPoint),
	}
}

// Add registers a launch point. Duplicate ids are rejected.
func (c *Catalog) Add(lp *LaunchPoint) error {
	if lp == nil || lp.id == "" {
		return fmt.Errorf("launch point id cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.points[lp.id]; exists {
		return fmt.Errorf("launch point already exists: %s", lp.id)
	}
	c.points[lp.id] = lp
	c.order = append(c.order, lp.id)
	return nil
}

// AddApp registers an app descriptor under its default launch point.
func (c *Catalog) AddApp(desc *AppDesc) (*LaunchPoint, error) {
	lp := NewLaunchPoint(DefaultLaunchPointID(desc.ID), desc.Title, desc)
	if err := c.Add(lp); err != nil {
		return nil, err
	}
	return lp, nil
}

// GetByLaunchPointID looks up a launch point.
func (c *Catalog) GetByLaunchPointID(launchPointID string) (*LaunchPoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lp, ok := c.points[launchPointID]
	return lp, ok
}

// GetByAppID looks up the default launch point for an app.
func (c *Catalog) GetByAppID(appID string) (*LaunchPoint, bool) {
	return c.GetByLaunchPointID(DefaultLaunchPointID(appID))
}

// Remove drops a launch point from the table.
func (c *Catalog) Remove(launchPointID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.points[launchPointID]; !ok {
		return false
	}
	delete(c.points, launchPointID)
	for i, lpid := range c.order {
		if lpid == launchPointID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns launch points in registration order.
func (c *Catalog) List() []*LaunchPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*LaunchPoint, 0, len(c.order))
	for _, lpid := range c.order {
		out = append(out, c.points[lpid])
	}
	return out
}

// Size returns the number of launch points.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.points)
}
