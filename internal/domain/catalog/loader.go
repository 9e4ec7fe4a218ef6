package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// appFile is the on-disk shape of one app manifest.
type appFile struct {
	ID           string      `yaml:"id"`
	Type         AppType     `yaml:"type"`
	Title        string      `yaml:"title"`
	Main         string      `yaml:"main"`
	Location     AppLocation `yaml:"location"`
	LaunchPoints []struct {
		ID    string `yaml:"id"`
		Title string `yaml:"title"`
	} `yaml:"launchPoints"`
}

// LoadDir reads every *.yaml manifest under dir into the catalog. Each app
// always gets its default launch point; extra launch points come from the
// manifest's launchPoints list.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read catalog dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		if err := c.loadFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var manifest appFile
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if manifest.ID == "" {
		return fmt.Errorf("manifest %s is missing an app id", path)
	}
	if manifest.Location == "" {
		manifest.Location = AppLocationSystem
	}

	desc := &AppDesc{
		ID:       manifest.ID,
		Type:     manifest.Type,
		Title:    manifest.Title,
		Main:     manifest.Main,
		Location: manifest.Location,
	}
	if _, err := c.AddApp(desc); err != nil {
		return err
	}
	for _, lp := range manifest.LaunchPoints {
		if err := c.Add(NewLaunchPoint(lp.ID, lp.Title, desc)); err != nil {
			return err
		}
	}
	return nil
}
