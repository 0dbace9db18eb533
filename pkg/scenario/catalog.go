package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/jwebster45206/scene-engine/pkg/action"
)

// CatalogSource resolves catalog names. Files named <name>.json in Dir win
// over the builtin catalogs.
type CatalogSource struct {
	Dir string
}

// Load returns the named catalog.
func (c CatalogSource) Load(name string) (*action.Catalog, error) {
	if c.Dir != "" {
		path := filepath.Join(c.Dir, name+".json")
		if _, err := os.Stat(path); err == nil {
			return action.LoadCatalogFile(path)
		}
	}
	if slices.Contains(action.BuiltinNames(), name) {
		return action.Builtin(name)
	}
	return nil, fmt.Errorf("catalog %q not found", name)
}

// Resolve loads the scenario's catalog and checks the starting world against it.
func (c CatalogSource) Resolve(s *Scenario) (*action.Catalog, error) {
	cat, err := c.Load(s.Catalog)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if err := checkWorld(s.World, cat); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return cat, nil
}
