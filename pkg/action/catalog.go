// Package action holds the action catalog and the deterministic validator
// that applies character actions to scene state.
package action

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/conditionals"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Kind is an action identifier such as CALL_POLICE.
type Kind = state.ActionKind

// ParamCopy copies an input parameter of the action into a world field.
type ParamCopy struct {
	Param   string `json:"param"`
	Field   string `json:"field"`
	Default any    `json:"default,omitempty"`
}

// Definition describes one action kind.
type Definition struct {
	Kind          Kind                     `json:"kind"`
	Description   string                   `json:"description"`
	MaxUses       int                      `json:"max_uses,omitempty"` // 0 means unlimited
	Preconditions []conditionals.Condition `json:"preconditions,omitempty"`
	// Effects map world fields to values. Field names may contain {actor}.
	Effects          map[string]any `json:"effects,omitempty"`
	CopyParams       []ParamCopy    `json:"copy_params,omitempty"`
	Narration        string         `json:"narration"`                // template with {actor}, {target} and param placeholders
	NarrationHint    string         `json:"narration_hint,omitempty"` // verb phrase used when an action is forced
	ActorRestriction string         `json:"actor_restriction,omitempty"`
}

// KeywordRule remaps free-text action names containing Keyword onto Kind.
type KeywordRule struct {
	Keyword string `json:"keyword"`
	Kind    Kind   `json:"kind"`
}

// Catalog is an immutable registry of actions plus the tables the policies
// read. A catalog may be shared by any number of scenes.
type Catalog struct {
	Name               string        `json:"name"`
	Description        string        `json:"description,omitempty"`
	DeltaFields        []string      `json:"delta_fields"`
	ResolutionSignals  []string      `json:"resolution_signals"`
	ResolutionPriority []Kind        `json:"resolution_priority,omitempty"`
	Keywords           []KeywordRule `json:"keywords,omitempty"`
	Actions            []Definition  `json:"actions"`

	index map[Kind]int
}

//go:embed catalogs/*.json
var builtinFS embed.FS

// BuiltinNames lists the catalogs compiled into the binary.
func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir("catalogs")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	slices.Sort(names)
	return names
}

// Builtin loads a compiled-in catalog by name.
func Builtin(name string) (*Catalog, error) {
	data, err := builtinFS.ReadFile(path.Join("catalogs", name+".json"))
	if err != nil {
		return nil, fmt.Errorf("unknown builtin catalog %q", name)
	}
	return LoadCatalog(bytes.NewReader(data))
}

// LoadCatalogFile reads and validates a catalog from disk.
func LoadCatalogFile(p string) (*Catalog, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog decodes and validates a catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	normalizeNumbers(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks catalog consistency and builds the lookup index.
func (c *Catalog) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("catalog is missing a name")
	}
	if len(c.Actions) == 0 {
		return fmt.Errorf("catalog %s has no actions", c.Name)
	}
	c.index = make(map[Kind]int, len(c.Actions))
	for i, d := range c.Actions {
		if d.Kind == "" {
			return fmt.Errorf("catalog %s: action %d has no kind", c.Name, i)
		}
		if d.Kind != normalizeKind(string(d.Kind)) {
			return fmt.Errorf("catalog %s: action kind %q must be upper snake case", c.Name, d.Kind)
		}
		if _, dup := c.index[d.Kind]; dup {
			return fmt.Errorf("catalog %s: duplicate action %s", c.Name, d.Kind)
		}
		if d.MaxUses < 0 {
			return fmt.Errorf("catalog %s: action %s has negative max_uses", c.Name, d.Kind)
		}
		if d.Narration == "" {
			return fmt.Errorf("catalog %s: action %s has no narration", c.Name, d.Kind)
		}
		for _, cp := range d.CopyParams {
			if cp.Param == "" || cp.Field == "" {
				return fmt.Errorf("catalog %s: action %s has an incomplete copy_params entry", c.Name, d.Kind)
			}
		}
		c.index[d.Kind] = i
	}
	for _, k := range c.ResolutionPriority {
		if _, ok := c.index[k]; !ok {
			return fmt.Errorf("catalog %s: resolution priority names unknown action %s", c.Name, k)
		}
	}
	for _, kw := range c.Keywords {
		if kw.Keyword == "" {
			return fmt.Errorf("catalog %s: empty keyword", c.Name)
		}
		if _, ok := c.index[kw.Kind]; !ok {
			return fmt.Errorf("catalog %s: keyword %s maps to unknown action %s", c.Name, kw.Keyword, kw.Kind)
		}
	}
	return nil
}

// Lookup returns the definition for kind.
func (c *Catalog) Lookup(kind Kind) (Definition, bool) {
	i, ok := c.index[kind]
	if !ok {
		return Definition{}, false
	}
	return c.Actions[i], true
}

// Kinds returns every action kind in catalog order.
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, len(c.Actions))
	for i, d := range c.Actions {
		out[i] = d.Kind
	}
	return out
}

// IsDeltaField reports whether field is a numeric counter whose effects add.
func (c *Catalog) IsDeltaField(field string) bool {
	return slices.Contains(c.DeltaFields, field)
}

// Hint returns the forced-action verb phrase for kind.
func (c *Catalog) Hint(kind Kind) string {
	if d, ok := c.Lookup(kind); ok && d.NarrationHint != "" {
		return d.NarrationHint
	}
	return "takes action"
}

// MenuItem is one line of the action menu shown to a character.
type MenuItem struct {
	Kind        Kind
	Description string
}

// Menu describes the given kinds, skipping any the catalog does not know.
func (c *Catalog) Menu(kinds []Kind) []MenuItem {
	out := make([]MenuItem, 0, len(kinds))
	for _, k := range kinds {
		if d, ok := c.Lookup(k); ok {
			out = append(out, MenuItem{Kind: k, Description: d.Description})
		}
	}
	return out
}

func normalizeKind(s string) Kind {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Kind(s)
}

// normalizeNumbers turns json.Number values into int or float64 so effects
// compare and add like ordinary Go numbers.
func normalizeNumbers(c *Catalog) {
	for i := range c.Actions {
		d := &c.Actions[i]
		for k, v := range d.Effects {
			d.Effects[k] = fromJSON(v)
		}
		for j := range d.Preconditions {
			d.Preconditions[j].Equals = fromJSON(d.Preconditions[j].Equals)
		}
		for j := range d.CopyParams {
			d.CopyParams[j].Default = fromJSON(d.CopyParams[j].Default)
		}
	}
}

func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, inner := range x {
			x[k] = fromJSON(inner)
		}
		return x
	}
	return v
}
