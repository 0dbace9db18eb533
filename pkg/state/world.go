package state

import (
	"maps"
	"math"
	"reflect"
	"slices"
)

// World is the mutable, domain-specific part of a scene. It is only ever
// changed through Apply, and Apply is only ever fed by action effects.
type World struct {
	// Levels are bounded numeric counters (tension, crowd size, ...).
	Levels map[string]int `json:"levels,omitempty"`
	// Flags are named booleans. Departure flags and resolution signals live here.
	Flags map[string]bool `json:"flags,omitempty"`
	// Records are mapping-valued fields that merge rather than overwrite.
	Records map[string]map[string]any `json:"records,omitempty"`
	// Values is the open extension bag for anything else (offers, notes).
	Values map[string]any `json:"values,omitempty"`
}

// Patch is a set of field assignments produced by an action. Keys are routed
// into World buckets by Apply.
type Patch map[string]any

// Level marks a patch value as a numeric counter so it lands in World.Levels
// even when the field did not exist yet.
type Level int

// LevelMin and LevelMax bound every numeric level.
const (
	LevelMin = 0
	LevelMax = 10
)

// DepartedFlag returns the flag name marking a character as gone from the scene.
func DepartedFlag(name string) string {
	return name + "_departed"
}

// Clone returns a deep copy of the world.
func (w World) Clone() World {
	out := World{
		Levels: maps.Clone(w.Levels),
		Flags:  maps.Clone(w.Flags),
		Values: maps.Clone(w.Values),
	}
	if w.Records != nil {
		out.Records = make(map[string]map[string]any, len(w.Records))
		for k, v := range w.Records {
			out.Records[k] = maps.Clone(v)
		}
	}
	return out
}

// Lookup returns the current value of a field, searching flags, levels,
// records and values in that order.
func (w World) Lookup(field string) (any, bool) {
	if v, ok := w.Flags[field]; ok {
		return v, true
	}
	if v, ok := w.Levels[field]; ok {
		return v, true
	}
	if v, ok := w.Records[field]; ok {
		return v, true
	}
	if v, ok := w.Values[field]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// IsLevel reports whether field is a known numeric level.
func (w World) IsLevel(field string) bool {
	_, ok := w.Levels[field]
	return ok
}

// Signal reports whether a resolution signal is raised, either as a flag or
// as a true entry inside any record.
func (w World) Signal(name string) bool {
	if w.Flags[name] {
		return true
	}
	for _, rec := range w.Records {
		if b, ok := rec[name].(bool); ok && b {
			return true
		}
	}
	return false
}

// AnySignal reports whether any of the named signals is raised.
func (w World) AnySignal(names []string) bool {
	for _, n := range names {
		if w.Signal(n) {
			return true
		}
	}
	return false
}

// TrueFlags returns the names of every flag currently set, sorted.
func (w World) TrueFlags() []string {
	var out []string
	for k, v := range w.Flags {
		if v {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Apply writes every patch entry into the world. Numeric values for known
// levels are clamped; nil deletes the field from the extension bag.
func (w *World) Apply(p Patch) {
	for _, field := range slices.Sorted(maps.Keys(p)) {
		w.set(field, p[field])
	}
}

func (w *World) set(field string, value any) {
	if _, ok := w.Levels[field]; ok {
		if n, ok := AsInt(value); ok {
			w.Levels[field] = Clamp(n)
			return
		}
	}
	switch v := value.(type) {
	case nil:
		delete(w.Values, field)
	case Level:
		if w.Levels == nil {
			w.Levels = make(map[string]int)
		}
		w.Levels[field] = Clamp(int(v))
	case bool:
		if w.Flags == nil {
			w.Flags = make(map[string]bool)
		}
		w.Flags[field] = v
	case map[string]any:
		if w.Records == nil {
			w.Records = make(map[string]map[string]any)
		}
		w.Records[field] = maps.Clone(v)
	default:
		if w.Values == nil {
			w.Values = make(map[string]any)
		}
		w.Values[field] = v
	}
}

// Clamp bounds n to [LevelMin, LevelMax].
func Clamp(n int) int {
	return max(LevelMin, min(LevelMax, n))
}

// AsInt converts JSON-ish numbers to int.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case Level:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(math.Round(float64(n))), true
	case float64:
		return int(math.Round(n)), true
	}
	return 0, false
}

// Equal compares two field values, treating numbers of different Go types as
// equal when they hold the same value.
func Equal(a, b any) bool {
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			return x == y
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
