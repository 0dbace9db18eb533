package conditionals

import "github.com/jwebster45206/scene-engine/pkg/state"

// WorldView is the minimal read access conditions need. It avoids tying the
// evaluator to a full scene.
type WorldView interface {
	Lookup(field string) (any, bool)
}

// Met reports whether a single condition holds. A missing boolean field is
// read as false so catalogs need not pre-declare every flag.
func Met(c Condition, w WorldView) bool {
	v, ok := w.Lookup(c.Field)
	if c.Equals == nil {
		return !c.Present || ok
	}
	if !ok {
		if b, isBool := c.Equals.(bool); isBool {
			return !b
		}
		return false
	}
	return state.Equal(v, c.Equals)
}

// FirstUnmet returns the first condition that does not hold, in declaration order.
func FirstUnmet(conds []Condition, w WorldView) (Condition, bool) {
	for _, c := range conds {
		if !Met(c, w) {
			return c, true
		}
	}
	return Condition{}, false
}

// AllMet reports whether every condition holds.
func AllMet(conds []Condition, w WorldView) bool {
	_, failed := FirstUnmet(conds, w)
	return !failed
}
