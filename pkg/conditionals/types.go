package conditionals

import (
	"encoding/json"
	"fmt"
)

// Condition is a single requirement over a world field.
//
// In JSON a condition is either an object
//
//	{"field": "police_present", "equals": false}
//
// or a bare field name, which only requires the field to hold a value:
//
//	"settlement_offer"
type Condition struct {
	Field   string `json:"field"`
	Equals  any    `json:"equals,omitempty"`
	Present bool   `json:"present,omitempty"`
	// Message replaces the generic "X is not Y" failure text.
	Message string `json:"message,omitempty"`
}

// UnmarshalJSON accepts both the string shorthand and the object form.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var field string
	if err := json.Unmarshal(data, &field); err == nil {
		c.Field = field
		c.Present = true
		return nil
	}

	type Alias Condition
	aux := &struct{ *Alias }{Alias: (*Alias)(c)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if c.Field == "" {
		return fmt.Errorf("condition is missing a field")
	}
	if c.Equals == nil && !c.Present {
		return fmt.Errorf("condition on %q needs equals or present", c.Field)
	}
	return nil
}

// String renders the requirement for log lines and failure messages.
func (c Condition) String() string {
	if c.Present && c.Equals == nil {
		return c.Field + " is set"
	}
	return fmt.Sprintf("%s is %v", c.Field, c.Equals)
}

// Reason is the human-readable explanation used when the condition fails.
func (c Condition) Reason() string {
	if c.Message != "" {
		return c.Message
	}
	if c.Present && c.Equals == nil {
		return fmt.Sprintf("conditions were not met (%s is not set)", c.Field)
	}
	return fmt.Sprintf("conditions were not met (%s is not %v)", c.Field, c.Equals)
}
