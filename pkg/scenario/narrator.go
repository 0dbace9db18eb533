package scenario

import (
	"fmt"
	"strings"
)

// Narrator defines the voice of the director's narration.
type Narrator struct {
	ID          string   `json:"id"`                    // Unique identifier (e.g., "noir", "documentary")
	Name        string   `json:"name"`                  // Display name
	Description string   `json:"description,omitempty"` // What this narrator style is like (not used in prompts)
	Prompts     []string `json:"prompts"`               // Style instructions added to director prompts
}

// Validate requires an id and at least one non-blank prompt.
func (n *Narrator) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("narrator id is required")
	}
	for i, p := range n.Prompts {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("narrator %s: prompt %d is blank", n.ID, i)
		}
	}
	if len(n.Prompts) == 0 {
		return fmt.Errorf("narrator %s has no prompts", n.ID)
	}
	return nil
}

// GetPromptsAsString returns all narrator prompts as a bulleted list.
func (n *Narrator) GetPromptsAsString() string {
	var sb strings.Builder
	for _, prompt := range n.Prompts {
		sb.WriteString("- " + prompt + "\n")
	}
	return sb.String()
}
