package storage

import (
	"encoding/json"
	"fmt"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// clone deep copies a scene through its JSON form, which is also what every
// real backend stores. Scratch fields are dropped.
func clone(s *state.SceneState) (*state.SceneState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scene: %w", err)
	}
	var out state.SceneState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scene: %w", err)
	}
	return &out, nil
}
