// Package scenario loads the seed files scenes start from: premise, cast,
// starting world and which action catalog applies.
package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Content ratings.
const (
	RatingG    = "G"
	RatingPG   = "PG"
	RatingPG13 = "PG-13"
	RatingR    = "R"
)

// DefaultMaxTurns applies when neither the scenario nor the caller sets a budget.
const DefaultMaxTurns = 25

// Scenario is the template for a scene run.
type Scenario struct {
	Name             string            `json:"name"`                         // Stable identifier, usually the file name without extension
	FileName         string            `json:"file_name,omitempty"`          // Set by loaders, not read from the file
	Title            string            `json:"title"`                        // Shown to the director and characters
	Description      string            `json:"description"`                  // The premise
	Rating           string            `json:"rating,omitempty"`             // G, PG, PG-13 or R
	Catalog          string            `json:"catalog"`                      // Action catalog name
	MaxTurns         int               `json:"max_turns,omitempty"`          // Turn budget
	MemoryBufferSize int               `json:"memory_buffer_size,omitempty"` // Recent-event window per character
	Characters       []state.Character `json:"characters"`
	World            state.World       `json:"world"`
	OpeningNarration string            `json:"opening_narration,omitempty"` // Fixed opening; skips the generated one
	NarratorID       string            `json:"narrator_id,omitempty"`       // Narrator voice loaded from storage
	Narrator         *Narrator         `json:"narrator,omitempty"`          // Inline narrator; wins over NarratorID
}

// Options override scenario settings when building a scene.
type Options struct {
	MaxTurns         int
	MemoryBufferSize int
	Clock            func() time.Time
}

// Decode reads a scenario. Strict decoding rejects unknown fields.
func Decode(r io.Reader, strict bool) (*Scenario, error) {
	dec := json.NewDecoder(r)
	if strict {
		dec.DisallowUnknownFields()
	}
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	return &s, nil
}

// LoadFile reads and validates a scenario file.
func LoadFile(path string, strict bool) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := Decode(bytes.NewReader(data), strict)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return s, nil
}

// Validate checks the scenario's own structure. Catalog existence is checked
// by CatalogSource.Resolve.
func (s *Scenario) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(s.Catalog) == "" {
		errs = append(errs, errors.New("catalog is required"))
	}
	if s.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("max_turns must not be negative, got %d", s.MaxTurns))
	}
	if s.MemoryBufferSize < 0 {
		errs = append(errs, fmt.Errorf("memory_buffer_size must not be negative, got %d", s.MemoryBufferSize))
	}
	switch s.Rating {
	case "", RatingG, RatingPG, RatingPG13, RatingR:
	default:
		errs = append(errs, fmt.Errorf("unknown rating %q", s.Rating))
	}

	if len(s.Characters) == 0 {
		errs = append(errs, errors.New("at least one character is required"))
	}
	names := make(map[string]bool, len(s.Characters))
	for i, c := range s.Characters {
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("character %d has no name", i))
		case name != c.Name:
			errs = append(errs, fmt.Errorf("character %q has surrounding whitespace", c.Name))
		case names[name]:
			errs = append(errs, fmt.Errorf("duplicate character %q", name))
		}
		names[c.Name] = true
	}

	for flag := range s.World.Flags {
		who, ok := strings.CutSuffix(flag, state.DepartedFlag(""))
		if ok && !names[who] {
			errs = append(errs, fmt.Errorf("flag %q refers to unknown character %q", flag, who))
		}
	}
	for field, v := range s.World.Levels {
		if v < state.LevelMin || v > state.LevelMax {
			errs = append(errs, fmt.Errorf("level %q = %d is outside [%d,%d]", field, v, state.LevelMin, state.LevelMax))
		}
	}
	if s.Narrator != nil {
		if err := s.Narrator.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ToState builds a fresh scene from the scenario. The catalog supplies no
// state; it is only checked against the starting world.
func (s *Scenario) ToState(catalog *action.Catalog, opts Options) (*state.SceneState, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if catalog != nil {
		if err := checkWorld(s.World, catalog); err != nil {
			return nil, err
		}
	}

	turns := opts.MaxTurns
	if turns <= 0 {
		turns = s.MaxTurns
	}
	if turns <= 0 {
		turns = DefaultMaxTurns
	}
	buffer := opts.MemoryBufferSize
	if buffer <= 0 {
		buffer = s.MemoryBufferSize
	}

	seed := state.Seed{
		Scenario:    s.FileName,
		Title:       s.Title,
		Description: s.Description,
		Rating:      s.Rating,
		Catalog:     s.Catalog,
	}
	if seed.Title == "" {
		seed.Title = s.Name
	}
	if s.Narrator != nil {
		seed.DirectorStyle = append([]string(nil), s.Narrator.Prompts...)
	}

	scene := state.New(seed, s.Characters, turns, s.World, buffer)
	if s.OpeningNarration != "" {
		now := time.Now()
		if opts.Clock != nil {
			now = opts.Clock()
		}
		scene.AddNarration(s.OpeningNarration, false, now)
	}
	return scene, nil
}

// checkWorld rejects starting levels the catalog does not treat as counters.
func checkWorld(w state.World, c *action.Catalog) error {
	var errs []error
	for field := range w.Levels {
		if !c.IsDeltaField(field) {
			errs = append(errs, fmt.Errorf("level %q is not a delta field of catalog %s", field, c.Name))
		}
	}
	return errors.Join(errs...)
}
