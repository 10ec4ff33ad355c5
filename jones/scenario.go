package jones

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StateSpec is a polarization state as written in a scenario file: either a
// preset name string ("vertical", "RCP") or explicit components
// {"ex": [re, im], "ey": [re, im]}. Explicit components are normalized on
// load.
type StateSpec struct {
	State PolarizationState
	Name  string // Preset name when the file used one, empty otherwise
	Set   bool   // True once a value was parsed
}

// UnmarshalJSON probes the raw JSON for a string first and falls back to
// the explicit component format.
func (s *StateSpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		state, ok := StateByName(name)
		if !ok {
			return fmt.Errorf("unknown state %q", name)
		}
		s.State = state
		s.Name = name
		s.Set = true
		return nil
	}

	var state PolarizationState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.IsZero() {
		return fmt.Errorf("state components are all zero")
	}
	s.State = state.Normalized()
	s.Name = ""
	s.Set = true
	return nil
}

// MarshalJSON writes the preset name when one was used, explicit components
// otherwise.
func (s StateSpec) MarshalJSON() ([]byte, error) {
	if s.Name != "" {
		return json.Marshal(s.Name)
	}
	return json.Marshal(s.State)
}

// Scenario is a file-driven run: an input state, an optional element chain
// to apply, and an optional target state that triggers an angle search.
type Scenario struct {
	Name     string    `json:"name,omitempty"`
	Input    StateSpec `json:"input"`
	Target   StateSpec `json:"target,omitempty"`
	Elements []Element `json:"elements,omitempty"`
}

// HasSearch reports whether the scenario asks for an angle search
func (sc *Scenario) HasSearch() bool {
	return sc.Target.Set
}

// LoadScenario reads and parses a scenario JSON file. A missing name
// defaults to the file name without extension.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("scenario file not found: %s", path)
		}
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	sc, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// ParseScenario parses and validates scenario JSON data
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario JSON: %w", err)
	}

	if !sc.Input.Set {
		return nil, fmt.Errorf("input is required")
	}
	for i, e := range sc.Elements {
		if _, err := e.Matrix(); err != nil {
			return nil, fmt.Errorf("elements[%d]: %w", i, err)
		}
	}
	return &sc, nil
}
