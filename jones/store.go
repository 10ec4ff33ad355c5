package jones

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultSolutionsPath is the default path for the best-known solutions store
const DefaultSolutionsPath = ".solutions.json"

// AngleSolution stores a best-known angle triple for one scenario or bench,
// together with the states it solves.
type AngleSolution struct {
	Theta1      float64           `json:"theta1"`
	Theta2      float64           `json:"theta2"`
	Theta3      float64           `json:"theta3"`
	Error       float64           `json:"error"`
	Converged   bool              `json:"converged"`
	Input       PolarizationState `json:"input"`
	Target      PolarizationState `json:"target"`
	LastUpdated int64             `json:"lastUpdated"`
}

// NewAngleSolution builds an AngleSolution from a search result
func NewAngleSolution(result SearchResult, input, target PolarizationState) AngleSolution {
	return AngleSolution{
		Theta1:    result.Theta1,
		Theta2:    result.Theta2,
		Theta3:    result.Theta3,
		Error:     result.Error,
		Converged: result.Converged,
		Input:     input,
		Target:    target,
	}
}

// SolutionSet stores best-known solutions keyed by scenario or bench name
type SolutionSet struct {
	Solutions   map[string]AngleSolution `json:"solutions"`
	LastUpdated int64                    `json:"lastUpdated"`
}

// LoadSolutions loads the solution store from a JSON file
func LoadSolutions(path string) (*SolutionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No solutions file yet
		}
		return nil, fmt.Errorf("reading solutions file: %w", err)
	}

	var set SolutionSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing solutions file: %w", err)
	}

	return &set, nil
}

// SaveSolutions saves the solution store to a JSON file
func SaveSolutions(path string, set *SolutionSet) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating solutions directory: %w", err)
	}

	// Update timestamp
	set.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling solutions: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing solutions file: %w", err)
	}

	return nil
}

// Get retrieves the stored solution for a name. Safe on a nil set.
func (s *SolutionSet) Get(name string) (AngleSolution, bool) {
	if s == nil || s.Solutions == nil {
		return AngleSolution{}, false
	}
	sol, ok := s.Solutions[name]
	return sol, ok
}

// Update stores the solution under name. A solution for a new input/target
// pair always replaces the stored one; for the same pair it must improve on
// it: a converged solution beats a non-converged one, ties break by error.
// Returns whether the set changed.
func (s *SolutionSet) Update(name string, sol AngleSolution) bool {
	if s.Solutions == nil {
		s.Solutions = make(map[string]AngleSolution)
	}
	if old, ok := s.Solutions[name]; ok && samePair(old, sol) {
		if old.Converged && !sol.Converged {
			return false
		}
		if old.Converged == sol.Converged && sol.Error >= old.Error {
			return false
		}
	}
	sol.LastUpdated = time.Now().Unix()
	s.Solutions[name] = sol
	return true
}

// samePair reports whether two solutions solve the same input/target pair,
// up to global phase.
func samePair(a, b AngleSolution) bool {
	const tol = 1e-9
	return DistanceUpToPhase(a.Input, b.Input) < tol &&
		DistanceUpToPhase(a.Target, b.Target) < tol
}

// NeedsRefresh checks if the stored solution for name is missing, has never
// been stamped, or is older than maxAge.
func (s *SolutionSet) NeedsRefresh(name string, maxAge time.Duration) bool {
	if s == nil || s.Solutions == nil {
		return true
	}
	sol, ok := s.Solutions[name]
	if !ok || sol.LastUpdated == 0 {
		return true
	}
	return time.Since(time.Unix(sol.LastUpdated, 0)) > maxAge
}
