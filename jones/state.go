package jones

import (
	"sort"
	"sync"
	"time"
)

// LiveState is a bench's most recent polarization state for HTTP endpoints
type LiveState struct {
	BenchID   string            `json:"benchId"`
	State     PolarizationState `json:"state"`
	Timestamp time.Time         `json:"timestamp"`
	Color     string            `json:"color"` // hex color for this bench
}

// BenchAngles is a bench's current waveplate orientation
type BenchAngles struct {
	BenchID   string    `json:"benchId"`
	Theta1    float64   `json:"theta1"` // first quarter-wave plate, degrees
	Theta2    float64   `json:"theta2"` // half-wave plate, degrees
	Theta3    float64   `json:"theta3"` // second quarter-wave plate, degrees
	Timestamp time.Time `json:"timestamp"`
}

// BenchSnapshot is a consistent view of one bench for HTTP endpoints.
// Output and Ellipse are derived from the latest input and angles.
type BenchSnapshot struct {
	BenchID string             `json:"benchId"`
	Input   *LiveState         `json:"input,omitempty"`
	Target  *LiveState         `json:"target,omitempty"`
	Angles  *BenchAngles       `json:"angles,omitempty"`
	Result  *SearchResult      `json:"result,omitempty"`
	Output  *PolarizationState `json:"output,omitempty"`
	Ellipse *Ellipse           `json:"ellipse,omitempty"`
}

// BenchTracker tracks live bench states for HTTP endpoints
type BenchTracker struct {
	mu      sync.RWMutex
	inputs  map[string]*LiveState
	targets map[string]*LiveState
	angles  map[string]*BenchAngles
	results map[string]*SearchResult
	colors  map[string]string // bench ID -> hex color
}

// NewBenchTracker creates a new bench tracker
func NewBenchTracker() *BenchTracker {
	return &BenchTracker{
		inputs:  make(map[string]*LiveState),
		targets: make(map[string]*LiveState),
		angles:  make(map[string]*BenchAngles),
		results: make(map[string]*SearchResult),
		colors:  make(map[string]string),
	}
}

// SetColor sets the color for a bench
func (bt *BenchTracker) SetColor(benchID, hexColor string) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.colors[benchID] = hexColor
}

// UpdateInput updates a bench's input polarization state
func (bt *BenchTracker) UpdateInput(benchID string, s PolarizationState) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	color := bt.colors[benchID]
	if color == "" {
		color = "#FF0000" // default red
	}

	bt.inputs[benchID] = &LiveState{
		BenchID:   benchID,
		State:     s.Normalized(),
		Timestamp: time.Now(),
		Color:     color,
	}
}

// UpdateTarget updates a bench's target polarization state
func (bt *BenchTracker) UpdateTarget(benchID string, s PolarizationState) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	color := bt.colors[benchID]
	if color == "" {
		color = "#FF0000" // default red
	}

	bt.targets[benchID] = &LiveState{
		BenchID:   benchID,
		State:     s.Normalized(),
		Timestamp: time.Now(),
		Color:     color,
	}
}

// UpdateAngles updates a bench's waveplate orientation
func (bt *BenchTracker) UpdateAngles(benchID string, theta1, theta2, theta3 float64) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.angles[benchID] = &BenchAngles{
		BenchID:   benchID,
		Theta1:    theta1,
		Theta2:    theta2,
		Theta3:    theta3,
		Timestamp: time.Now(),
	}
}

// UpdateResult stores a bench's latest search result
func (bt *BenchTracker) UpdateResult(benchID string, r SearchResult) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.results[benchID] = &r
}

// GetInputs returns all current input states
func (bt *BenchTracker) GetInputs() map[string]*LiveState {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	result := make(map[string]*LiveState)
	for k, v := range bt.inputs {
		copy := *v
		result[k] = &copy
	}
	return result
}

// GetTargets returns all current target states
func (bt *BenchTracker) GetTargets() map[string]*LiveState {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	result := make(map[string]*LiveState)
	for k, v := range bt.targets {
		copy := *v
		result[k] = &copy
	}
	return result
}

// GetAngles returns all current waveplate angles
func (bt *BenchTracker) GetAngles() map[string]*BenchAngles {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	result := make(map[string]*BenchAngles)
	for k, v := range bt.angles {
		copy := *v
		result[k] = &copy
	}
	return result
}

// GetResults returns all current search results
func (bt *BenchTracker) GetResults() map[string]*SearchResult {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	result := make(map[string]*SearchResult)
	for k, v := range bt.results {
		copy := *v
		result[k] = &copy
	}
	return result
}

// HasStates returns true if we have at least one input state
func (bt *BenchTracker) HasStates() bool {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return len(bt.inputs) > 0
}

// Benches returns the sorted IDs of all benches seen so far
func (bt *BenchTracker) Benches() []string {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	seen := make(map[string]bool)
	for k := range bt.inputs {
		seen[k] = true
	}
	for k := range bt.targets {
		seen[k] = true
	}
	for k := range bt.angles {
		seen[k] = true
	}
	for k := range bt.results {
		seen[k] = true
	}

	ids := make([]string, 0, len(seen))
	for k := range seen {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a consistent view of one bench. The second return is
// false when the bench has never been seen. When both an input and
// angles are present, the output state and its ellipse are derived.
func (bt *BenchTracker) Snapshot(benchID string) (*BenchSnapshot, bool) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	snap := &BenchSnapshot{BenchID: benchID}
	found := false

	if v, ok := bt.inputs[benchID]; ok {
		copy := *v
		snap.Input = &copy
		found = true
	}
	if v, ok := bt.targets[benchID]; ok {
		copy := *v
		snap.Target = &copy
		found = true
	}
	if v, ok := bt.angles[benchID]; ok {
		copy := *v
		snap.Angles = &copy
		found = true
	}
	if v, ok := bt.results[benchID]; ok {
		copy := *v
		snap.Result = &copy
		found = true
	}

	if snap.Input != nil && snap.Angles != nil {
		out := Apply(QuarterHalfQuarter(snap.Angles.Theta1, snap.Angles.Theta2, snap.Angles.Theta3),
			snap.Input.State)
		ell := Analyze(out)
		snap.Output = &out
		snap.Ellipse = &ell
	}

	return snap, found
}
