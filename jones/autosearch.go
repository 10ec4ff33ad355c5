package jones

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMinSearchInterval is the minimum time between searches for the
	// same bench (debounce).
	DefaultMinSearchInterval = 2 * time.Second

	// reuseTolerance bounds how far the current input/target pair may drift
	// from a stored solution's pair before a fresh search is required.
	reuseTolerance = 1e-6
)

// AutoSearcher orchestrates automatic angle searches as bench states arrive.
// It debounces rapid updates, reuses stored solutions for pairs already
// solved, runs the search, and fans the result out to the bench tracker, the
// solution store, the run history and the MQTT publisher.
type AutoSearcher struct {
	config    *Config
	store     *SolutionSet
	storePath string
	tracker   *BenchTracker
	history   *History   // nil disables run recording
	publisher *Publisher // nil disables MQTT publishing
	log       zerolog.Logger

	mu           sync.Mutex
	minInterval  time.Duration
	lastSearched map[string]time.Time
}

// NewAutoSearcher creates an AutoSearcher ready to handle state updates.
func NewAutoSearcher(config *Config, store *SolutionSet, storePath string, tracker *BenchTracker, history *History, publisher *Publisher, log zerolog.Logger) *AutoSearcher {
	if store == nil {
		store = &SolutionSet{
			Solutions: make(map[string]AngleSolution),
		}
	}
	return &AutoSearcher{
		config:       config,
		store:        store,
		storePath:    storePath,
		tracker:      tracker,
		history:      history,
		publisher:    publisher,
		log:          log.With().Str("component", "autosearch").Logger(),
		minInterval:  DefaultMinSearchInterval,
		lastSearched: make(map[string]time.Time),
	}
}

// SetMinInterval overrides the per-bench debounce interval.
func (as *AutoSearcher) SetMinInterval(d time.Duration) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.minInterval = d
}

// SetPublisher wires in the MQTT publisher. The app layer connects MQTT
// after the searcher exists, so the publisher arrives late.
func (as *AutoSearcher) SetPublisher(p *Publisher) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.publisher = p
}

// Handlers returns the MQTT message handlers wired to this searcher.
func (as *AutoSearcher) Handlers() MessageHandlers {
	return MessageHandlers{
		OnInput:  as.OnInput,
		OnTarget: as.OnTarget,
		OnAngles: as.OnAngles,
	}
}

// OnInput is the input-state callback registered with the MQTT client.
// It is safe to call from any goroutine.
func (as *AutoSearcher) OnInput(benchID string, s PolarizationState) {
	as.tracker.UpdateInput(benchID, s)
	as.SearchBench(benchID)
}

// OnTarget is the target-state callback registered with the MQTT client.
func (as *AutoSearcher) OnTarget(benchID string, s PolarizationState) {
	as.tracker.UpdateTarget(benchID, s)
	as.SearchBench(benchID)
}

// OnAngles is the manual-angles callback registered with the MQTT client.
// Manually set angles only update the tracker; they never trigger a search.
func (as *AutoSearcher) OnAngles(benchID string, theta1, theta2, theta3 float64) {
	as.tracker.UpdateAngles(benchID, theta1, theta2, theta3)
}

// SearchBench runs one search pass for a bench. It returns quietly when the
// bench is debounced, missing a state, or already solved.
func (as *AutoSearcher) SearchBench(benchID string) {
	as.mu.Lock()
	defer as.mu.Unlock()

	log := as.log.With().Str("bench", benchID).Logger()

	// --- Step 1: Debounce ---
	if last, ok := as.lastSearched[benchID]; ok {
		if time.Since(last) < as.minInterval {
			log.Debug().
				Dur("since", time.Since(last).Round(time.Millisecond)).
				Dur("min", as.minInterval).
				Msg("Skipping search, too soon after the last one")
			return
		}
	}

	// --- Step 2: Both states must be present ---
	input, ok := as.tracker.GetInputs()[benchID]
	if !ok {
		log.Debug().Msg("No input state yet, waiting")
		return
	}
	target, ok := as.tracker.GetTargets()[benchID]
	if !ok {
		log.Debug().Msg("No target state yet, waiting")
		return
	}

	// --- Step 3: Reuse a stored solution for the same pair ---
	if sol, ok := as.store.Get(benchID); ok && sol.Converged {
		if DistanceUpToPhase(sol.Input, input.State) < reuseTolerance &&
			DistanceUpToPhase(sol.Target, target.State) < reuseTolerance {
			log.Debug().Msg("Stored solution still matches, skipping search")
			as.tracker.UpdateAngles(benchID, sol.Theta1, sol.Theta2, sol.Theta3)
			as.lastSearched[benchID] = time.Now()
			return
		}
	}

	// --- Step 4: Run the search ---
	sc := as.searchConfig()
	sc.Logger = &log // Per-start progress shows at debug level, tagged with the bench
	result, err := SearchAngles(input.State, target.State, sc)
	if err != nil {
		log.Error().Err(err).Msg("Angle search failed")
		return
	}
	log.Info().
		Float64("theta1", result.Theta1).
		Float64("theta2", result.Theta2).
		Float64("theta3", result.Theta3).
		Float64("error", result.Error).
		Bool("converged", result.Converged).
		Dur("took", result.Duration.Round(time.Millisecond)).
		Msg("Angle search finished")

	// --- Step 5: Update the tracker ---
	as.tracker.UpdateResult(benchID, result)
	as.tracker.UpdateAngles(benchID, result.Theta1, result.Theta2, result.Theta3)

	// --- Step 6: Record the run ---
	if as.history != nil {
		if _, err := as.history.Record(benchID, input.State, target.State, result); err != nil {
			log.Warn().Err(err).Msg("Recording run failed")
		}
	}

	// --- Step 7: Update and persist the solution store ---
	if as.store.Update(benchID, NewAngleSolution(result, input.State, target.State)) {
		as.persistSolutions(log)
	}

	// --- Step 8: Publish the outcome ---
	if as.publisher != nil {
		if err := as.publisher.PublishOutcome(benchID, input.State, result); err != nil {
			log.Debug().Err(err).Msg("Result not published")
		}
	}

	as.lastSearched[benchID] = time.Now()
}

// Store returns the current solution set (for use by the app layer).
func (as *AutoSearcher) Store() *SolutionSet {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.store
}

// searchConfig builds the search configuration from the app config.
func (as *AutoSearcher) searchConfig() SearchConfig {
	if as.config == nil {
		return DefaultSearchConfig()
	}
	return as.config.Search.ToSearchConfig()
}

// persistSolutions saves the solution store to disk. An empty store path
// keeps solutions in memory only.
func (as *AutoSearcher) persistSolutions(log zerolog.Logger) {
	if as.storePath == "" {
		return
	}
	if err := SaveSolutions(as.storePath, as.store); err != nil {
		log.Warn().Err(err).Str("path", as.storePath).Msg("Saving solutions failed")
		return
	}
	log.Debug().Str("path", as.storePath).Msg("Solutions saved")
}

// String implements fmt.Stringer for debug logging.
func (as *AutoSearcher) String() string {
	as.mu.Lock()
	defer as.mu.Unlock()
	return fmt.Sprintf("AutoSearcher{storePath=%s, solutions=%d, lastSearched=%d}",
		as.storePath, len(as.store.Solutions), len(as.lastSearched))
}
