package jones

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"
)

// SearchConfig holds parameters for the quarter-half-quarter angle search.
type SearchConfig struct {
	MaxIterations int             // Iteration budget per starting point
	Tolerance     float64         // Squared error at or below this counts as converged
	RandomStarts  int             // Random starting triples tried after the fixed list
	Refine        bool            // Polish the best result with a coordinate hill-climb
	RNG           *rand.Rand      // Random number generator for deterministic behavior
	Logger        *zerolog.Logger // Optional progress logger (nil disables)
}

// DefaultSearchConfig returns sensible defaults for the angle search.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		MaxIterations: 300,  // Per-start budget; the objective is cheap
		Tolerance:     1e-8, // Squared error, well below visual significance
		RandomStarts:  8,    // On top of the fixed starts
		Refine:        true,
		RNG:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SearchResult reports the outcome of an angle search. The angles are
// normalized to [-180, 180). Converged is the only success signal: when it
// is false the angles are still the best found, never a substituted zero
// triple, and the caller decides what to do with them.
type SearchResult struct {
	Theta1     float64       `json:"theta1"` // First quarter-wave plate angle, degrees
	Theta2     float64       `json:"theta2"` // Half-wave plate angle, degrees
	Theta3     float64       `json:"theta3"` // Second quarter-wave plate angle, degrees
	Error      float64       `json:"error"`  // Achieved squared error
	Converged  bool          `json:"converged"`
	Iterations int           `json:"iterations"` // Local-optimizer iterations summed over starts
	Starts     int           `json:"starts"`     // Starting points actually tried
	BestStart  int           `json:"bestStart"`  // Index of the winning start
	Duration   time.Duration `json:"-"`          // Wall-clock time of the whole search
}

// String renders the result in the plate order the angles are applied
func (r SearchResult) String() string {
	return fmt.Sprintf("Q1=%.2f° H=%.2f° Q2=%.2f° (error %.3g, converged %t)",
		r.Theta1, r.Theta2, r.Theta3, r.Error, r.Converged)
}

// searchStarts are the fixed deterministic starting triples. The first is an
// identity composite, Q(0)H(90)Q(0) = I; the second is the all-zero stack,
// which evaluates to -I and anchors the opposite phase branch. The rest
// spread over the angle symmetry classes so at least one start lands near
// each family of local minima.
var searchStarts = [][3]float64{
	{0, 90, 0},
	{0, 0, 0},
	{45, 22.5, 45},
	{-45, 60, 45},
	{30, -75, -30},
}

// Optimizer statuses that count as a clean local convergence.
var acceptableStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
}

// SearchAngles finds waveplate angles (theta1, theta2, theta3) such that
// QuarterHalfQuarter(theta1, theta2, theta3) applied to input comes as close
// as possible to target, minimizing the sum of squared component magnitude
// differences. Both states are normalized before the search, under which an
// exact zero-error solution always exists; in practice each local
// minimization lands on one or stalls in a shallower basin, which the
// multi-start loop escapes.
//
// An error is returned only when the optimizer itself fails on every start.
// Falling short of Tolerance is not an error: the best angles found are
// returned with Converged set to false.
func SearchAngles(input, target PolarizationState, config SearchConfig) (SearchResult, error) {
	begin := time.Now()
	if config.MaxIterations <= 0 {
		config.MaxIterations = 300
	}
	if config.Tolerance <= 0 {
		config.Tolerance = 1e-8
	}
	if config.RNG == nil && config.RandomStarts > 0 {
		config.RNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	input = input.Normalized()
	target = target.Normalized()

	objective := func(x []float64) float64 {
		out := Apply(QuarterHalfQuarter(x[0], x[1], x[2]), input)
		return out.DistanceSq(target)
	}
	problem := optimize.Problem{Func: objective}

	starts := make([][3]float64, 0, len(searchStarts)+config.RandomStarts)
	starts = append(starts, searchStarts...)
	for i := 0; i < config.RandomStarts; i++ {
		starts = append(starts, [3]float64{
			config.RNG.Float64()*360 - 180,
			config.RNG.Float64()*360 - 180,
			config.RNG.Float64()*360 - 180,
		})
	}

	result := SearchResult{Error: -1, BestStart: -1}
	var lastErr error
	for i, start := range starts {
		result.Starts = i + 1
		local, err := minimizeStart(problem, start, config.MaxIterations)
		if err != nil {
			logger.Warn().Err(err).Int("start", i).Msg("angle search start failed")
			lastErr = err
			continue
		}
		result.Iterations += local.Stats.MajorIterations
		logger.Debug().
			Int("start", i).
			Float64("error", local.F).
			Int("iterations", local.Stats.MajorIterations).
			Msg("angle search start finished")
		if result.BestStart < 0 || local.F < result.Error {
			result.Error = local.F
			result.BestStart = i
			result.Theta1 = local.X[0]
			result.Theta2 = local.X[1]
			result.Theta3 = local.X[2]
		}
		if result.Error <= config.Tolerance {
			// Further starts cannot improve a converged answer enough to matter.
			break
		}
	}
	if result.BestStart < 0 {
		return SearchResult{}, fmt.Errorf("angle search failed on all %d starts: %w", len(starts), lastErr)
	}

	if config.Refine {
		before := result.Error
		refined, refinedErr := refineAngles(objective, [3]float64{result.Theta1, result.Theta2, result.Theta3}, result.Error)
		result.Theta1, result.Theta2, result.Theta3 = refined[0], refined[1], refined[2]
		result.Error = refinedErr
		logger.Debug().
			Float64("before", before).
			Float64("after", refinedErr).
			Msg("refined best angles")
	}

	result.Theta1 = SignedAngle(result.Theta1)
	result.Theta2 = SignedAngle(result.Theta2)
	result.Theta3 = SignedAngle(result.Theta3)
	result.Converged = result.Error <= config.Tolerance
	result.Duration = time.Since(begin)
	return result, nil
}

// minimizeStart runs one local minimization from the given angle triple.
// Nelder-Mead goes first; when it errors or ends with an unacceptable
// status, a BFGS retry follows (the gradient falls back to finite
// differences). An unacceptable status without an optimizer error still
// yields a usable best-effort result, so the multi-start loop can judge it
// by error value alone.
func minimizeStart(problem optimize.Problem, start [3]float64, maxIterations int) (*optimize.Result, error) {
	settings := &optimize.Settings{MajorIterations: maxIterations}

	nm, nmErr := optimize.Minimize(problem, start[:], settings, &optimize.NelderMead{})
	if nmErr == nil && acceptableStatuses[nm.Status] {
		return nm, nil
	}
	bf, bfErr := optimize.Minimize(problem, start[:], settings, &optimize.BFGS{})
	if bfErr == nil && acceptableStatuses[bf.Status] {
		return bf, nil
	}

	switch {
	case nmErr == nil && bfErr == nil:
		if bf.F < nm.F {
			return bf, nil
		}
		return nm, nil
	case nmErr == nil:
		return nm, nil
	case bfErr == nil:
		return bf, nil
	}
	return nil, fmt.Errorf("nelder-mead: %v; bfgs: %v", nmErr, bfErr)
}

// refineAngles polishes an angle triple with a coordinate hill-climb,
// halving the step until it drops below a minimum step.
func refineAngles(objective func([]float64) float64, best [3]float64, bestError float64) ([3]float64, float64) {
	step := 1.0 // degrees
	const minStep = 1e-7

	for step >= minStep {
		candidates := [][3]float64{
			{best[0] + step, best[1], best[2]},
			{best[0] - step, best[1], best[2]},
			{best[0], best[1] + step, best[2]},
			{best[0], best[1] - step, best[2]},
			{best[0], best[1], best[2] + step},
			{best[0], best[1], best[2] - step},
		}

		improved := false
		for _, candidate := range candidates {
			if e := objective(candidate[:]); e < bestError {
				bestError = e
				best = candidate
				improved = true
			}
		}
		if !improved {
			step /= 2.0
		}
	}
	return best, bestError
}
