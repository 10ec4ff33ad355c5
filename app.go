package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kwv/joneslab/jones"
	"github.com/kwv/joneslab/pkg/logger"
)

// cliBench is the bench name recorded for searches run from the command line
const cliBench = "cli"

// shutdownTimeout bounds how long in-flight HTTP requests may run after a
// termination signal.
const shutdownTimeout = 5 * time.Second

// AppOptions carries the parsed command line into the application
type AppOptions struct {
	ConfigFile string
	State      string
	Input      string
	Target     string
	Element    string
	Angle      float64
	Angle2     float64
	Angle3     float64
	RenderPath string
	Scenario   string
	Limit      int
	Seed       int64
	LogLevel   string
	Pretty     bool

	Describe bool
	Search   bool
	Serve    bool
	History  bool
}

// App encapsulates the application state and dependencies
type App struct {
	Tracker *jones.BenchTracker
	Log     zerolog.Logger

	// CLI flags (effectively dependencies)
	ConfigFile string
	State      string
	Input      string
	Target     string
	Element    string
	Angle      float64
	Angle2     float64
	Angle3     float64
	RenderPath string
	Scenario   string
	Limit      int
	Seed       int64
	LogLevel   string
	Pretty     bool

	Describe bool
	Search   bool
	Serve    bool
	History  bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Tracker: jones.NewBenchTracker(),
		Log:     zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.State = opts.State
	a.Input = opts.Input
	a.Target = opts.Target
	a.Element = opts.Element
	a.Angle = opts.Angle
	a.Angle2 = opts.Angle2
	a.Angle3 = opts.Angle3
	a.RenderPath = opts.RenderPath
	a.Scenario = opts.Scenario
	a.Limit = opts.Limit
	a.Seed = opts.Seed
	a.LogLevel = opts.LogLevel
	a.Pretty = opts.Pretty
	a.Describe = opts.Describe
	a.Search = opts.Search
	a.Serve = opts.Serve
	a.History = opts.History
}

// loadConfig reads the configured YAML file. A missing file is fine for
// the CLI modes; callers get a nil config and run on defaults.
func (a *App) loadConfig() (*jones.Config, error) {
	if a.ConfigFile == "" {
		return nil, nil
	}
	if _, err := os.Stat(a.ConfigFile); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return jones.LoadConfig(a.ConfigFile)
}

// setupLogger rebuilds the logger from the config with flag overrides on
// top, and installs it globally.
func (a *App) setupLogger(cfg *jones.Config) {
	level := a.LogLevel
	pretty := a.Pretty
	if cfg != nil {
		if level == "" {
			level = cfg.Log.Level
		}
		pretty = pretty || cfg.Log.Pretty
	}
	a.Log = logger.New(logger.Config{Level: level, Pretty: pretty})
	logger.SetGlobalLogger(a.Log)
}

// searchSettings builds the search configuration for a CLI run. The -seed
// flag wins over the config so runs can be made reproducible ad hoc.
func (a *App) searchSettings(cfg *jones.Config) jones.SearchConfig {
	sc := jones.DefaultSearchConfig()
	if cfg != nil {
		sc = cfg.Search.ToSearchConfig()
	}
	if a.Seed != 0 {
		sc.RNG = rand.New(rand.NewSource(a.Seed))
	}
	sc.Logger = &a.Log
	return sc
}

// resolveState parses a state argument: a preset name like "RCP" or "+45",
// or explicit JSON components like {"ex":[0.71,0],"ey":[0,-0.71]}.
func resolveState(arg string) (jones.PolarizationState, error) {
	if s, ok := jones.StateByName(strings.TrimSpace(arg)); ok {
		return s, nil
	}
	var spec jones.StateSpec
	if err := json.Unmarshal([]byte(arg), &spec); err != nil {
		return jones.PolarizationState{}, fmt.Errorf("state %q is neither a preset (%s) nor component JSON",
			arg, strings.Join(jones.PresetNames(), ", "))
	}
	return spec.State, nil
}

// printState prints one labeled state block
func printState(label string, s jones.PolarizationState) {
	fmt.Printf("%s:\n%s", label, jones.Describe(s))
}

// isSVGPath reports whether a render path asks for vector output
func isSVGPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".svg")
}

// RunDescribe prints the analysis of the -state argument
func (a *App) RunDescribe() error {
	arg := a.State
	if arg == "" {
		arg = a.Input
	}
	if arg == "" {
		return fmt.Errorf("-describe needs -state")
	}
	s, err := resolveState(arg)
	if err != nil {
		return err
	}
	printState("state", s)
	return nil
}

// elementChain builds the element list the -element flag asks for. The
// special type "qhq" is the full quarter-half-quarter cascade with -angle,
// -angle2 and -angle3 as the plate orientations.
func (a *App) elementChain() ([]jones.Element, error) {
	if strings.EqualFold(strings.TrimSpace(a.Element), "qhq") {
		return []jones.Element{
			{Type: jones.ElementQuarter, Angle: a.Angle},
			{Type: jones.ElementHalf, Angle: a.Angle2},
			{Type: jones.ElementQuarter, Angle: a.Angle3},
		}, nil
	}
	el := jones.Element{Type: strings.ToLower(strings.TrimSpace(a.Element)), Angle: a.Angle}
	if _, err := el.Matrix(); err != nil {
		return nil, err
	}
	return []jones.Element{el}, nil
}

// RunApply sends an input state through the requested element chain and
// prints both ends.
func (a *App) RunApply() error {
	arg := a.Input
	if arg == "" {
		arg = a.State
	}
	if arg == "" {
		return fmt.Errorf("-element needs -input")
	}
	in, err := resolveState(arg)
	if err != nil {
		return err
	}

	chain, err := a.elementChain()
	if err != nil {
		return err
	}
	out, err := jones.ApplyChain(in, chain)
	if err != nil {
		return err
	}

	printState("input", in)
	for _, el := range chain {
		fmt.Printf("through %s\n", el)
	}
	printState("output", out)

	if a.RenderPath != "" {
		cfg, err := a.loadConfig()
		if err != nil {
			return err
		}
		return a.renderTransform(cfg, in, out)
	}
	return nil
}

// RunSearch finds the waveplate angles mapping -input onto -target
func (a *App) RunSearch() error {
	if a.Input == "" || a.Target == "" {
		return fmt.Errorf("-search needs -input and -target")
	}
	in, err := resolveState(a.Input)
	if err != nil {
		return err
	}
	target, err := resolveState(a.Target)
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.setupLogger(cfg)

	result, err := jones.SearchAngles(in, target, a.searchSettings(cfg))
	if err != nil {
		return fmt.Errorf("searching angles: %w", err)
	}

	fmt.Println(result)
	out := jones.Apply(jones.QuarterHalfQuarter(result.Theta1, result.Theta2, result.Theta3), in)
	printState("achieved", out)
	if !result.Converged {
		a.Log.Warn().Float64("error", result.Error).Msg("Search did not converge")
	}

	a.recordRun(cfg, in, target, result)

	if a.RenderPath != "" {
		return a.renderTransform(cfg, in, out)
	}
	return nil
}

// recordRun stores a CLI search in the run history when one is configured.
// Recording failures are logged, never fatal.
func (a *App) recordRun(cfg *jones.Config, in, target jones.PolarizationState, result jones.SearchResult) {
	if cfg == nil || cfg.History.Database == "" {
		return
	}
	hist, err := jones.OpenHistory(cfg.History.Database, a.Log)
	if err != nil {
		a.Log.Warn().Err(err).Msg("Run not recorded")
		return
	}
	defer func() { _ = hist.Close() }()
	if _, err := hist.Record(cliBench, in, target, result); err != nil {
		a.Log.Warn().Err(err).Msg("Run not recorded")
	}
}

// RunRender writes a figure for the -state argument
func (a *App) RunRender() error {
	arg := a.State
	if arg == "" {
		arg = a.Input
	}
	if arg == "" {
		return fmt.Errorf("-render needs -state")
	}
	s, err := resolveState(arg)
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	return a.renderState(cfg, s)
}

// renderState writes a single-trace figure, picking the format from the
// file extension: .svg is vector output, anything else is a raster PNG.
func (a *App) renderState(cfg *jones.Config, s jones.PolarizationState) error {
	if isSVGPath(a.RenderPath) {
		r := jones.NewVectorRenderer()
		if cfg != nil {
			r.Configure(cfg.Render)
		}
		r.AddTrace("state", s, jones.DefaultTraceColors()[0])
		if err := r.SaveSVG(a.RenderPath); err != nil {
			return fmt.Errorf("writing SVG: %w", err)
		}
	} else {
		r := jones.NewEllipseRenderer()
		if cfg != nil {
			r.Configure(cfg.Render)
		}
		r.AddTrace("state", s, jones.DefaultTraceColors()[0])
		if err := r.SavePNG(a.RenderPath); err != nil {
			return fmt.Errorf("writing PNG: %w", err)
		}
	}
	fmt.Printf("wrote %s\n", a.RenderPath)
	return nil
}

// renderTransform writes an input-versus-output figure, input faded behind
// the output.
func (a *App) renderTransform(cfg *jones.Config, in, out jones.PolarizationState) error {
	colors := jones.DefaultTraceColors()
	if isSVGPath(a.RenderPath) {
		r := jones.NewVectorRenderer()
		if cfg != nil {
			r.Configure(cfg.Render)
		}
		r.AddMutedTrace("input", in, colors[0])
		r.AddTrace("output", out, colors[1])
		if err := r.SaveSVG(a.RenderPath); err != nil {
			return fmt.Errorf("writing SVG: %w", err)
		}
	} else {
		r := jones.NewEllipseRenderer()
		if cfg != nil {
			r.Configure(cfg.Render)
		}
		r.AddMutedTrace("input", in, colors[0])
		r.AddTrace("output", out, colors[1])
		if err := r.SavePNG(a.RenderPath); err != nil {
			return fmt.Errorf("writing PNG: %w", err)
		}
	}
	fmt.Printf("wrote %s\n", a.RenderPath)
	return nil
}

// RunScenario executes a scenario file: describe the input, apply the
// element chain when one is present, search when a target is set.
func (a *App) RunScenario() error {
	sc, err := jones.LoadScenario(a.Scenario)
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.setupLogger(cfg)

	fmt.Printf("scenario: %s\n", sc.Name)
	in := sc.Input.State
	printState("input", in)

	out := in
	transformed := false
	if len(sc.Elements) > 0 {
		out, err = jones.ApplyChain(in, sc.Elements)
		if err != nil {
			return err
		}
		for _, el := range sc.Elements {
			fmt.Printf("through %s\n", el)
		}
		printState("output", out)
		transformed = true
	}

	if sc.HasSearch() {
		printState("target", sc.Target.State)
		result, err := jones.SearchAngles(in, sc.Target.State, a.searchSettings(cfg))
		if err != nil {
			return fmt.Errorf("searching angles: %w", err)
		}
		fmt.Println(result)
		out = jones.Apply(jones.QuarterHalfQuarter(result.Theta1, result.Theta2, result.Theta3), in)
		printState("achieved", out)
		a.recordRun(cfg, in, sc.Target.State, result)
		transformed = true
	}

	if a.RenderPath != "" {
		if transformed {
			return a.renderTransform(cfg, in, out)
		}
		return a.renderState(cfg, in)
	}
	return nil
}

// RunHistory lists recent runs from the history database, newest first
func (a *App) RunHistory() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	path := jones.DefaultHistoryPath
	if cfg != nil && cfg.History.Database != "" {
		path = cfg.History.Database
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no history database at %s", path)
	}

	hist, err := jones.OpenHistory(path, a.Log)
	if err != nil {
		return err
	}
	defer func() { _ = hist.Close() }()

	runs, err := hist.Recent("", a.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, r := range runs {
		status := "converged"
		if !r.Converged {
			status = "not converged"
		}
		fmt.Printf("%s  %-8s  %s -> %s  Q1=%.2f° H=%.2f° Q2=%.2f°  error=%.3g  %s\n",
			time.Unix(r.CreatedAt, 0).UTC().Format("2006-01-02 15:04:05"),
			r.Bench, r.Input, r.Target, r.Theta1, r.Theta2, r.Theta3, r.Error, status)
	}
	return nil
}

// RunService starts the live service: MQTT-driven auto search plus the
// HTTP figure endpoints, shutting down cleanly on SIGINT or SIGTERM.
func (a *App) RunService() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.setupLogger(cfg)
	log := a.Log
	if cfg == nil {
		log.Warn().Str("path", a.ConfigFile).Msg("No config file found, using defaults")
		cfg = &jones.Config{}
	}

	// Seed the tracker from the configured benches so figures render
	// before the first MQTT message arrives
	for _, bc := range cfg.Benches {
		if bc.Color != "" {
			a.Tracker.SetColor(bc.ID, bc.Color)
		}
		if bc.Input != "" {
			if s, ok := jones.StateByName(bc.Input); ok {
				a.Tracker.UpdateInput(bc.ID, s)
			}
		}
	}

	var hist *jones.History
	if cfg.History.Database != "" {
		hist, err = jones.OpenHistory(cfg.History.Database, log)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.History.Database).Msg("Run history disabled")
			hist = nil
		} else {
			defer func() { _ = hist.Close() }()
		}
	}

	var store *jones.SolutionSet
	if cfg.Store.Solutions != "" {
		store, err = jones.LoadSolutions(cfg.Store.Solutions)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Store.Solutions).Msg("Starting with an empty solution store")
			store = nil
		} else if store != nil {
			log.Info().Int("solutions", len(store.Solutions)).Str("path", cfg.Store.Solutions).Msg("Solution store loaded")
		}
	}

	searcher := jones.NewAutoSearcher(cfg, store, cfg.Store.Solutions, a.Tracker, hist, nil, log)

	mqttClient, err := jones.InitMQTT(cfg, searcher.Handlers(), log)
	if err != nil {
		return fmt.Errorf("starting MQTT: %w", err)
	}
	if mqttClient != nil {
		defer mqttClient.Disconnect()
		pub := jones.NewPublisher(mqttClient.GetClient(), log)
		pub.SetPrefix(cfg.MQTT.PublishPrefix)
		pub.SetQoS(cfg.MQTT.QoS)
		pub.SetRetain(cfg.MQTT.Retain)
		searcher.SetPublisher(pub)
	} else {
		log.Info().Msg("MQTT not configured, running HTTP only")
	}

	listen := cfg.HTTP.Listen
	if listen == "" {
		listen = ":8080"
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           newHTTPServer(a.Tracker, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", listen).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown did not finish cleanly")
	}
	return nil
}
