package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

// appRunner is the mode surface main drives; tests substitute a mock
type appRunner interface {
	ApplyOptions(opts AppOptions)
	RunDescribe() error
	RunApply() error
	RunSearch() error
	RunRender() error
	RunScenario() error
	RunHistory() error
	RunService() error
}

// run parses the command line and dispatches to the selected mode
func run(args []string, out io.Writer, app appRunner) error {
	fs := flag.NewFlagSet("joneslab", flag.ContinueOnError)
	fs.SetOutput(out)

	configFile := fs.String("config", "config.yaml", "Path to the YAML configuration file")
	state := fs.String("state", "", "State for -describe or -render: preset name or component JSON")
	input := fs.String("input", "", "Input state for -element or -search")
	target := fs.String("target", "", "Target state for -search")
	element := fs.String("element", "", "Optical element to apply: polarizer, quarter, half or qhq")
	angle := fs.Float64("angle", 0, "Element orientation in degrees (first quarter-wave plate for qhq)")
	angle2 := fs.Float64("angle2", 0, "Half-wave plate orientation in degrees for qhq")
	angle3 := fs.Float64("angle3", 0, "Second quarter-wave plate orientation in degrees for qhq")
	search := fs.Bool("search", false, "Search the waveplate angles mapping -input onto -target")
	describe := fs.Bool("describe", false, "Print the summary of -state")
	render := fs.String("render", "", "Write a figure to this path (.png or .svg)")
	scenario := fs.String("scenario", "", "Execute a scenario file")
	serve := fs.Bool("serve", false, "Run the MQTT and HTTP service")
	history := fs.Bool("history", false, "List recent search runs")
	limit := fs.Int("limit", 10, "Number of runs to list with -history")
	seed := fs.Int64("seed", 0, "Search RNG seed, 0 seeds from the clock")
	logLevel := fs.String("log-level", "", "Log level: trace, debug, info, warn or error")
	pretty := fs.Bool("pretty", false, "Human-readable console logging")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "joneslab version: %s\n", Version)

	opts := AppOptions{
		ConfigFile: *configFile,
		State:      *state,
		Input:      *input,
		Target:     *target,
		Element:    *element,
		Angle:      *angle,
		Angle2:     *angle2,
		Angle3:     *angle3,
		RenderPath: *render,
		Scenario:   *scenario,
		Limit:      *limit,
		Seed:       *seed,
		LogLevel:   *logLevel,
		Pretty:     *pretty,
		Describe:   *describe,
		Search:     *search,
		Serve:      *serve,
		History:    *history,
	}
	app.ApplyOptions(opts)

	switch {
	case opts.Serve:
		fmt.Fprintln(out, "joneslab service starting...")
		return app.RunService()
	case opts.Scenario != "":
		return app.RunScenario()
	case opts.Search:
		return app.RunSearch()
	case opts.Element != "":
		return app.RunApply()
	case opts.Describe:
		return app.RunDescribe()
	case opts.RenderPath != "":
		return app.RunRender()
	case opts.History:
		return app.RunHistory()
	}

	fs.Usage()
	return nil
}

func main() {
	// A .env next to the binary can hold the MQTT credentials
	_ = godotenv.Load()

	app := NewApp()
	if err := run(os.Args[1:], os.Stdout, app); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "joneslab: %v\n", err)
		os.Exit(1)
	}
}
