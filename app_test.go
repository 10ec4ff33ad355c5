package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kwv/joneslab/jones"
)

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.Tracker == nil {
		t.Error("Tracker should be initialized")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		ConfigFile: "lab.yaml",
		State:      "RCP",
		Input:      "H",
		Target:     "V",
		Element:    "quarter",
		Angle:      15,
		Angle2:     40,
		Angle3:     -10,
		RenderPath: "fig.svg",
		Scenario:   "demo.json",
		Limit:      25,
		Seed:       42,
		LogLevel:   "debug",
		Pretty:     true,
		Describe:   true,
		Search:     true,
		Serve:      false,
		History:    true,
	}

	app.ApplyOptions(opts)

	if app.ConfigFile != "lab.yaml" {
		t.Errorf("ConfigFile = %s, want lab.yaml", app.ConfigFile)
	}
	if app.State != "RCP" {
		t.Errorf("State = %s, want RCP", app.State)
	}
	if app.Input != "H" {
		t.Errorf("Input = %s, want H", app.Input)
	}
	if app.Target != "V" {
		t.Errorf("Target = %s, want V", app.Target)
	}
	if app.Element != "quarter" {
		t.Errorf("Element = %s, want quarter", app.Element)
	}
	if app.Angle != 15 || app.Angle2 != 40 || app.Angle3 != -10 {
		t.Errorf("angles = %f/%f/%f, want 15/40/-10", app.Angle, app.Angle2, app.Angle3)
	}
	if app.RenderPath != "fig.svg" {
		t.Errorf("RenderPath = %s, want fig.svg", app.RenderPath)
	}
	if app.Scenario != "demo.json" {
		t.Errorf("Scenario = %s, want demo.json", app.Scenario)
	}
	if app.Limit != 25 {
		t.Errorf("Limit = %d, want 25", app.Limit)
	}
	if app.Seed != 42 {
		t.Errorf("Seed = %d, want 42", app.Seed)
	}
	if app.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", app.LogLevel)
	}
	if !app.Pretty {
		t.Error("Pretty should be true")
	}
	if !app.Describe || !app.Search || !app.History {
		t.Error("Describe, Search and History should be true")
	}
	if app.Serve {
		t.Error("Serve should be false")
	}
}

func TestApplyOptions_AllDefaults(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{})

	if app.ConfigFile != "" {
		t.Errorf("ConfigFile = %s, want empty string", app.ConfigFile)
	}
	if app.Limit != 0 {
		t.Errorf("Limit = %d, want 0", app.Limit)
	}
}

func TestResolveState(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want jones.PolarizationState
	}{
		{"preset short form", "RCP", jones.RightCircular()},
		{"preset long form lowercase", "horizontal", jones.Horizontal()},
		{"preset with spaces", "  +45  ", jones.Diagonal()},
		{"component JSON normalizes", `{"ex":[2,0],"ey":[0,0]}`, jones.Horizontal()},
		{"circular components", `{"ex":[0.7071,0],"ey":[0,-0.7071]}`, jones.RightCircular()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveState(tt.arg)
			if err != nil {
				t.Fatalf("resolveState(%q) failed: %v", tt.arg, err)
			}
			if got.Distance(tt.want) > 1e-4 {
				t.Errorf("resolveState(%q) = %v, want %v", tt.arg, got, tt.want)
			}
		})
	}
}

func TestResolveState_Errors(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{"unknown preset", "sideways"},
		{"zero components", `{"ex":[0,0],"ey":[0,0]}`},
		{"not json", "{broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolveState(tt.arg); err == nil {
				t.Errorf("resolveState(%q) should fail", tt.arg)
			}
		})
	}
}

func TestIsSVGPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"fig.svg", true},
		{"FIG.SVG", true},
		{"fig.png", false},
		{"fig", false},
		{"dir.svg/fig.png", false},
	}
	for _, tt := range tests {
		if got := isSVGPath(tt.path); got != tt.want {
			t.Errorf("isSVGPath(%q) = %t, want %t", tt.path, got, tt.want)
		}
	}
}

func TestApp_LoadConfig(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		app := NewApp()
		cfg, err := app.loadConfig()
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config for an empty path")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		app := NewApp()
		app.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
		cfg, err := app.loadConfig()
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config for a missing file")
		}
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("http:\n  listen: \":9090\"\n"), 0644); err != nil {
			t.Fatalf("writing config: %v", err)
		}
		app := NewApp()
		app.ConfigFile = path
		cfg, err := app.loadConfig()
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg == nil || cfg.HTTP.Listen != ":9090" {
			t.Errorf("expected listen :9090, got %+v", cfg)
		}
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("benches: [\n"), 0644); err != nil {
			t.Fatalf("writing config: %v", err)
		}
		app := NewApp()
		app.ConfigFile = path
		if _, err := app.loadConfig(); err == nil {
			t.Error("expected an error for malformed YAML")
		}
	})
}

func TestApp_SearchSettings(t *testing.T) {
	t.Run("seed flag is deterministic", func(t *testing.T) {
		app := NewApp()
		app.Seed = 42
		a := app.searchSettings(nil)
		b := app.searchSettings(nil)
		if a.RNG.Float64() != b.RNG.Float64() {
			t.Error("same seed should produce the same RNG stream")
		}
	})

	t.Run("config overrides apply", func(t *testing.T) {
		app := NewApp()
		cfg := &jones.Config{Search: jones.SearchSettings{MaxIterations: 500, RandomStarts: 12}}
		sc := app.searchSettings(cfg)
		if sc.MaxIterations != 500 {
			t.Errorf("MaxIterations = %d, want 500", sc.MaxIterations)
		}
		if sc.RandomStarts != 12 {
			t.Errorf("RandomStarts = %d, want 12", sc.RandomStarts)
		}
	})
}

func TestApp_ElementChain(t *testing.T) {
	t.Run("single element", func(t *testing.T) {
		app := NewApp()
		app.Element = "quarter"
		app.Angle = 15
		chain, err := app.elementChain()
		if err != nil {
			t.Fatalf("elementChain failed: %v", err)
		}
		if len(chain) != 1 || chain[0].Type != jones.ElementQuarter || chain[0].Angle != 15 {
			t.Errorf("chain = %+v, want one quarter at 15", chain)
		}
	})

	t.Run("qhq cascade", func(t *testing.T) {
		app := NewApp()
		app.Element = "QHQ"
		app.Angle, app.Angle2, app.Angle3 = 10, 20, 30
		chain, err := app.elementChain()
		if err != nil {
			t.Fatalf("elementChain failed: %v", err)
		}
		if len(chain) != 3 {
			t.Fatalf("expected 3 elements, got %d", len(chain))
		}
		if chain[0].Type != jones.ElementQuarter || chain[1].Type != jones.ElementHalf || chain[2].Type != jones.ElementQuarter {
			t.Errorf("chain types = %s/%s/%s, want quarter/half/quarter", chain[0].Type, chain[1].Type, chain[2].Type)
		}
		if chain[0].Angle != 10 || chain[1].Angle != 20 || chain[2].Angle != 30 {
			t.Errorf("chain angles = %f/%f/%f, want 10/20/30", chain[0].Angle, chain[1].Angle, chain[2].Angle)
		}
	})

	t.Run("unknown element", func(t *testing.T) {
		app := NewApp()
		app.Element = "prism"
		if _, err := app.elementChain(); err == nil {
			t.Error("expected an error for an unknown element type")
		}
	})
}

func TestApp_RunDescribe(t *testing.T) {
	app := NewApp()
	app.State = "LCP"
	if err := app.RunDescribe(); err != nil {
		t.Fatalf("RunDescribe failed: %v", err)
	}
}

func TestApp_RunDescribe_NeedsState(t *testing.T) {
	app := NewApp()
	err := app.RunDescribe()
	if err == nil || !strings.Contains(err.Error(), "-state") {
		t.Errorf("expected a -state error, got %v", err)
	}
}

func TestApp_RunApply(t *testing.T) {
	app := NewApp()
	app.Input = "H"
	app.Element = "half"
	app.Angle = 45
	if err := app.RunApply(); err != nil {
		t.Fatalf("RunApply failed: %v", err)
	}
}

func TestApp_RunApply_NeedsInput(t *testing.T) {
	app := NewApp()
	app.Element = "half"
	if err := app.RunApply(); err == nil {
		t.Error("expected an error without -input")
	}
}

func TestApp_RunApply_UnknownElement(t *testing.T) {
	app := NewApp()
	app.Input = "H"
	app.Element = "prism"
	err := app.RunApply()
	if err == nil || !strings.Contains(err.Error(), "unknown element type") {
		t.Errorf("expected an unknown element error, got %v", err)
	}
}

func TestApp_RunSearch(t *testing.T) {
	app := NewApp()
	app.Input = "H"
	app.Target = "V"
	app.Seed = 7
	if err := app.RunSearch(); err != nil {
		t.Fatalf("RunSearch failed: %v", err)
	}
}

func TestApp_RunSearch_NeedsBothStates(t *testing.T) {
	app := NewApp()
	app.Input = "H"
	if err := app.RunSearch(); err == nil {
		t.Error("expected an error without -target")
	}
}

func TestApp_RunSearch_RecordsHistory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("history:\n  database: %q\nsearch:\n  seed: 7\n", db)
	if err := os.WriteFile(cfgPath, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	app := NewApp()
	app.ConfigFile = cfgPath
	app.Input = "H"
	app.Target = "V"
	if err := app.RunSearch(); err != nil {
		t.Fatalf("RunSearch failed: %v", err)
	}

	hist, err := jones.OpenHistory(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("opening history: %v", err)
	}
	defer hist.Close()

	runs, err := hist.Recent("", 10)
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(runs))
	}
	if runs[0].Bench != cliBench {
		t.Errorf("Bench = %q, want %q", runs[0].Bench, cliBench)
	}
	if !runs[0].Converged {
		t.Error("H to V search should converge")
	}
}

func TestApp_RunRender_PNG(t *testing.T) {
	app := NewApp()
	app.State = "RCP"
	app.RenderPath = filepath.Join(t.TempDir(), "fig.png")
	if err := app.RunRender(); err != nil {
		t.Fatalf("RunRender failed: %v", err)
	}
	if _, err := os.Stat(app.RenderPath); err != nil {
		t.Errorf("expected %s to exist: %v", app.RenderPath, err)
	}
}

func TestApp_RunRender_SVG(t *testing.T) {
	app := NewApp()
	app.State = "+45"
	app.RenderPath = filepath.Join(t.TempDir(), "fig.svg")
	if err := app.RunRender(); err != nil {
		t.Fatalf("RunRender failed: %v", err)
	}
	data, err := os.ReadFile(app.RenderPath)
	if err != nil {
		t.Fatalf("reading figure: %v", err)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Error("expected SVG output")
	}
}

func TestApp_RunRender_NeedsState(t *testing.T) {
	app := NewApp()
	app.RenderPath = "fig.png"
	if err := app.RunRender(); err == nil {
		t.Error("expected an error without -state")
	}
}

func TestApp_RunScenario_ApplyAndRender(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "h-to-v.json")
	body := `{"input":"H","elements":[{"type":"half","angle":45}]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing scenario: %v", err)
	}

	app := NewApp()
	app.Scenario = path
	app.RenderPath = filepath.Join(dir, "fig.svg")
	if err := app.RunScenario(); err != nil {
		t.Fatalf("RunScenario failed: %v", err)
	}
	if _, err := os.Stat(app.RenderPath); err != nil {
		t.Errorf("expected %s to exist: %v", app.RenderPath, err)
	}
}

func TestApp_RunScenario_Search(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "search.json")
	body := `{"input":"+45","target":"RCP"}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing scenario: %v", err)
	}

	app := NewApp()
	app.Scenario = path
	app.Seed = 7
	if err := app.RunScenario(); err != nil {
		t.Fatalf("RunScenario failed: %v", err)
	}
}

func TestApp_RunScenario_Missing(t *testing.T) {
	app := NewApp()
	app.Scenario = filepath.Join(t.TempDir(), "missing.json")
	if err := app.RunScenario(); err == nil {
		t.Error("expected an error for a missing scenario file")
	}
}

func TestApp_RunHistory_NoDatabase(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("history:\n  database: %q\n", filepath.Join(dir, "missing.db"))
	if err := os.WriteFile(cfgPath, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	app := NewApp()
	app.ConfigFile = cfgPath
	err := app.RunHistory()
	if err == nil || !strings.Contains(err.Error(), "no history database") {
		t.Errorf("expected a missing database error, got %v", err)
	}
}

func TestApp_RunHistory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")

	hist, err := jones.OpenHistory(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("opening history: %v", err)
	}
	result := jones.SearchResult{Theta1: 15, Theta2: 40, Theta3: -10, Error: 1e-12, Converged: true}
	if _, err := hist.Record("bench-a", jones.Horizontal(), jones.Vertical(), result); err != nil {
		t.Fatalf("recording run: %v", err)
	}
	if err := hist.Close(); err != nil {
		t.Fatalf("closing history: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("history:\n  database: %q\n", db)
	if err := os.WriteFile(cfgPath, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	app := NewApp()
	app.ConfigFile = cfgPath
	app.Limit = 10
	if err := app.RunHistory(); err != nil {
		t.Fatalf("RunHistory failed: %v", err)
	}
}
